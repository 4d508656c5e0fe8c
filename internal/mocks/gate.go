package mocks

import (
	"context"
	"sync"

	"github.com/fastygo/rolegate/domain"
)

// SessionSourceStub returns a fixed caller, or nil when Caller is nil.
type SessionSourceStub struct {
	Caller *domain.Caller
	Err    error
}

func (s *SessionSourceStub) Current(context.Context) (*domain.Caller, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Caller == nil {
		return nil, nil
	}
	c := *s.Caller
	return &c, nil
}

// ResolverStub implements the gate's resolver.
type ResolverStub struct {
	ResolveFn func(ctx context.Context, userID, hint string) (domain.RoleResolution, error)

	mu    sync.Mutex
	hints []string
}

func (s *ResolverStub) Resolve(ctx context.Context, userID, hint string) (domain.RoleResolution, error) {
	s.mu.Lock()
	s.hints = append(s.hints, hint)
	s.mu.Unlock()
	if s.ResolveFn != nil {
		return s.ResolveFn(ctx, userID, hint)
	}
	return domain.DefaultResolution(), nil
}

func (s *ResolverStub) Hints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hints...)
}

// DecisionCounter implements the gate's observer.
type DecisionCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (d *DecisionCounter) ObserveDecision(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts == nil {
		d.counts = map[string]int{}
	}
	d.counts[status]++
}

func (d *DecisionCounter) Count(status string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[status]
}
