// Package mocks holds hand-written test doubles. Each stub records its calls
// and delegates to an optional function field.
package mocks

import (
	"context"
	"sync"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

// RoleServiceStub implements repository.RoleService.
type RoleServiceStub struct {
	ResolveMyRoleFn  func(ctx context.Context) (*repository.RoleRecord, error)
	ResolveByPhoneFn func(ctx context.Context, phone string) (*repository.RoleRecord, error)
	ResolveByEmailFn func(ctx context.Context, email string) (*repository.RoleRecord, error)

	mu         sync.Mutex
	selfCalls  int
	phoneCalls []string
	emailCalls []string
	callerSeen []domain.Caller
}

func (s *RoleServiceStub) ResolveMyRole(ctx context.Context) (*repository.RoleRecord, error) {
	s.mu.Lock()
	s.selfCalls++
	if caller, ok := domain.CallerFromContext(ctx); ok {
		s.callerSeen = append(s.callerSeen, caller)
	}
	s.mu.Unlock()
	if s.ResolveMyRoleFn != nil {
		return s.ResolveMyRoleFn(ctx)
	}
	return nil, nil
}

func (s *RoleServiceStub) ResolveByPhone(ctx context.Context, phone string) (*repository.RoleRecord, error) {
	s.mu.Lock()
	s.phoneCalls = append(s.phoneCalls, phone)
	s.mu.Unlock()
	if s.ResolveByPhoneFn != nil {
		return s.ResolveByPhoneFn(ctx, phone)
	}
	return nil, nil
}

func (s *RoleServiceStub) ResolveByEmail(ctx context.Context, email string) (*repository.RoleRecord, error) {
	s.mu.Lock()
	s.emailCalls = append(s.emailCalls, email)
	s.mu.Unlock()
	if s.ResolveByEmailFn != nil {
		return s.ResolveByEmailFn(ctx, email)
	}
	return nil, nil
}

func (s *RoleServiceStub) SelfCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfCalls
}

func (s *RoleServiceStub) PhoneCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.phoneCalls...)
}

func (s *RoleServiceStub) EmailCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.emailCalls...)
}

// Callers returns the callers bound to ResolveMyRole contexts.
func (s *RoleServiceStub) Callers() []domain.Caller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Caller(nil), s.callerSeen...)
}

var _ repository.RoleService = (*RoleServiceStub)(nil)

// UserRepositoryStub implements repository.UserRepository.
type UserRepositoryStub struct {
	GetByIDFn func(ctx context.Context, id string) (*domain.User, error)

	mu    sync.Mutex
	calls int
}

func (s *UserRepositoryStub) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.GetByIDFn != nil {
		return s.GetByIDFn(ctx, id)
	}
	return nil, domain.ErrUserNotFound
}

func (s *UserRepositoryStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ repository.UserRepository = (*UserRepositoryStub)(nil)

// RiderRepositoryStub implements repository.RiderRepository.
type RiderRepositoryStub struct {
	GetByUserIDFn func(ctx context.Context, userID string) (*domain.RiderProfile, error)

	mu    sync.Mutex
	calls int
}

func (s *RiderRepositoryStub) GetByUserID(ctx context.Context, userID string) (*domain.RiderProfile, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.GetByUserIDFn != nil {
		return s.GetByUserIDFn(ctx, userID)
	}
	return nil, domain.ErrRiderProfileNotFound
}

func (s *RiderRepositoryStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ repository.RiderRepository = (*RiderRepositoryStub)(nil)

// SignOutStub records forced sign-outs and the caller they were made for.
type SignOutStub struct {
	ForceSignOutFn func(ctx context.Context) error

	mu      sync.Mutex
	callers []domain.Caller
}

func (s *SignOutStub) ForceSignOut(ctx context.Context) error {
	caller, _ := domain.CallerFromContext(ctx)
	s.mu.Lock()
	s.callers = append(s.callers, caller)
	s.mu.Unlock()
	if s.ForceSignOutFn != nil {
		return s.ForceSignOutFn(ctx)
	}
	return nil
}

func (s *SignOutStub) Callers() []domain.Caller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Caller(nil), s.callers...)
}

// Record is a convenience constructor for procedure rows.
func Record(role string, blocked, needsRegistration bool) *repository.RoleRecord {
	return &repository.RoleRecord{Role: role, IsBlocked: blocked, NeedsRegistration: needsRegistration}
}
