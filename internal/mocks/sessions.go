package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

// AccountStore is an in-memory repository.AccountRepository.
type AccountStore struct {
	// CreateErr, when set, is returned by every Create call.
	CreateErr error
	// GetErr, when set, is returned by every GetByIdentifier call.
	GetErr error

	mu          sync.Mutex
	accounts    map[string]domain.Account
	createCalls int
	getCalls    int
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: map[string]domain.Account{}}
}

func (s *AccountStore) GetByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	account, ok := s.accounts[identifier]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return &account, nil
}

func (s *AccountStore) Create(_ context.Context, account *domain.Account, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, ok := s.accounts[account.Identifier]; ok {
		return domain.ErrAccountExists
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.UserID == "" {
		account.UserID = uuid.NewString()
	}
	s.accounts[account.Identifier] = *account
	return nil
}

func (s *AccountStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *AccountStore) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

var _ repository.AccountRepository = (*AccountStore)(nil)

// SessionStore is an in-memory repository.SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]domain.Session{}}
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (s *SessionStore) Save(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) Extend(_ context.Context, id string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ListByUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, session := range s.sessions {
		if session.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var _ repository.SessionRepository = (*SessionStore)(nil)

// EventBus is an in-memory repository.SessionEvents fanning out to every
// live subscriber.
type EventBus struct {
	mu        sync.Mutex
	published []domain.SessionEvent
	subs      []chan domain.SessionEvent
}

func (b *EventBus) Publish(_ context.Context, event domain.SessionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.SessionEvent, error) {
	ch := make(chan domain.SessionEvent, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (b *EventBus) Published() []domain.SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.SessionEvent(nil), b.published...)
}

var _ repository.SessionEvents = (*EventBus)(nil)

// RevocationList is an in-memory repository.TokenRevocations.
type RevocationList struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (r *RevocationList) Revoke(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = map[string]bool{}
	}
	r.revoked[tokenID] = true
	return nil
}

func (r *RevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[tokenID], nil
}

var _ repository.TokenRevocations = (*RevocationList)(nil)

// AuditRecorder implements repository.AuditRepository and the gate's audit
// sink, recording every event.
type AuditRecorder struct {
	Err error

	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *AuditRecorder) Insert(_ context.Context, event domain.AuditEvent) error {
	return a.add(event)
}

func (a *AuditRecorder) Record(_ context.Context, event domain.AuditEvent) error {
	return a.add(event)
}

func (a *AuditRecorder) add(event domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.events = append(a.events, event)
	return nil
}

func (a *AuditRecorder) Events() []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEvent(nil), a.events...)
}

var _ repository.AuditRepository = (*AuditRecorder)(nil)
