package repository

import (
	"context"

	"github.com/fastygo/rolegate/domain"
)

type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
	Extend(ctx context.Context, id string, ttlSeconds int) error
	ListByUser(ctx context.Context, userID string) ([]string, error)
}

// SessionEvents publishes and fans out session-change events.
type SessionEvents interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
	// Subscribe delivers events until ctx is done; the channel is closed afterwards.
	Subscribe(ctx context.Context) (<-chan domain.SessionEvent, error)
}

// TokenRevocations tracks external provider tokens that were signed out.
type TokenRevocations interface {
	Revoke(ctx context.Context, tokenID string) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuditRepository persists security audit events.
type AuditRepository interface {
	Insert(ctx context.Context, event domain.AuditEvent) error
}
