package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository stores security audit events in Postgres.
func NewAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Insert(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		return domain.ErrInvalidPayload
	}
	const query = `
	INSERT INTO security_audit (id, user_id, route, actual_role, redirect_to, request_id, occurred_at)
	VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), COALESCE($7, NOW()))
	ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.Route,
		string(event.ActualRole),
		event.RedirectTo,
		event.RequestID,
		nullTime(event.OccurredAt),
	)
	return err
}
