package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

// identifierClaimedMessage is raised by the resolve_role_by_* procedures.
const identifierClaimedMessage = "identifier_claimed"

type roleService struct {
	pool *pgxpool.Pool
}

// NewRoleService calls the role procedures installed by the migrations.
func NewRoleService(pool *pgxpool.Pool) repository.RoleService {
	return &roleService{pool: pool}
}

func (s *roleService) ResolveMyRole(ctx context.Context) (*repository.RoleRecord, error) {
	caller, ok := domain.CallerFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}

	var record *repository.RoleRecord
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := bindCaller(ctx, tx, caller.UserID); err != nil {
			return err
		}
		var row repository.RoleRecord
		err := tx.QueryRow(ctx, `SELECT role, is_blocked, needs_registration FROM resolve_my_role()`).
			Scan(&row.Role, &row.IsBlocked, &row.NeedsRegistration)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		record = &row
		return nil
	})
	return record, err
}

func (s *roleService) ResolveByPhone(ctx context.Context, phone string) (*repository.RoleRecord, error) {
	return s.resolveByIdentifier(ctx, `SELECT role, is_blocked FROM resolve_role_by_phone($1)`, phone)
}

func (s *roleService) ResolveByEmail(ctx context.Context, email string) (*repository.RoleRecord, error) {
	return s.resolveByIdentifier(ctx, `SELECT role, is_blocked FROM resolve_role_by_email($1)`, email)
}

func (s *roleService) resolveByIdentifier(ctx context.Context, query, identifier string) (*repository.RoleRecord, error) {
	var record *repository.RoleRecord
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if caller, ok := domain.CallerFromContext(ctx); ok {
			if err := bindCaller(ctx, tx, caller.UserID); err != nil {
				return err
			}
		}
		var row repository.RoleRecord
		err := tx.QueryRow(ctx, query, identifier).Scan(&row.Role, &row.IsBlocked)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		record = &row
		return nil
	})
	if isIdentifierClaimed(err) {
		return nil, domain.ErrIdentifierClaimed
	}
	return record, err
}

// bindCaller scopes the procedures in tx to userID.
func bindCaller(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, `SELECT set_config('app.user_id', $1, true)`, userID)
	return err
}

func isIdentifierClaimed(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.RaiseException && pgErr.Message == identifierClaimedMessage
}
