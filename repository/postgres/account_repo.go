package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository instantiates a Postgres-backed account repository.
func NewAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return &accountRepository{pool: pool}
}

func (r *accountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	const query = `
		SELECT id, user_id, identifier, secret_hash, created_at
		FROM accounts
		WHERE identifier = $1
	`
	var account domain.Account
	err := r.pool.QueryRow(ctx, query, identifier).Scan(
		&account.ID,
		&account.UserID,
		&account.Identifier,
		&account.SecretHash,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account, phone, email string) error {
	if account == nil || account.Identifier == "" || account.SecretHash == "" {
		return domain.ErrInvalidPayload
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		userID, err := claimProvisionedUser(ctx, tx, phone, email)
		if err != nil {
			return err
		}
		if userID == "" {
			userID = uuid.NewString()
			const insertUser = `
				INSERT INTO users (id, phone, email, role, is_blocked, created_at, updated_at)
				VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), 'customer', false, NOW(), NOW())
			`
			if _, err := tx.Exec(ctx, insertUser, userID, phone, email); err != nil {
				return err
			}
		}

		const insertAccount = `
			INSERT INTO accounts (id, user_id, identifier, secret_hash, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING created_at
		`
		account.UserID = userID
		return tx.QueryRow(ctx, insertAccount, account.ID, userID, account.Identifier, account.SecretHash).
			Scan(&account.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrAccountExists
		}
		return err
	}
	return nil
}

// claimProvisionedUser returns the id of an admin-provisioned user with the
// same phone or email that no account is linked to yet.
func claimProvisionedUser(ctx context.Context, tx pgx.Tx, phone, email string) (string, error) {
	if phone == "" && email == "" {
		return "", nil
	}
	const query = `
		SELECT u.id
		FROM users u
		WHERE ((NULLIF($1, '') IS NOT NULL AND u.phone = $1)
		    OR (NULLIF($2, '') IS NOT NULL AND lower(u.email) = lower($2)))
		  AND NOT EXISTS (SELECT 1 FROM accounts a WHERE a.user_id = u.id)
		ORDER BY u.created_at
		LIMIT 1
		FOR UPDATE
	`
	var id string
	err := tx.QueryRow(ctx, query, phone, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}
