package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/repository"
)

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
		SELECT id, COALESCE(phone, ''), COALESCE(email, ''), role, is_blocked, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Phone,
		&user.Email,
		&user.Role,
		&user.IsBlocked,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

type riderRepository struct {
	pool *pgxpool.Pool
}

// NewRiderRepository instantiates a Postgres-backed rider profile repository.
func NewRiderRepository(pool *pgxpool.Pool) repository.RiderRepository {
	return &riderRepository{pool: pool}
}

func (r *riderRepository) GetByUserID(ctx context.Context, userID string) (*domain.RiderProfile, error) {
	const query = `
		SELECT user_id, COALESCE(verification_status, ''), is_active, updated_at
		FROM rider_profiles
		WHERE user_id = $1
	`
	var profile domain.RiderProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.VerificationStatus,
		&profile.IsActive,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRiderProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}
