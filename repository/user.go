package repository

import (
	"context"

	"github.com/fastygo/rolegate/domain"
)

// UserRepository reads user records directly, bypassing the role procedures.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// RiderRepository reads rider detail records keyed by user id.
type RiderRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.RiderProfile, error)
}

// AccountRepository stores synthetic backend credentials.
type AccountRepository interface {
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	// Create links a new account to the unclaimed user provisioned for
	// phone or email, or to a fresh customer user. Duplicate identifiers
	// return domain.ErrAccountExists.
	Create(ctx context.Context, account *domain.Account, phone, email string) error
}
