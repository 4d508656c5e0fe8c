package repository

import "context"

// RoleRecord is the normalized row returned by every role procedure.
// NeedsRegistration is only reported by the caller-scoped procedure.
type RoleRecord struct {
	Role              string
	IsBlocked         bool
	NeedsRegistration bool
}

// RoleService issues role procedure calls against the backend. A nil
// record with a nil error means the procedure returned zero rows.
type RoleService interface {
	// ResolveMyRole is scoped to the caller bound in ctx.
	ResolveMyRole(ctx context.Context) (*RoleRecord, error)
	// ResolveByPhone and ResolveByEmail return domain.ErrIdentifierClaimed
	// when the identifier belongs to a different account.
	ResolveByPhone(ctx context.Context, phone string) (*RoleRecord, error)
	ResolveByEmail(ctx context.Context, email string) (*RoleRecord, error)
}
