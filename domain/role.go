package domain

import "strings"

// Role is the closed set of marketplace roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleRider    Role = "rider"
	RoleBusiness Role = "business"
	RoleCustomer Role = "customer"
)

var roleAliases = map[string]Role{
	"admin":    RoleAdmin,
	"rider":    RoleRider,
	"driver":   RoleRider,
	"business": RoleBusiness,
	"vendor":   RoleBusiness,
	"customer": RoleCustomer,
	"user":     RoleCustomer,
}

// ParseRole maps a raw backend role spelling into the closed Role set.
// Anything unrecognized becomes RoleCustomer.
func ParseRole(raw string) Role {
	if role, ok := roleAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return role
	}
	return RoleCustomer
}

// ForAuthorization folds legacy business accounts into customer.
// Business accounts are admin-managed and never self-service.
func (r Role) ForAuthorization() Role {
	if r == RoleBusiness {
		return RoleCustomer
	}
	return r
}

func (r Role) String() string { return string(r) }

// RiderStatus is the verification state of a rider profile.
type RiderStatus string

const (
	RiderStatusNone     RiderStatus = "none"
	RiderStatusPending  RiderStatus = "pending"
	RiderStatusVerified RiderStatus = "verified"
	RiderStatusRejected RiderStatus = "rejected"
)

// ParseRiderStatus normalizes a stored verification status. Empty or
// unknown values read as pending.
func ParseRiderStatus(raw string) RiderStatus {
	switch RiderStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case RiderStatusVerified, "approved":
		return RiderStatusVerified
	case RiderStatusRejected:
		return RiderStatusRejected
	case RiderStatusNone:
		return RiderStatusNone
	default:
		return RiderStatusPending
	}
}

// RoleResolution is the result of one role resolution. Values are built
// through the constructors below and never mutated afterwards.
type RoleResolution struct {
	Role              Role        `json:"role"`
	RiderStatus       RiderStatus `json:"rider_status,omitempty"`
	IsBlocked         bool        `json:"is_blocked"`
	NeedsRegistration bool        `json:"needs_registration"`
}

// NewResolution builds a non-rider resolution. Rider roles are routed to
// the rider constructors so the status is always populated.
func NewResolution(role Role, blocked bool) RoleResolution {
	if role == RoleRider {
		if blocked {
			return BlockedRider()
		}
		return RiderResolution(RiderStatusPending, false)
	}
	return RoleResolution{Role: role, IsBlocked: blocked}
}

// RiderNeedsRegistration is returned for riders without a profile record.
// A missing record cannot be blocked, so IsBlocked is always false.
func RiderNeedsRegistration() RoleResolution {
	return RoleResolution{
		Role:              RoleRider,
		RiderStatus:       RiderStatusNone,
		NeedsRegistration: true,
	}
}

// BlockedRider is returned for riders whose account is blocked.
func BlockedRider() RoleResolution {
	return RoleResolution{
		Role:        RoleRider,
		RiderStatus: RiderStatusRejected,
		IsBlocked:   true,
	}
}

// RiderResolution builds a resolution for a rider with a profile record.
func RiderResolution(status RiderStatus, blocked bool) RoleResolution {
	if status == "" {
		status = RiderStatusPending
	}
	return RoleResolution{
		Role:        RoleRider,
		RiderStatus: status,
		IsBlocked:   blocked,
	}
}

// DefaultResolution is the least-privileged outcome used when nothing is known.
func DefaultResolution() RoleResolution {
	return RoleResolution{Role: RoleCustomer}
}
