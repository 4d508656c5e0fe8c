package domain

import "time"

// User is the backend user record consulted by the direct fallback read.
type User struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	IsBlocked bool      `json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RiderProfile is the rider-specific detail record.
type RiderProfile struct {
	UserID             string    `json:"user_id"`
	VerificationStatus string    `json:"verification_status"`
	IsActive           bool      `json:"is_active"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Account links a synthetic backend credential to a user record.
type Account struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Identifier string    `json:"identifier"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
