package domain

import "time"

// Session is a backend session stored in Redis.
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Phone     string            `json:"phone,omitempty"`
	Email     string            `json:"email,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}

// Caller converts the session into the context-bound caller.
func (s *Session) Caller() Caller {
	if s == nil {
		return Caller{}
	}
	return Caller{
		UserID:          s.UserID,
		SessionID:       s.ID,
		Phone:           s.Phone,
		Email:           s.Email,
		ExternalTokenID: s.TokenID,
	}
}

// SessionEventKind names a session-change event.
type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionRefreshed SessionEventKind = "refreshed"
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent is published whenever a backend session changes.
type SessionEvent struct {
	Kind      SessionEventKind `json:"kind"`
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	At        time.Time        `json:"at"`
}

// AuditEvent records a denied navigation.
type AuditEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Route      string    `json:"route"`
	ActualRole Role      `json:"actual_role"`
	RedirectTo string    `json:"redirect_to"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
