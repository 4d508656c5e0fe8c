package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeInvalid          ErrorCode = "INVALID"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal         ErrorCode = "INTERNAL"
	ErrCodeIdentityConflict ErrorCode = "IDENTITY_CONFLICT"
	ErrCodeBridgeFailed     ErrorCode = "BRIDGE_FAILED"
	ErrCodeTimeout          ErrorCode = "TIMEOUT"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches domain errors by code and message so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

const (
	MsgAccountSetupFailed = "Account setup failed."
	MsgIdentityConflict   = "This phone/email is linked to a different account. Please contact support."
)

// Common domain errors.
var (
	ErrUserNotFound         = NewError(ErrCodeNotFound, "user not found")
	ErrRiderProfileNotFound = NewError(ErrCodeNotFound, "rider profile not found")
	ErrSessionNotFound      = NewError(ErrCodeNotFound, "session not found")
	ErrUnauthorized         = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload       = NewError(ErrCodeInvalid, "invalid payload")
	ErrInvalidCredentials   = NewError(ErrCodeUnauthorized, "invalid credentials")
	ErrAccountExists        = NewError(ErrCodeConflict, "account already exists")
	ErrIdentifierClaimed    = NewError(ErrCodeIdentityConflict, "identifier already claimed by a different account")
	ErrIdentityConflict     = NewError(ErrCodeIdentityConflict, MsgIdentityConflict)
	ErrResolutionTimeout    = NewError(ErrCodeTimeout, "role resolution timed out")
	ErrTokenRevoked         = NewError(ErrCodeUnauthorized, "token revoked")
)

// IdentityBridgeError reports that an external identity could not be turned
// into a backend session.
type IdentityBridgeError struct {
	Stage string
	Err   error
}

func (e *IdentityBridgeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s: %v)", MsgAccountSetupFailed, e.Stage, e.Err)
	}
	return MsgAccountSetupFailed
}

func (e *IdentityBridgeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	if code == ErrCodeBridgeFailed {
		var bErr *IdentityBridgeError
		return errors.As(err, &bErr)
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
