package domain

import (
	"context"
	"strings"
	"unicode"
)

// ExternalIdentity is a phone or email identity already verified by the
// external identity provider.
type ExternalIdentity struct {
	Provider string `json:"provider,omitempty"`
	Subject  string `json:"subject,omitempty"`
	TokenID  string `json:"token_id,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IsZero reports whether the identity carries no usable identifier.
func (i ExternalIdentity) IsZero() bool {
	return strings.TrimSpace(i.Phone) == "" && strings.TrimSpace(i.Email) == ""
}

// Caller is the active backend session bound to a request context.
type Caller struct {
	UserID          string
	SessionID       string
	Phone           string
	Email           string
	ExternalTokenID string
}

// Identifier returns the best identifier hint for cross-provider lookups.
// Phone wins over email because phone-only accounts can carry synthesized
// placeholder emails; those placeholders are never returned.
func (c Caller) Identifier(placeholderDomain string) string {
	if phone := strings.TrimSpace(c.Phone); phone != "" {
		return phone
	}
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return ""
	}
	if placeholderDomain != "" && strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(placeholderDomain)) {
		return ""
	}
	return email
}

type callerKey struct{}

// ContextWithCaller binds the active session to ctx.
func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller bound by ContextWithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok && caller.UserID != ""
}

// NormalizePhone keeps digits only.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsEmailIdentifier reports whether an identifier hint is an email address.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}
