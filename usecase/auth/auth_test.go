package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/mocks"
)

type harness struct {
	uc          *UseCase
	accounts    *mocks.AccountStore
	sessions    *mocks.SessionStore
	events      *mocks.EventBus
	revocations *mocks.RevocationList
}

func newHarness() *harness {
	h := &harness{
		accounts:    mocks.NewAccountStore(),
		sessions:    mocks.NewSessionStore(),
		events:      &mocks.EventBus{},
		revocations: &mocks.RevocationList{},
	}
	h.uc = New(Options{
		Accounts:    h.accounts,
		Sessions:    h.sessions,
		Events:      h.events,
		Revocations: h.revocations,
		TTL:         time.Hour,
		BcryptCost:  bcrypt.MinCost,
	})
	return h
}

func (h *harness) signUpAndIn(t *testing.T, ext domain.ExternalIdentity) *domain.Session {
	t.Helper()
	require.NoError(t, h.uc.SignUp(context.Background(), "ident", "secret", ext))
	session, err := h.uc.SignIn(context.Background(), "ident", "secret", ext)
	require.NoError(t, err)
	return session
}

func TestSignUpAndSignIn(t *testing.T) {
	h := newHarness()
	ext := domain.ExternalIdentity{Provider: "phone_otp", Phone: "15550100", TokenID: "jti-1"}

	session := h.signUpAndIn(t, ext)
	assert.NotEmpty(t, session.ID)
	assert.NotEmpty(t, session.UserID)
	assert.Equal(t, "15550100", session.Phone)
	assert.Equal(t, "jti-1", session.TokenID)
	assert.Equal(t, "phone_otp", session.Metadata["provider"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	published := h.events.Published()
	require.Len(t, published, 1)
	assert.Equal(t, domain.SessionSignedIn, published[0].Kind)
	assert.Equal(t, session.ID, published[0].SessionID)
}

func TestSignUpDuplicate(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.uc.SignUp(context.Background(), "ident", "secret", domain.ExternalIdentity{}))

	err := h.uc.SignUp(context.Background(), "ident", "secret", domain.ExternalIdentity{})
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.uc.SignUp(context.Background(), "ident", "secret", domain.ExternalIdentity{}))

	_, err := h.uc.SignIn(context.Background(), "ident", "wrong", domain.ExternalIdentity{})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = h.uc.SignIn(context.Background(), "unknown", "secret", domain.ExternalIdentity{})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Zero(t, h.sessions.Len())
}

func TestGetSessionExpired(t *testing.T) {
	h := newHarness()
	session := h.signUpAndIn(t, domain.ExternalIdentity{})

	got, err := h.uc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)

	h.uc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = h.uc.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Zero(t, h.sessions.Len(), "expired sessions are removed")
}

type stuckSessions struct {
	*mocks.SessionStore
}

func (stuckSessions) Delete(context.Context, string) error {
	return errors.New("redis: connection refused")
}

func TestGetSessionExpiredCleanupFailure(t *testing.T) {
	h := newHarness()
	session := h.signUpAndIn(t, domain.ExternalIdentity{})

	core, logs := observer.New(zap.DebugLevel)
	h.uc.logger = zap.New(core)
	h.uc.sessions = stuckSessions{h.sessions}
	h.uc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := h.uc.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	entries := logs.FilterMessage("expired session cleanup failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, session.ID, entries[0].ContextMap()["session_id"])
}

func TestRefreshSession(t *testing.T) {
	h := newHarness()
	session := h.signUpAndIn(t, domain.ExternalIdentity{})

	refreshed, err := h.uc.RefreshSession(context.Background(), session.ID, 3*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(3*time.Hour), refreshed.ExpiresAt, time.Minute)

	published := h.events.Published()
	require.Len(t, published, 2)
	assert.Equal(t, domain.SessionRefreshed, published[1].Kind)

	_, err = h.uc.RefreshSession(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRevokeSession(t *testing.T) {
	h := newHarness()
	session := h.signUpAndIn(t, domain.ExternalIdentity{})

	require.NoError(t, h.uc.RevokeSession(context.Background(), session.ID))
	assert.Zero(t, h.sessions.Len())

	published := h.events.Published()
	assert.Equal(t, domain.SessionSignedOut, published[len(published)-1].Kind)

	assert.NoError(t, h.uc.RevokeSession(context.Background(), session.ID), "revoking twice is a no-op")
	assert.Len(t, h.events.Published(), len(published))
}

func TestForceSignOut(t *testing.T) {
	h := newHarness()
	ext := domain.ExternalIdentity{Phone: "15550100", TokenID: "jti-1"}
	first := h.signUpAndIn(t, ext)
	second, err := h.uc.SignIn(context.Background(), "ident", "secret", ext)
	require.NoError(t, err)
	require.Equal(t, 2, h.sessions.Len())

	ctx := domain.ContextWithCaller(context.Background(), first.Caller())
	require.NoError(t, h.uc.ForceSignOut(ctx))

	assert.Zero(t, h.sessions.Len())
	revoked, err := h.revocations.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	var signedOut []string
	for _, e := range h.events.Published() {
		if e.Kind == domain.SessionSignedOut {
			signedOut = append(signedOut, e.SessionID)
		}
	}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, signedOut)
}

func TestForceSignOutRequiresCaller(t *testing.T) {
	h := newHarness()
	assert.ErrorIs(t, h.uc.ForceSignOut(context.Background()), domain.ErrUnauthorized)
}
