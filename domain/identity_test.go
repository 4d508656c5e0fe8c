package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallerIdentifier(t *testing.T) {
	t.Run("phone wins over email", func(t *testing.T) {
		c := Caller{UserID: "u1", Phone: "+1 555 0100", Email: "rider@example.com"}
		assert.Equal(t, "+1 555 0100", c.Identifier("phone.invalid"))
	})

	t.Run("email when no phone", func(t *testing.T) {
		c := Caller{UserID: "u1", Email: "rider@example.com"}
		assert.Equal(t, "rider@example.com", c.Identifier("phone.invalid"))
	})

	t.Run("placeholder email is ignored", func(t *testing.T) {
		c := Caller{UserID: "u1", Email: "15550100@Phone.Invalid"}
		assert.Empty(t, c.Identifier("phone.invalid"))
	})

	t.Run("nothing known", func(t *testing.T) {
		assert.Empty(t, Caller{UserID: "u1"}.Identifier(""))
	})
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFromContext(context.Background())
	assert.False(t, ok)

	_, ok = CallerFromContext(ContextWithCaller(context.Background(), Caller{}))
	assert.False(t, ok, "a caller without user id is not bound")

	ctx := ContextWithCaller(context.Background(), Caller{UserID: "u1", SessionID: "s1"})
	caller, ok := CallerFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "s1", caller.SessionID)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "15550100", NormalizePhone("+1 (555) 01-00"))
	assert.Equal(t, "rider@example.com", NormalizeEmail("  Rider@Example.COM "))
	assert.True(t, IsEmailIdentifier("a@b.c"))
	assert.False(t, IsEmailIdentifier("15550100"))
	assert.True(t, ExternalIdentity{Phone: "  "}.IsZero())
	assert.False(t, ExternalIdentity{Email: "a@b.c"}.IsZero())
}

func TestSessionExpiryAndCaller(t *testing.T) {
	now := time.Now()
	s := &Session{ID: "s1", UserID: "u1", Phone: "1555", TokenID: "jti-1", ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.IsExpired(now))
	assert.True(t, s.IsExpired(now.Add(time.Minute)))

	var nilSession *Session
	assert.True(t, nilSession.IsExpired(now))

	c := s.Caller()
	assert.Equal(t, Caller{UserID: "u1", SessionID: "s1", Phone: "1555", ExternalTokenID: "jti-1"}, c)
}
