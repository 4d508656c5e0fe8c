package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/rolegate/api/transport"
	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/infrastructure/monitor"
	"github.com/fastygo/rolegate/internal/middleware"
	"github.com/fastygo/rolegate/internal/mocks"
	"github.com/fastygo/rolegate/pkg/httpcontext"
	"github.com/fastygo/rolegate/usecase/gate"
)

type bridgeFunc func(ctx context.Context, ext domain.ExternalIdentity) (*domain.Session, error)

func (f bridgeFunc) Bridge(ctx context.Context, ext domain.ExternalIdentity) (*domain.Session, error) {
	return f(ctx, ext)
}

type sessionService struct {
	revoked []string
}

func (s *sessionService) RefreshSession(_ context.Context, id string, ttl time.Duration) (*domain.Session, error) {
	if id != "s1" {
		return nil, domain.ErrSessionNotFound
	}
	return &domain.Session{ID: id, UserID: "u1", ExpiresAt: time.Now().Add(ttl)}, nil
}

func (s *sessionService) RevokeSession(_ context.Context, id string) error {
	s.revoked = append(s.revoked, id)
	return nil
}

type sessionMap map[string]*domain.Session

func (m sessionMap) GetSession(_ context.Context, id string) (*domain.Session, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	return env
}

func request(method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

var adapter = httpcontext.NewAdapter(time.Second)

func TestMapError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{&domain.IdentityBridgeError{Stage: "sign_up", Err: errors.New("duplicate key value")}, http.StatusBadGateway, "BRIDGE_FAILED", domain.MsgAccountSetupFailed},
		{domain.WrapError(domain.ErrCodeIdentityConflict, domain.MsgIdentityConflict, domain.ErrIdentifierClaimed), http.StatusConflict, "IDENTITY_CONFLICT", domain.MsgIdentityConflict},
		{domain.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND", "session not found"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL", "internal error"},
	}
	for _, tc := range cases {
		status, code, message := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code)
		assert.Equal(t, tc.message, message)
	}
}

func TestAuthBridge(t *testing.T) {
	ok := bridgeFunc(func(_ context.Context, ext domain.ExternalIdentity) (*domain.Session, error) {
		return &domain.Session{ID: "s1", UserID: "u1", Phone: ext.Phone, ExpiresAt: time.Now().Add(time.Hour)}, nil
	})
	failing := bridgeFunc(func(context.Context, domain.ExternalIdentity) (*domain.Session, error) {
		return nil, &domain.IdentityBridgeError{Stage: "sign_in_after_sign_up", Err: errors.New("replica lag")}
	})

	t.Run("success sets the session cookie", func(t *testing.T) {
		h := NewAuthHandler(AuthOptions{Bridge: ok, CookieName: "rg_session"}, adapter, nil)
		ctx := request(fasthttp.MethodPost, "/api/v1/auth/bridge")
		httpcontext.SetExternalIdentity(ctx, domain.ExternalIdentity{Phone: "15550100"})

		h.Bridge(ctx)
		require.Equal(t, http.StatusOK, ctx.Response.StatusCode())

		var resp transport.SessionResponse
		require.NoError(t, json.Unmarshal(decode(t, ctx).Data, &resp))
		assert.Equal(t, "s1", resp.SessionID)

		cookie := fasthttp.AcquireCookie()
		defer fasthttp.ReleaseCookie(cookie)
		cookie.SetKey("rg_session")
		require.True(t, ctx.Response.Header.Cookie(cookie))
		assert.Equal(t, "s1", string(cookie.Value()))
		assert.True(t, cookie.HTTPOnly())
	})

	t.Run("failure hides the cause", func(t *testing.T) {
		h := NewAuthHandler(AuthOptions{Bridge: failing}, adapter, nil)
		ctx := request(fasthttp.MethodPost, "/api/v1/auth/bridge")
		httpcontext.SetExternalIdentity(ctx, domain.ExternalIdentity{Email: "a@example.com"})

		h.Bridge(ctx)
		assert.Equal(t, http.StatusBadGateway, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), domain.MsgAccountSetupFailed)
		assert.NotContains(t, string(ctx.Response.Body()), "replica lag")
	})

	t.Run("no identity", func(t *testing.T) {
		h := NewAuthHandler(AuthOptions{Bridge: ok}, adapter, nil)
		ctx := request(fasthttp.MethodPost, "/api/v1/auth/bridge")
		h.Bridge(ctx)
		assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	})
}

func TestAuthRefreshAndLogout(t *testing.T) {
	sessions := &sessionService{}
	h := NewAuthHandler(AuthOptions{Sessions: sessions, CookieName: "rg_session"}, adapter, nil)

	ctx := request(fasthttp.MethodPost, "/api/v1/auth/refresh")
	h.Refresh(ctx)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = request(fasthttp.MethodPost, "/api/v1/auth/refresh")
	ctx.Request.SetBodyString(`{"session_id":"s1","ttl_seconds":60}`)
	h.Refresh(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	ctx = request(fasthttp.MethodPost, "/api/v1/auth/refresh")
	ctx.Request.SetBodyString(`{"session_id":"missing"}`)
	h.Refresh(ctx)
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())

	ctx = request(fasthttp.MethodPost, "/api/v1/auth/logout")
	ctx.Request.Header.SetCookie("rg_session", "s1")
	h.Logout(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, []string{"s1"}, sessions.revoked)
}

func TestAuthRole(t *testing.T) {
	t.Run("resolution", func(t *testing.T) {
		resolver := &mocks.ResolverStub{ResolveFn: func(context.Context, string, string) (domain.RoleResolution, error) {
			return domain.RiderNeedsRegistration(), nil
		}}
		h := NewAuthHandler(AuthOptions{Resolver: resolver, PlaceholderEmailDomain: "phone.invalid"}, adapter, nil)
		ctx := request(fasthttp.MethodGet, "/api/v1/auth/role")
		httpcontext.SetCaller(ctx, domain.Caller{UserID: "u1", Email: "15550100@phone.invalid"})

		h.Role(ctx)
		require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
		var res domain.RoleResolution
		require.NoError(t, json.Unmarshal(decode(t, ctx).Data, &res))
		assert.Equal(t, domain.RiderNeedsRegistration(), res)
		assert.Equal(t, []string{""}, resolver.Hints(), "placeholder emails are not used as hints")
	})

	t.Run("identity conflict", func(t *testing.T) {
		resolver := &mocks.ResolverStub{ResolveFn: func(context.Context, string, string) (domain.RoleResolution, error) {
			return domain.RoleResolution{}, domain.WrapError(domain.ErrCodeIdentityConflict, domain.MsgIdentityConflict, domain.ErrIdentifierClaimed)
		}}
		h := NewAuthHandler(AuthOptions{Resolver: resolver, CookieName: "rg_session"}, adapter, nil)
		ctx := request(fasthttp.MethodGet, "/api/v1/auth/role")
		httpcontext.SetCaller(ctx, domain.Caller{UserID: "u1", Phone: "923001234567"})

		h.Role(ctx)
		assert.Equal(t, http.StatusConflict, ctx.Response.StatusCode())
		env := decode(t, ctx)
		assert.Equal(t, "IDENTITY_CONFLICT", env.Code)
		assert.Contains(t, string(env.Error), "linked to a different account")
	})

	t.Run("no session", func(t *testing.T) {
		h := NewAuthHandler(AuthOptions{Resolver: &mocks.ResolverStub{}}, adapter, nil)
		ctx := request(fasthttp.MethodGet, "/api/v1/auth/role")
		h.Role(ctx)
		assert.Equal(t, http.StatusUnauthorized, ctx.Response.StatusCode())
	})
}

func TestGuardCheck(t *testing.T) {
	factory := middleware.GateFactory{
		Sessions: sessionMap{"s1": {ID: "s1", UserID: "u1"}},
		Resolver: &mocks.ResolverStub{ResolveFn: func(context.Context, string, string) (domain.RoleResolution, error) {
			return domain.RoleResolution{Role: domain.RoleAdmin}, nil
		}},
		Paths: gate.DefaultPaths(),
	}
	h := NewGuardHandler(GuardOptions{
		Factory:    factory,
		Routes:     gate.DefaultRoutes(gate.DefaultPaths()),
		CookieName: "rg_session",
	}, adapter, nil)

	ctx := request(fasthttp.MethodGet, "/api/v1/guard?route=/admin/users")
	ctx.Request.Header.Set("X-Session-ID", "s1")
	h.Check(ctx)
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	var resp transport.GuardResponse
	require.NoError(t, json.Unmarshal(decode(t, ctx).Data, &resp))
	assert.Equal(t, "/admin/users", resp.Route)
	assert.Equal(t, "render", resp.Action)
	assert.Equal(t, "authorized", resp.Status)

	ctx = request(fasthttp.MethodGet, "/api/v1/guard?route=/customer")
	ctx.Request.Header.Set("X-Session-ID", "s1")
	h.Check(ctx)
	require.NoError(t, json.Unmarshal(decode(t, ctx).Data, &resp))
	assert.Equal(t, "redirect", resp.Action)
	assert.Equal(t, "/admin", resp.Location)

	ctx = request(fasthttp.MethodGet, "/api/v1/guard?route=/login")
	h.Check(ctx)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = request(fasthttp.MethodGet, "/api/v1/guard/watch?route=/admin")
	h.Watch(ctx)
	assert.Equal(t, http.StatusNotImplemented, ctx.Response.StatusCode(), "no event source configured")
}

func TestGuardWatchUnauthenticated(t *testing.T) {
	h := NewGuardHandler(GuardOptions{
		Factory: middleware.GateFactory{
			Sessions: sessionMap{},
			Resolver: &mocks.ResolverStub{},
			Paths:    gate.DefaultPaths(),
		},
		Routes:     gate.DefaultRoutes(gate.DefaultPaths()),
		Events:     &mocks.EventBus{},
		CookieName: "rg_session",
	}, adapter, nil)

	ctx := request(fasthttp.MethodGet, "/api/v1/guard/watch?route=/admin")
	h.Watch(ctx)
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	// Reading the body drains the stream writer, so this only returns
	// once the stream has closed.
	body := string(ctx.Response.Body())
	assert.Equal(t, 1, strings.Count(body, "event: decision"))
	assert.Contains(t, body, `"status":"unauthenticated"`)
	assert.Contains(t, body, `"action":"redirect"`)
	assert.NotContains(t, body, "keep-alive")
}

type statusFunc func() monitor.Status

func (f statusFunc) GetStatus() monitor.Status { return f() }

func TestHealth(t *testing.T) {
	healthy := NewHealthHandler(statusFunc(func() monitor.Status {
		return monitor.Status{PostgreSQL: true, Redis: true, Outbox: true}
	}), adapter, nil)
	ctx := request(fasthttp.MethodGet, "/health")
	healthy.Check(ctx)
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	degraded := NewHealthHandler(statusFunc(func() monitor.Status {
		return monitor.Status{PostgreSQL: true, Outbox: true, OutboxSize: 3}
	}), adapter, nil)
	ctx = request(fasthttp.MethodGet, "/health")
	degraded.Check(ctx)
	assert.Equal(t, http.StatusServiceUnavailable, ctx.Response.StatusCode())
	assert.Equal(t, "DEGRADED", decode(t, ctx).Code)
}
