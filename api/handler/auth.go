package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/api/transport"
	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/middleware"
	"github.com/fastygo/rolegate/pkg/httpcontext"
)

// Bridger turns a verified external identity into a backend session.
type Bridger interface {
	Bridge(ctx context.Context, ext domain.ExternalIdentity) (*domain.Session, error)
}

// SessionService is the backend session lifecycle used by the auth routes.
type SessionService interface {
	RefreshSession(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

// RoleResolver resolves the caller's role.
type RoleResolver interface {
	Resolve(ctx context.Context, userID, hint string) (domain.RoleResolution, error)
}

type AuthOptions struct {
	Bridge                 Bridger
	Sessions               SessionService
	Resolver               RoleResolver
	CookieName             string
	PlaceholderEmailDomain string
}

type AuthHandler struct {
	baseHandler
	opts AuthOptions
}

func NewAuthHandler(opts AuthOptions, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		opts:        opts,
	}
}

// @Summary Exchange a provider token for a backend session
// @Tags auth
// @Router /api/v1/auth/bridge [post]
func (h *AuthHandler) Bridge(ctx *fasthttp.RequestCtx) {
	ext, ok := httpcontext.ExternalIdentity(ctx)
	if !ok {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, err := h.opts.Bridge.Bridge(stdCtx, ext)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.setCookie(ctx, session.ID, session.ExpiresAt)
	h.respondSuccess(ctx, http.StatusOK, sessionResponse(session))
}

// @Summary Extend the current session
// @Tags auth
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(ctx *fasthttp.RequestCtx) {
	var req transport.RefreshRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.respondInvalid(ctx, "invalid payload")
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = middleware.SessionID(ctx, h.opts.CookieName)
	}
	if req.SessionID == "" {
		h.respondInvalid(ctx, "session_id is required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	session, err := h.opts.Sessions.RefreshSession(stdCtx, req.SessionID, time.Duration(req.TTL)*time.Second)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.setCookie(ctx, session.ID, session.ExpiresAt)
	h.respondSuccess(ctx, http.StatusOK, sessionResponse(session))
}

// @Summary End the current session
// @Tags auth
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	var req transport.LogoutRequest
	if body := ctx.PostBody(); len(body) > 0 {
		_ = json.Unmarshal(body, &req)
	}
	if req.SessionID == "" {
		req.SessionID = middleware.SessionID(ctx, h.opts.CookieName)
	}
	if req.SessionID == "" {
		h.respondInvalid(ctx, "session_id is required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.opts.Sessions.RevokeSession(stdCtx, req.SessionID); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.clearCookie(ctx)
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"session_id": req.SessionID})
}

// @Summary Resolve the role of the current session
// @Tags auth
// @Router /api/v1/auth/role [get]
func (h *AuthHandler) Role(ctx *fasthttp.RequestCtx) {
	caller, ok := httpcontext.Caller(ctx)
	if !ok {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.opts.Resolver.Resolve(stdCtx, caller.UserID, caller.Identifier(h.opts.PlaceholderEmailDomain))
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeIdentityConflict) {
			h.clearCookie(ctx)
			h.log(stdCtx).Warn("identity conflict, session terminated", zap.String("user_id", caller.UserID))
		}
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, res)
}

func (h *AuthHandler) setCookie(ctx *fasthttp.RequestCtx, sessionID string, expires time.Time) {
	if h.opts.CookieName == "" {
		return
	}
	cookie := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(cookie)
	cookie.SetKey(h.opts.CookieName)
	cookie.SetValue(sessionID)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSecure(true)
	cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	cookie.SetExpire(expires)
	ctx.Response.Header.SetCookie(cookie)
}

func (h *AuthHandler) clearCookie(ctx *fasthttp.RequestCtx) {
	if h.opts.CookieName == "" {
		return
	}
	ctx.Response.Header.DelClientCookie(h.opts.CookieName)
}

func sessionResponse(session *domain.Session) transport.SessionResponse {
	return transport.SessionResponse{
		SessionID: session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	}
}
