package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/pkg/httpcontext"
)

const sessionHeader = "X-Session-ID"

// SessionReader loads live backend sessions.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

// SessionID reads the backend session id from the X-Session-ID header or
// the session cookie.
func SessionID(ctx *fasthttp.RequestCtx, cookieName string) string {
	if id := strings.TrimSpace(string(ctx.Request.Header.Peek(sessionHeader))); id != "" {
		return id
	}
	if cookieName == "" {
		return ""
	}
	return strings.TrimSpace(string(ctx.Request.Header.Cookie(cookieName)))
}

// RequireSession rejects requests without a live backend session and binds
// the session caller for downstream handlers.
func RequireSession(sessions SessionReader, cookieName string, adapter *httpcontext.Adapter, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			id := SessionID(ctx, cookieName)
			if id == "" {
				unauthorized(ctx, "missing session")
				return
			}

			stdCtx, cancel := attach(adapter, ctx)
			session, err := sessions.GetSession(stdCtx, id)
			cancel()
			if err != nil {
				if !errors.Is(err, domain.ErrSessionNotFound) {
					logger.Error("session lookup failed",
						zap.String("request_id", httpcontext.RequestID(ctx)),
						zap.Error(err))
				}
				unauthorized(ctx, "invalid session")
				return
			}

			httpcontext.SetCaller(ctx, session.Caller())
			next(ctx)
		}
	}
}

// RequestSessions is the gate's view of one request's session. A missing or
// expired session reads as no session.
type RequestSessions struct {
	Reader    SessionReader
	SessionID string
}

func (s RequestSessions) Current(ctx context.Context) (*domain.Caller, error) {
	if s.SessionID == "" || s.Reader == nil {
		return nil, nil
	}
	session, err := s.Reader.GetSession(ctx, s.SessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	caller := session.Caller()
	return &caller, nil
}
