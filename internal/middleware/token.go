package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/api/transport"
	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/identity"
	"github.com/fastygo/rolegate/pkg/httpcontext"
)

// ExternalToken verifies the provider token in the Authorization header and
// binds the resulting identity to the request.
func ExternalToken(verifier identity.Verifier, adapter *httpcontext.Adapter, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			raw := extractToken(ctx)
			if raw == "" {
				unauthorized(ctx, "missing provider token")
				return
			}

			stdCtx, cancel := attach(adapter, ctx)
			ext, err := verifier.Verify(stdCtx, raw)
			cancel()
			if err != nil {
				logger.Warn("provider token rejected",
					zap.String("request_id", httpcontext.RequestID(ctx)),
					zap.Error(err))
				message := "invalid provider token"
				if errors.Is(err, domain.ErrTokenRevoked) {
					message = domain.ErrTokenRevoked.Message
				}
				unauthorized(ctx, message)
				return
			}

			httpcontext.SetExternalIdentity(ctx, ext)
			next(ctx)
		}
	}
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return header
}

func attach(adapter *httpcontext.Adapter, ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if adapter != nil {
		return adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func unauthorized(ctx *fasthttp.RequestCtx, message string) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString(transport.NewError(string(domain.ErrCodeUnauthorized), message, nil).String())
}
