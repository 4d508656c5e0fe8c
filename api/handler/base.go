package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/api/transport"
	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/pkg/httpcontext"
	appLogger "github.com/fastygo/rolegate/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) log(ctx context.Context) *zap.Logger {
	return appLogger.WithRequestID(ctx, h.logger)
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", httpcontext.RequestID(ctx)),
			zap.String("path", string(ctx.Path())),
			zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.NewError(code, message, nil))
}

func (h baseHandler) respondInvalid(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), message, nil))
}

// mapError picks the status, code and user-facing message for err. Bridge
// failures and identity conflicts never leak their cause.
func mapError(err error) (int, string, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeBridgeFailed):
		return http.StatusBadGateway, string(domain.ErrCodeBridgeFailed), domain.MsgAccountSetupFailed
	case domain.IsDomainError(err, domain.ErrCodeIdentityConflict):
		return http.StatusConflict, string(domain.ErrCodeIdentityConflict), domain.MsgIdentityConflict
	case domain.IsDomainError(err, domain.ErrCodeTimeout):
		return http.StatusGatewayTimeout, string(domain.ErrCodeTimeout), err.Error()
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized), err.Error()
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden), err.Error()
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid), err.Error()
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound), err.Error()
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict), err.Error()
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal), "internal error"
	}
}
