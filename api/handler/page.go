package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/middleware"
	"github.com/fastygo/rolegate/pkg/httpcontext"
)

// PageHandler renders the role dashboards once the guard let a request through.
type PageHandler struct {
	baseHandler
}

func NewPageHandler(adapter *httpcontext.Adapter, logger *zap.Logger) *PageHandler {
	return &PageHandler{baseHandler: newBaseHandler(adapter, logger)}
}

func (h *PageHandler) Dashboard(ctx *fasthttp.RequestCtx) {
	user, ok := middleware.GateUser(ctx)
	if !ok {
		h.respondError(ctx, domain.ErrUnauthorized)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]interface{}{
		"page": string(ctx.Path()),
		"user": user,
	})
}
