package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/rolegate/domain"
	appLogger "github.com/fastygo/rolegate/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
)

// fasthttp user value keys.
const (
	userValueRequestID = "rolegate.request_id"
	userValueCaller    = "rolegate.caller"
	userValueIdentity  = "rolegate.external_identity"
)

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach creates a context with timeout derived from the adapter and enriches
// it with request metadata and the session caller, when one was bound.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	return enrich(stdCtx, ctx), cancel
}

// Detach is Attach without the deadline, for long-lived streams.
func (a *Adapter) Detach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithCancel(context.Background())
	return enrich(stdCtx, ctx), cancel
}

func enrich(stdCtx context.Context, ctx *fasthttp.RequestCtx) context.Context {
	reqID := RequestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}
	if caller, ok := Caller(ctx); ok {
		stdCtx = domain.ContextWithCaller(stdCtx, caller)
	}
	return stdCtx
}

// RequestID returns the request id, generating and echoing one on first use.
func RequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if id, ok := ctx.UserValue(userValueRequestID).(string); ok && id != "" {
		return id
	}
	id := string(ctx.Request.Header.Peek("X-Request-ID"))
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	ctx.SetUserValue(userValueRequestID, id)
	ctx.Response.Header.Set("X-Request-ID", id)
	return id
}

// SetCaller binds the authenticated session caller to the request.
func SetCaller(ctx *fasthttp.RequestCtx, caller domain.Caller) {
	ctx.SetUserValue(userValueCaller, caller)
}

func Caller(ctx *fasthttp.RequestCtx) (domain.Caller, bool) {
	caller, ok := ctx.UserValue(userValueCaller).(domain.Caller)
	return caller, ok && caller.UserID != ""
}

// SetExternalIdentity binds a verified provider identity to the request.
func SetExternalIdentity(ctx *fasthttp.RequestCtx, ext domain.ExternalIdentity) {
	ctx.SetUserValue(userValueIdentity, ext)
}

func ExternalIdentity(ctx *fasthttp.RequestCtx) (domain.ExternalIdentity, bool) {
	ext, ok := ctx.UserValue(userValueIdentity).(domain.ExternalIdentity)
	return ext, ok && !ext.IsZero()
}
