package middleware

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/pkg/httpcontext"
	"github.com/fastygo/rolegate/usecase/gate"
)

const userValueGateUser = "rolegate.gate_user"

// GateFactory builds one gate per guarded request or stream.
type GateFactory struct {
	Sessions               SessionReader
	Resolver               gate.Resolver
	Audit                  gate.AuditSink
	Observer               gate.Observer
	Paths                  gate.Paths
	PlaceholderEmailDomain string
	Logger                 *zap.Logger
}

func (f GateFactory) New(route gate.Route, sessionID, requestID string) *gate.Gate {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return gate.New(gate.Options{
		Route:                  route,
		Paths:                  f.Paths,
		Sessions:               RequestSessions{Reader: f.Sessions, SessionID: sessionID},
		Resolver:               f.Resolver,
		Audit:                  f.Audit,
		Observer:               f.Observer,
		Logger:                 logger.With(zap.String("request_id", requestID)),
		PlaceholderEmailDomain: f.PlaceholderEmailDomain,
		RequestID:              requestID,
	})
}

// Guard evaluates a gate for every request under a protected prefix and
// either lets it through or redirects. Unprotected paths pass untouched.
func Guard(factory GateFactory, routes gate.RouteTable, cookieName string, adapter *httpcontext.Adapter) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			route, ok := routes.Match(string(ctx.Path()))
			if !ok {
				next(ctx)
				return
			}
			route.Path = string(ctx.RequestURI())

			g := factory.New(route, SessionID(ctx, cookieName), httpcontext.RequestID(ctx))
			stdCtx, cancel := attach(adapter, ctx)
			defer cancel()

			state := g.Mount(stdCtx)
			decision := g.Decision()
			g.Unmount()

			switch decision.Action {
			case gate.ActionRender:
				ctx.SetUserValue(userValueGateUser, state.User)
				next(ctx)
			case gate.ActionRedirect:
				ctx.Redirect(decision.Location, fasthttp.StatusFound)
			default:
				ctx.Response.Header.Set("Retry-After", "1")
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			}
		}
	}
}

// GateUser returns the user authorized by Guard.
func GateUser(ctx *fasthttp.RequestCtx) (*gate.User, bool) {
	user, ok := ctx.UserValue(userValueGateUser).(*gate.User)
	return user, ok && user != nil
}
