package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/api/transport"
	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/middleware"
	"github.com/fastygo/rolegate/pkg/httpcontext"
	"github.com/fastygo/rolegate/repository"
	"github.com/fastygo/rolegate/usecase/gate"
)

type GuardOptions struct {
	Factory    middleware.GateFactory
	Routes     gate.RouteTable
	Events     repository.SessionEvents
	CookieName string
	Heartbeat  time.Duration
}

// GuardHandler exposes gate decisions to client-side routers.
type GuardHandler struct {
	baseHandler
	opts GuardOptions
}

func NewGuardHandler(opts GuardOptions, adapter *httpcontext.Adapter, logger *zap.Logger) *GuardHandler {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	return &GuardHandler{
		baseHandler: newBaseHandler(adapter, logger),
		opts:        opts,
	}
}

// @Summary Evaluate the gate for a route
// @Tags guard
// @Router /api/v1/guard [get]
func (h *GuardHandler) Check(ctx *fasthttp.RequestCtx) {
	route, ok := h.route(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	g := h.opts.Factory.New(route, middleware.SessionID(ctx, h.opts.CookieName), httpcontext.RequestID(ctx))
	state := g.Mount(stdCtx)
	decision := g.Decision()
	g.Unmount()

	h.respondSuccess(ctx, http.StatusOK, guardResponse(route, state, decision))
}

// @Summary Stream gate decisions as the session changes
// @Tags guard
// @Router /api/v1/guard/watch [get]
func (h *GuardHandler) Watch(ctx *fasthttp.RequestCtx) {
	route, ok := h.route(ctx)
	if !ok {
		return
	}
	if h.opts.Events == nil {
		h.respondJSON(ctx, http.StatusNotImplemented, transport.NewError(string(domain.ErrCodeInternal), "session events unavailable", nil))
		return
	}

	stdCtx, cancel := h.streamContext(ctx)
	events, err := h.opts.Events.Subscribe(stdCtx)
	if err != nil {
		cancel()
		h.respondError(ctx, err)
		return
	}

	sessionID := middleware.SessionID(ctx, h.opts.CookieName)
	g := h.opts.Factory.New(route, sessionID, httpcontext.RequestID(ctx))
	logger := h.log(stdCtx)

	ctx.Response.Header.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer g.Unmount()

		state := g.Mount(stdCtx)
		// Without a user no event can match; signing in opens a new stream.
		if state.Status == gate.StatusUnauthenticated || state.User == nil {
			if _, err := h.write(w, g, route, gate.Decision{}); err != nil {
				logger.Debug("guard stream closed", zap.String("route", route.Path), zap.Error(err))
			}
			return
		}
		userID := state.User.ID
		go g.Watch(stdCtx, events, func(event domain.SessionEvent) bool {
			return (sessionID != "" && event.SessionID == sessionID) || event.UserID == userID
		})

		if err := h.stream(stdCtx, w, g, route); err != nil {
			logger.Debug("guard stream closed", zap.String("route", route.Path), zap.Error(err))
		}
	})
}

// stream writes every distinct decision until ctx is done or the client
// goes away. Heartbeats surface dead connections on quiet sessions.
func (h *GuardHandler) stream(ctx context.Context, w *bufio.Writer, g *gate.Gate, route gate.Route) error {
	heartbeat := time.NewTicker(h.opts.Heartbeat)
	defer heartbeat.Stop()

	var last gate.Decision
	write := func() error {
		decision, err := h.write(w, g, route, last)
		last = decision
		return err
	}

	if err := write(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.Changed():
			if err := write(); err != nil {
				return err
			}
		case <-heartbeat.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

// write emits the current decision as one SSE event unless it equals last.
func (h *GuardHandler) write(w *bufio.Writer, g *gate.Gate, route gate.Route, last gate.Decision) (gate.Decision, error) {
	state := g.State()
	decision := gate.Decide(state, route, g.Paths())
	if decision == last {
		return last, nil
	}
	payload, err := json.Marshal(guardResponse(route, state, decision))
	if err != nil {
		return last, err
	}
	if _, err := fmt.Fprintf(w, "event: decision\ndata: %s\n\n", payload); err != nil {
		return last, err
	}
	return decision, w.Flush()
}

func (h *GuardHandler) route(ctx *fasthttp.RequestCtx) (gate.Route, bool) {
	path := string(ctx.QueryArgs().Peek("route"))
	if path == "" {
		h.respondInvalid(ctx, "route is required")
		return gate.Route{}, false
	}
	route, ok := h.opts.Routes.Match(path)
	if !ok {
		h.respondInvalid(ctx, "route is not protected")
		return gate.Route{}, false
	}
	return route, true
}

func (h *GuardHandler) streamContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Detach(ctx)
	}
	return context.WithCancel(context.Background())
}

func guardResponse(route gate.Route, state gate.AuthState, decision gate.Decision) transport.GuardResponse {
	resp := transport.GuardResponse{
		Route:    route.Path,
		Action:   string(decision.Action),
		Status:   decision.Status.String(),
		Location: decision.Location,
		Reason:   decision.Reason,
	}
	if state.User != nil {
		resp.User = state.User
	}
	return resp
}
