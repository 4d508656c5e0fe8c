package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/domain"
)

const (
	reasonBlocked       = "Your account has been blocked."
	reasonRejected      = "Your rider application was rejected."
	reasonRegistration  = "Complete your rider registration to continue."
	errNotAuthenticated = "could not authenticate"
)

// SessionSource reads the current session. A nil caller means there is none.
type SessionSource interface {
	Current(ctx context.Context) (*domain.Caller, error)
}

// Resolver produces role resolutions.
type Resolver interface {
	Resolve(ctx context.Context, userID, hint string) (domain.RoleResolution, error)
}

// AuditSink records denied navigations.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// Observer receives applied gate states for metrics.
type Observer interface {
	ObserveDecision(status string)
}

// Options configures a Gate.
type Options struct {
	Route    Route
	Paths    Paths
	Sessions SessionSource
	Resolver Resolver
	Audit    AuditSink
	Observer Observer
	Logger   *zap.Logger
	// PlaceholderEmailDomain marks emails synthesized for phone-only accounts.
	PlaceholderEmailDomain string
	RequestID              string
}

// Gate guards one route for the lifetime of one mount. Every mount and
// every session change restarts the machine at loading; a result is only
// applied if the gate is still mounted and no newer evaluation started.
type Gate struct {
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      AuthState
	generation uint64
	mounted    bool
	cancel     context.CancelFunc
	changed    chan struct{}
}

func New(opts Options) *Gate {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Paths == (Paths{}) {
		opts.Paths = DefaultPaths()
	}
	return &Gate{
		opts:    opts,
		logger:  opts.Logger.With(zap.String("route", opts.Route.Path)),
		state:   loadingState(),
		changed: make(chan struct{}, 1),
	}
}

// Mount activates the gate and evaluates it synchronously.
func (g *Gate) Mount(ctx context.Context) AuthState {
	g.mu.Lock()
	g.mounted = true
	g.mu.Unlock()

	gen, runCtx := g.restart(ctx)
	if runCtx != nil {
		g.evaluate(runCtx, gen)
	}
	return g.State()
}

// SessionChanged restarts the machine and evaluates in the background,
// superseding any evaluation still in flight.
func (g *Gate) SessionChanged(ctx context.Context) {
	gen, runCtx := g.restart(ctx)
	if runCtx == nil {
		return
	}
	go g.evaluate(runCtx, gen)
}

// Watch restarts the gate for every event accepted by match (all events
// when match is nil) until ctx is done or events is closed.
func (g *Gate) Watch(ctx context.Context, events <-chan domain.SessionEvent, match func(domain.SessionEvent) bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if match != nil && !match(event) {
				continue
			}
			g.logger.Debug("session changed",
				zap.String("kind", string(event.Kind)),
				zap.String("session_id", event.SessionID))
			g.SessionChanged(ctx)
		}
	}
}

// Unmount deactivates the gate. In-flight evaluations are cancelled and
// their results dropped.
func (g *Gate) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mounted = false
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

// State returns a copy of the current state.
func (g *Gate) State() AuthState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.clone()
}

// Decision maps the current state to a render or redirect decision.
func (g *Gate) Decision() Decision {
	return Decide(g.State(), g.opts.Route, g.opts.Paths)
}

// Changed is signalled after every state change. Signals coalesce, so
// readers should call State after receiving one.
func (g *Gate) Changed() <-chan struct{} {
	return g.changed
}

func (g *Gate) restart(parent context.Context) (uint64, context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.mounted {
		return 0, nil
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.generation++
	runCtx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	g.state = loadingState()
	g.signal()
	return g.generation, runCtx
}

func (g *Gate) evaluate(ctx context.Context, gen uint64) {
	next := func() (state AuthState) {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("gate evaluation panicked", zap.Any("panic", r))
				state = unauthenticatedState(errNotAuthenticated)
			}
		}()
		return g.transition(ctx)
	}()
	g.apply(ctx, gen, next)
}

func (g *Gate) transition(ctx context.Context) AuthState {
	caller, err := g.opts.Sessions.Current(ctx)
	if err != nil {
		g.logger.Warn("session lookup failed", zap.Error(err))
		return unauthenticatedState("")
	}
	if caller == nil || caller.UserID == "" {
		return unauthenticatedState("")
	}

	hint := caller.Identifier(g.opts.PlaceholderEmailDomain)
	res, err := g.opts.Resolver.Resolve(domain.ContextWithCaller(ctx, *caller), caller.UserID, hint)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityConflict) {
			return unauthenticatedState(domain.MsgIdentityConflict)
		}
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("role resolution failed", zap.String("user_id", caller.UserID), zap.Error(err))
		}
		return unauthenticatedState(errNotAuthenticated)
	}
	if err := validate(res); err != nil {
		g.logger.Error("malformed role resolution", zap.String("user_id", caller.UserID), zap.Error(err))
		return unauthenticatedState(errNotAuthenticated)
	}

	user := &User{
		ID:          caller.UserID,
		Role:        res.Role.ForAuthorization(),
		IsBlocked:   res.IsBlocked,
		RiderStatus: res.RiderStatus,
	}
	state := AuthState{Authenticated: true, User: user}

	switch {
	case res.IsBlocked:
		state.Status = StatusBlocked
		state.Reason = reasonBlocked
		if res.Role == domain.RoleRider && res.RiderStatus == domain.RiderStatusRejected {
			state.Reason = reasonRejected
		}
	case res.NeedsRegistration && res.Role == domain.RoleRider:
		state.Status = StatusNeedsRegistration
		state.Reason = reasonRegistration
	case g.opts.Route.Allows(user.Role):
		state.Status = StatusAuthorized
		state.Authorized = true
	default:
		state.Status = StatusUnauthorized
	}
	return state
}

func (g *Gate) apply(ctx context.Context, gen uint64, next AuthState) {
	g.mu.Lock()
	if !g.mounted || gen != g.generation {
		g.mu.Unlock()
		g.logger.Debug("dropping superseded gate result", zap.Uint64("generation", gen))
		return
	}
	g.state = next
	g.signal()
	g.mu.Unlock()

	if g.opts.Observer != nil {
		g.opts.Observer.ObserveDecision(next.Status.String())
	}
	if next.Status == StatusUnauthorized {
		g.audit(ctx, next)
	}
}

func (g *Gate) audit(ctx context.Context, state AuthState) {
	event := domain.AuditEvent{
		ID:         uuid.NewString(),
		UserID:     state.User.ID,
		Route:      g.opts.Route.Path,
		ActualRole: state.User.Role,
		RedirectTo: g.opts.Paths.Home(state.User.Role),
		RequestID:  g.opts.RequestID,
		OccurredAt: time.Now().UTC(),
	}
	g.logger.Warn("security audit: unauthorized route access",
		zap.String("user_id", event.UserID),
		zap.String("actual_role", event.ActualRole.String()),
		zap.String("redirect_to", event.RedirectTo))

	if g.opts.Audit == nil {
		return
	}
	if err := g.opts.Audit.Record(context.WithoutCancel(ctx), event); err != nil {
		g.logger.Error("audit record failed", zap.Error(err))
	}
}

func (g *Gate) signal() {
	select {
	case g.changed <- struct{}{}:
	default:
	}
}

func validate(res domain.RoleResolution) error {
	switch res.Role {
	case domain.RoleAdmin, domain.RoleRider, domain.RoleBusiness, domain.RoleCustomer:
	default:
		return fmt.Errorf("unknown role %q", res.Role)
	}
	if res.IsBlocked && res.NeedsRegistration {
		return errors.New("resolution both blocked and awaiting registration")
	}
	if res.Role != domain.RoleRider && res.RiderStatus != "" {
		return errors.New("rider status on non-rider resolution")
	}
	return nil
}

// Paths returns the redirect targets the gate decides against.
func (g *Gate) Paths() Paths {
	return g.opts.Paths
}
