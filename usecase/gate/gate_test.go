package gate_test

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/rolegate/domain"
	"github.com/fastygo/rolegate/internal/mocks"
	"github.com/fastygo/rolegate/usecase/gate"
)

var (
	adminRoute    = gate.Route{Path: "/admin/orders?page=2", Allowed: []domain.Role{domain.RoleAdmin}}
	customerRoute = gate.Route{Path: "/customer", Allowed: []domain.Role{domain.RoleCustomer}}
)

func signedIn() *mocks.SessionSourceStub {
	return &mocks.SessionSourceStub{Caller: &domain.Caller{UserID: "u1", SessionID: "s1", Phone: "+15550100"}}
}

func resolveTo(res domain.RoleResolution) *mocks.ResolverStub {
	return &mocks.ResolverStub{ResolveFn: func(context.Context, string, string) (domain.RoleResolution, error) {
		return res, nil
	}}
}

func newGate(route gate.Route, sessions gate.SessionSource, resolver gate.Resolver) (*gate.Gate, *mocks.AuditRecorder, *mocks.DecisionCounter) {
	audit := &mocks.AuditRecorder{}
	counter := &mocks.DecisionCounter{}
	g := gate.New(gate.Options{
		Route:                  route,
		Sessions:               sessions,
		Resolver:               resolver,
		Audit:                  audit,
		Observer:               counter,
		PlaceholderEmailDomain: "phone.invalid",
		RequestID:              "req-1",
	})
	return g, audit, counter
}

func query(t *testing.T, location string) (string, url.Values) {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	return u.Path, u.Query()
}

func TestGateStartsLoading(t *testing.T) {
	g, _, _ := newGate(adminRoute, signedIn(), resolveTo(domain.DefaultResolution()))

	state := g.State()
	assert.Equal(t, gate.StatusLoading, state.Status)
	assert.True(t, state.Loading)
	assert.Equal(t, gate.ActionWait, g.Decision().Action)
}

func TestGateWithoutSession(t *testing.T) {
	resolver := &mocks.ResolverStub{}
	g, audit, _ := newGate(adminRoute, &mocks.SessionSourceStub{}, resolver)

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusUnauthenticated, state.Status)
	assert.False(t, state.Authenticated)
	assert.Empty(t, resolver.Hints(), "resolver is not consulted without a session")
	assert.Empty(t, audit.Events())

	d := g.Decision()
	require.Equal(t, gate.ActionRedirect, d.Action)
	path, q := query(t, d.Location)
	assert.Equal(t, "/login", path)
	assert.Equal(t, "/admin/orders?page=2", q.Get("redirect"))
	assert.Empty(t, q.Get("error"))
}

func TestGateSessionLookupError(t *testing.T) {
	g, _, _ := newGate(adminRoute, &mocks.SessionSourceStub{Err: errors.New("redis down")}, &mocks.ResolverStub{})

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusUnauthenticated, state.Status)
	assert.Empty(t, state.Error)
}

func TestGateAuthorized(t *testing.T) {
	g, audit, counter := newGate(adminRoute, signedIn(), resolveTo(domain.RoleResolution{Role: domain.RoleAdmin}))

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusAuthorized, state.Status)
	assert.True(t, state.Authenticated)
	assert.True(t, state.Authorized)
	require.NotNil(t, state.User)
	assert.Equal(t, "u1", state.User.ID)
	assert.Equal(t, domain.RoleAdmin, state.User.Role)

	assert.Equal(t, gate.Decision{Action: gate.ActionRender, Status: gate.StatusAuthorized}, g.Decision())
	assert.Empty(t, audit.Events())
	assert.Equal(t, 1, counter.Count("authorized"))
}

func TestGateUnauthorizedRedirectsHomeAndAudits(t *testing.T) {
	g, audit, counter := newGate(adminRoute, signedIn(), resolveTo(domain.RiderResolution(domain.RiderStatusVerified, false)))

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusUnauthorized, state.Status)
	assert.True(t, state.Authenticated)
	assert.False(t, state.Authorized)

	d := g.Decision()
	assert.Equal(t, gate.ActionRedirect, d.Action)
	assert.Equal(t, "/rider", d.Location)

	events := audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, "/admin/orders?page=2", events[0].Route)
	assert.Equal(t, domain.RoleRider, events[0].ActualRole)
	assert.Equal(t, "/rider", events[0].RedirectTo)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, 1, counter.Count("unauthorized"))
}

func TestGateAuditFailureDoesNotChangeDecision(t *testing.T) {
	g, audit, _ := newGate(adminRoute, signedIn(), resolveTo(domain.DefaultResolution()))
	audit.Err = errors.New("audit store down")

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusUnauthorized, state.Status)
	assert.Equal(t, "/customer", g.Decision().Location)
}

func TestGateBlocked(t *testing.T) {
	cases := []struct {
		name   string
		res    domain.RoleResolution
		reason string
	}{
		{"blocked admin", domain.RoleResolution{Role: domain.RoleAdmin, IsBlocked: true}, "Your account has been blocked."},
		{"rejected rider", domain.BlockedRider(), "Your rider application was rejected."},
		{"inactive verified rider", domain.RiderResolution(domain.RiderStatusVerified, true), "Your account has been blocked."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, audit, _ := newGate(adminRoute, signedIn(), resolveTo(tc.res))

			state := g.Mount(context.Background())
			assert.Equal(t, gate.StatusBlocked, state.Status)
			assert.Equal(t, tc.reason, state.Reason)
			assert.False(t, state.Authorized)

			d := g.Decision()
			path, q := query(t, d.Location)
			assert.Equal(t, "/account-status", path)
			assert.Equal(t, "blocked", q.Get("state"))
			assert.Equal(t, tc.reason, q.Get("reason"))
			assert.Empty(t, audit.Events())
		})
	}
}

func TestGateNeedsRegistration(t *testing.T) {
	riderRoute := gate.Route{Path: "/rider", Allowed: []domain.Role{domain.RoleRider}}
	g, _, _ := newGate(riderRoute, signedIn(), resolveTo(domain.RiderNeedsRegistration()))

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusNeedsRegistration, state.Status)
	assert.False(t, state.Authorized, "registration is required even on an allowed route")

	path, q := query(t, g.Decision().Location)
	assert.Equal(t, "/account-status", path)
	assert.Equal(t, "needs_registration", q.Get("state"))
	assert.NotEmpty(t, q.Get("reason"))
}

func TestGateBusinessIsTreatedAsCustomer(t *testing.T) {
	g, _, _ := newGate(customerRoute, signedIn(), resolveTo(domain.RoleResolution{Role: domain.RoleBusiness}))

	state := g.Mount(context.Background())
	assert.Equal(t, gate.StatusAuthorized, state.Status)
	assert.Equal(t, domain.RoleCustomer, state.User.Role)
}

func TestGateResolutionFailures(t *testing.T) {
	cases := []struct {
		name    string
		resolve func(context.Context, string, string) (domain.RoleResolution, error)
		message string
	}{
		{
			name: "resolver error",
			resolve: func(context.Context, string, string) (domain.RoleResolution, error) {
				return domain.RoleResolution{}, errors.New("every tier failed")
			},
			message: "could not authenticate",
		},
		{
			name: "identity conflict",
			resolve: func(context.Context, string, string) (domain.RoleResolution, error) {
				return domain.RoleResolution{}, domain.WrapError(domain.ErrCodeIdentityConflict, domain.MsgIdentityConflict, domain.ErrIdentifierClaimed)
			},
			message: domain.MsgIdentityConflict,
		},
		{
			name: "malformed resolution",
			resolve: func(context.Context, string, string) (domain.RoleResolution, error) {
				return domain.RoleResolution{Role: domain.RoleRider, IsBlocked: true, NeedsRegistration: true}, nil
			},
			message: "could not authenticate",
		},
		{
			name: "unknown role",
			resolve: func(context.Context, string, string) (domain.RoleResolution, error) {
				return domain.RoleResolution{Role: "root"}, nil
			},
			message: "could not authenticate",
		},
		{
			name: "panic",
			resolve: func(context.Context, string, string) (domain.RoleResolution, error) {
				panic("boom")
			},
			message: "could not authenticate",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _, _ := newGate(adminRoute, signedIn(), &mocks.ResolverStub{ResolveFn: tc.resolve})

			state := g.Mount(context.Background())
			assert.Equal(t, gate.StatusUnauthenticated, state.Status)
			assert.Equal(t, tc.message, state.Error)
			assert.Nil(t, state.User)

			path, q := query(t, g.Decision().Location)
			assert.Equal(t, "/login", path)
			assert.Equal(t, tc.message, q.Get("error"))
		})
	}
}

func TestGateIdentifierHint(t *testing.T) {
	cases := []struct {
		name   string
		caller domain.Caller
		hint   string
	}{
		{"phone wins", domain.Caller{UserID: "u1", Phone: "+15550100", Email: "a@example.com"}, "+15550100"},
		{"real email", domain.Caller{UserID: "u1", Email: "a@example.com"}, "a@example.com"},
		{"placeholder email", domain.Caller{UserID: "u1", Email: "15550100@phone.invalid"}, ""},
		{"nothing", domain.Caller{UserID: "u1"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolver := &mocks.ResolverStub{}
			g, _, _ := newGate(customerRoute, &mocks.SessionSourceStub{Caller: &tc.caller}, resolver)

			g.Mount(context.Background())
			assert.Equal(t, []string{tc.hint}, resolver.Hints())
		})
	}
}

func TestGateBindsCallerForResolution(t *testing.T) {
	var seen domain.Caller
	resolver := &mocks.ResolverStub{ResolveFn: func(ctx context.Context, _, _ string) (domain.RoleResolution, error) {
		seen, _ = domain.CallerFromContext(ctx)
		return domain.DefaultResolution(), nil
	}}
	g, _, _ := newGate(customerRoute, signedIn(), resolver)

	g.Mount(context.Background())
	assert.Equal(t, "s1", seen.SessionID)
}

func TestGateLatestEvaluationWins(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	resolver := &mocks.ResolverStub{ResolveFn: func(ctx context.Context, _, _ string) (domain.RoleResolution, error) {
		switch calls.Add(1) {
		case 1:
			return domain.DefaultResolution(), nil
		case 2:
			close(started)
			<-release
			return domain.RoleResolution{Role: domain.RoleAdmin}, nil
		default:
			return domain.RiderResolution(domain.RiderStatusVerified, false), nil
		}
	}}
	g, _, _ := newGate(customerRoute, signedIn(), resolver)

	require.Equal(t, gate.StatusAuthorized, g.Mount(context.Background()).Status)

	g.SessionChanged(context.Background())
	<-started
	assert.Equal(t, gate.StatusLoading, g.State().Status)

	g.SessionChanged(context.Background())
	require.Eventually(t, func() bool {
		return g.State().Status == gate.StatusUnauthorized
	}, time.Second, 5*time.Millisecond)

	close(release)
	assert.Never(t, func() bool {
		s := g.State()
		return s.User != nil && s.User.Role == domain.RoleAdmin
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, domain.RoleRider, g.State().User.Role)
}

func TestGateUnmountDropsResult(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	resolver := &mocks.ResolverStub{ResolveFn: func(context.Context, string, string) (domain.RoleResolution, error) {
		if calls.Add(1) == 2 {
			close(started)
			<-release
		}
		return domain.DefaultResolution(), nil
	}}
	g, audit, _ := newGate(adminRoute, signedIn(), resolver)

	require.Equal(t, gate.StatusUnauthorized, g.Mount(context.Background()).Status)
	require.Len(t, audit.Events(), 1)

	g.SessionChanged(context.Background())
	<-started
	g.Unmount()
	close(release)

	assert.Never(t, func() bool {
		return g.State().Status != gate.StatusLoading
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, audit.Events(), 1, "a dropped result is not audited")
}

func TestGateIgnoresChangesWhileUnmounted(t *testing.T) {
	resolver := &mocks.ResolverStub{}
	g, _, _ := newGate(customerRoute, signedIn(), resolver)

	g.SessionChanged(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, resolver.Hints())
	assert.Equal(t, gate.StatusLoading, g.State().Status)
}

func TestGateWatchReevaluatesOnMatchingEvents(t *testing.T) {
	var role atomic.Value
	role.Store(domain.RoleCustomer)
	resolver := &mocks.ResolverStub{ResolveFn: func(context.Context, string, string) (domain.RoleResolution, error) {
		return domain.RoleResolution{Role: role.Load().(domain.Role)}, nil
	}}
	g, _, _ := newGate(customerRoute, signedIn(), resolver)
	require.Equal(t, gate.StatusAuthorized, g.Mount(context.Background()).Status)
	defer g.Unmount()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan domain.SessionEvent, 2)
	done := make(chan struct{})
	go func() {
		g.Watch(ctx, events, func(e domain.SessionEvent) bool { return e.UserID == "u1" })
		close(done)
	}()

	events <- domain.SessionEvent{Kind: domain.SessionSignedIn, UserID: "someone-else"}
	role.Store(domain.RoleAdmin)
	events <- domain.SessionEvent{Kind: domain.SessionRefreshed, UserID: "u1"}

	require.Eventually(t, func() bool {
		return g.State().Status == gate.StatusUnauthorized
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, resolver.Hints(), 2)

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after the event stream closed")
	}
}

func TestGateChangedSignals(t *testing.T) {
	g, _, _ := newGate(customerRoute, signedIn(), resolveTo(domain.DefaultResolution()))

	g.Mount(context.Background())
	select {
	case <-g.Changed():
	default:
		t.Fatal("expected a change signal after mount")
	}
}

func TestRouteTableMatch(t *testing.T) {
	routes := gate.RouteTable{
		{Path: "/admin", Allowed: []domain.Role{domain.RoleAdmin}},
		{Path: "/admin/riders/", Allowed: []domain.Role{domain.RoleAdmin, domain.RoleRider}},
		{Path: "/rider", Allowed: []domain.Role{domain.RoleRider}},
	}

	route, ok := routes.Match("/admin/riders/42")
	require.True(t, ok)
	assert.Equal(t, "/admin/riders/42", route.Path)
	assert.True(t, route.Allows(domain.RoleRider))

	route, ok = routes.Match("/admin")
	require.True(t, ok)
	assert.False(t, route.Allows(domain.RoleRider))

	_, ok = routes.Match("/administrator")
	assert.False(t, ok)
	_, ok = routes.Match("/login")
	assert.False(t, ok)
}

func TestDefaultRoutes(t *testing.T) {
	paths := gate.DefaultPaths()
	routes := gate.DefaultRoutes(paths)

	for role, path := range map[domain.Role]string{
		domain.RoleAdmin:    "/admin/settings",
		domain.RoleRider:    "/rider",
		domain.RoleCustomer: "/customer/orders",
	} {
		route, ok := routes.Match(path)
		require.True(t, ok, path)
		assert.Equal(t, []domain.Role{role}, route.Allowed)
	}
	assert.Equal(t, "/customer", paths.Home(domain.RoleBusiness))
}
