package gate

import (
	"net/url"
	"slices"

	"github.com/fastygo/rolegate/domain"
)

// Status is the gate's state machine position.
type Status int

const (
	StatusLoading Status = iota
	StatusUnauthenticated
	StatusAuthorized
	StatusUnauthorized
	StatusBlocked
	StatusNeedsRegistration
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthorized:
		return "authorized"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusBlocked:
		return "blocked"
	case StatusNeedsRegistration:
		return "needs_registration"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// User is the resolved principal as seen by the gate. Role is already
// normalized for authorization.
type User struct {
	ID          string             `json:"id"`
	Role        domain.Role        `json:"role"`
	IsBlocked   bool               `json:"is_blocked"`
	RiderStatus domain.RiderStatus `json:"rider_status,omitempty"`
}

// AuthState is owned by one Gate and recomputed, never patched.
type AuthState struct {
	Status        Status `json:"status"`
	Loading       bool   `json:"loading"`
	Authenticated bool   `json:"authenticated"`
	Authorized    bool   `json:"authorized"`
	User          *User  `json:"user,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (s AuthState) clone() AuthState {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func loadingState() AuthState {
	return AuthState{Status: StatusLoading, Loading: true}
}

func unauthenticatedState(errMsg string) AuthState {
	return AuthState{Status: StatusUnauthenticated, Error: errMsg}
}

// Route is the protected location a gate guards.
type Route struct {
	// Path is the originally requested location, preserved for post-login return.
	Path    string
	Allowed []domain.Role
}

func (r Route) Allows(role domain.Role) bool {
	return slices.Contains(r.Allowed, role)
}

// Paths are the redirect targets.
type Paths struct {
	Login         string
	AccountStatus string
	AdminHome     string
	RiderHome     string
	CustomerHome  string
}

func DefaultPaths() Paths {
	return Paths{
		Login:         "/login",
		AccountStatus: "/account-status",
		AdminHome:     "/admin",
		RiderHome:     "/rider",
		CustomerHome:  "/customer",
	}
}

// Home returns the dashboard for a role.
func (p Paths) Home(role domain.Role) string {
	switch role.ForAuthorization() {
	case domain.RoleAdmin:
		return p.AdminHome
	case domain.RoleRider:
		return p.RiderHome
	default:
		return p.CustomerHome
	}
}

// Action tells the router what to do with a request.
type Action string

const (
	ActionWait     Action = "wait"
	ActionRender   Action = "render"
	ActionRedirect Action = "redirect"
)

// Decision is the render/redirect outcome of an AuthState.
type Decision struct {
	Action   Action `json:"action"`
	Status   Status `json:"status"`
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Decide maps a state to a render or redirect decision.
func Decide(state AuthState, route Route, paths Paths) Decision {
	d := Decision{Status: state.Status, Reason: state.Reason}
	switch state.Status {
	case StatusLoading:
		d.Action = ActionWait
	case StatusAuthorized:
		d.Action = ActionRender
	case StatusUnauthenticated:
		d.Action = ActionRedirect
		q := url.Values{}
		if route.Path != "" {
			q.Set("redirect", route.Path)
		}
		if state.Error != "" {
			q.Set("error", state.Error)
			d.Reason = state.Error
		}
		d.Location = withQuery(paths.Login, q)
	case StatusBlocked, StatusNeedsRegistration:
		d.Action = ActionRedirect
		q := url.Values{}
		q.Set("state", state.Status.String())
		q.Set("reason", state.Reason)
		d.Location = withQuery(paths.AccountStatus, q)
	case StatusUnauthorized:
		d.Action = ActionRedirect
		role := domain.RoleCustomer
		if state.User != nil {
			role = state.User.Role
		}
		d.Location = paths.Home(role)
	}
	return d
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
