package gate

import (
	"strings"

	"github.com/fastygo/rolegate/domain"
)

// RouteTable maps protected path prefixes to the roles allowed on them.
type RouteTable []Route

// DefaultRoutes protects each dashboard for its own role.
func DefaultRoutes(paths Paths) RouteTable {
	return RouteTable{
		{Path: paths.AdminHome, Allowed: []domain.Role{domain.RoleAdmin}},
		{Path: paths.RiderHome, Allowed: []domain.Role{domain.RoleRider}},
		{Path: paths.CustomerHome, Allowed: []domain.Role{domain.RoleCustomer}},
	}
}

// Match returns the rule with the longest prefix covering path. The
// returned Route carries the requested path, not the prefix.
func (t RouteTable) Match(path string) (Route, bool) {
	var (
		best  Route
		found bool
	)
	for _, r := range t {
		if r.Path == "" || !hasPathPrefix(path, r.Path) {
			continue
		}
		if !found || len(r.Path) > len(best.Path) {
			best, found = r, true
		}
	}
	if !found {
		return Route{}, false
	}
	return Route{Path: path, Allowed: best.Allowed}, true
}

func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return strings.HasPrefix(path, prefix+"/")
}
