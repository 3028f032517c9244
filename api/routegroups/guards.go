package routegroups

import "net/http"

// Guards bundles the middleware the route groups wrap handlers with, so the
// groups stay decoupled from the server type.
type Guards struct {
	WithSession       func(http.HandlerFunc) http.HandlerFunc
	RequirePermission func(string) func(http.HandlerFunc) http.HandlerFunc
	RequireAnyPerm    func(...string) func(http.HandlerFunc) http.HandlerFunc
}

// SessionPerm wraps a handler with session auth and a single permission check.
func (g Guards) SessionPerm(perm string, h http.HandlerFunc) http.HandlerFunc {
	return g.WithSession(g.RequirePermission(perm)(h))
}

// SessionAnyPerm allows the handler when the session holds any of the listed
// permissions.
func (g Guards) SessionAnyPerm(h http.HandlerFunc, perms ...string) http.HandlerFunc {
	return g.WithSession(g.RequireAnyPerm(perms...)(h))
}
