package auth

import "context"

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession attaches the authenticated session to a request context.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// SessionFromContext returns the session placed by the auth middleware, or
// nil for anonymous requests.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey).(*Session)
	return sess
}
