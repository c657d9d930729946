package toolkit

import "context"

type sessionIDKey struct{}

// WithSessionID attaches the active session id to ctx so internal tool
// handlers (e.g. save-context) can address the right session without the
// model ever supplying it as an argument.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionIDFromContext retrieves the session id set by WithSessionID.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey{}).(string)
	return v, ok
}
