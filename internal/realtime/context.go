package realtime

import "context"

type connIDKey struct{}

// WithConnID marks ctx as originating from the realtime connection id.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey{}, connID)
}

// ConnIDFromContext returns the originating connection id, or "" for plain HTTP requests.
func ConnIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	connID, _ := ctx.Value(connIDKey{}).(string)
	return connID
}
