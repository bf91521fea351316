package auth

import (
	"context"
)

// Context keys for authentication data
type contextKey string

// ContextKeyStreamerID is the context key for the authenticated streamer ID
const ContextKeyStreamerID contextKey = "streamer_id"

// WithStreamerID adds the streamer ID to the context
func WithStreamerID(ctx context.Context, streamerID string) context.Context {
	return context.WithValue(ctx, ContextKeyStreamerID, streamerID)
}

// StreamerIDFromContext retrieves the streamer ID from the context
func StreamerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyStreamerID).(string)
	return id, ok
}
