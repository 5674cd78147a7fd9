package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of request-scoped context keys set by the middleware.
type ContextKey string

// Context keys for request-scoped values
const (
	// UserIDContextKey holds the authenticated user's id (string)
	UserIDContextKey ContextKey = "userID"

	// ElevatedContextKey holds whether the caller may read every user's jobs (bool)
	ElevatedContextKey ContextKey = "elevated"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a generated trace ID
	TraceIDLength = 16 // 32 hex characters
)

// randReader is swapped in tests to exercise the fallback path.
var randReader io.Reader = rand.Reader

// WithIdentity returns a copy of ctx carrying the caller's identity.
func WithIdentity(ctx context.Context, userID string, elevated bool) context.Context {
	ctx = context.WithValue(ctx, UserIDContextKey, userID)
	return context.WithValue(ctx, ElevatedContextKey, elevated)
}

// Identity returns the caller's user id and elevation. ok is false when the
// request was not authenticated.
func Identity(ctx context.Context) (userID string, elevated bool, ok bool) {
	userID, ok = ctx.Value(UserIDContextKey).(string)
	if !ok || userID == "" {
		return "", false, false
	}
	elevated, _ = ctx.Value(ElevatedContextKey).(bool)
	return userID, elevated, true
}

// SetTraceID adds a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, generateTraceID())
}

// WithTraceID adds the given trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// generateTraceID returns 32 random hex characters. If the random source
// fails it falls back to a random UUID with the dashes removed.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	n, err := io.ReadFull(randReader, b)
	if err != nil {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"bytes_requested", TraceIDLength,
			"fallback", "uuid")
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}
