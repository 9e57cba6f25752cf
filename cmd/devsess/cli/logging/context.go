package logging

import (
	"context"
)

// Context keys for logging values.
// Using private types to avoid key collisions.
type contextKey int

const (
	sessionKey contextKey = iota
	componentKey
	taskIDKey
	backendKey
)

// WithSession adds a session name to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// WithComponent adds a component name to the context.
// Component names identify the subsystem generating logs (e.g., "store", "engine", "migrate").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithTaskID adds a normalized task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// WithBackend adds a repository backend type to the context (e.g., "local", "github").
func WithBackend(ctx context.Context, backend string) context.Context {
	return context.WithValue(ctx, backendKey, backend)
}

// SessionFromContext extracts the session name from the context.
// Returns empty string if not set.
func SessionFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionKey)
}

// ComponentFromContext extracts the component name from the context.
// Returns empty string if not set.
func ComponentFromContext(ctx context.Context) string {
	return stringValue(ctx, componentKey)
}

// TaskIDFromContext extracts the task ID from the context.
// Returns empty string if not set.
func TaskIDFromContext(ctx context.Context) string {
	return stringValue(ctx, taskIDKey)
}

// BackendFromContext extracts the backend type from the context.
// Returns empty string if not set.
func BackendFromContext(ctx context.Context) string {
	return stringValue(ctx, backendKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
