package core

import (
	"context"

	"github.com/google/uuid"
)

// invocationIDKey is the context key for invocation IDs
type invocationIDKey struct{}

// WithInvocationID adds an invocation ID to the context
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationID retrieves the invocation ID from context
func InvocationID(ctx context.Context) string {
	if id, ok := ctx.Value(invocationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new random identifier
func NewID() string {
	return uuid.New().String()
}

// EnsureInvocationID returns ctx unchanged when it already carries an
// invocation ID, otherwise a child context with a fresh one.
func EnsureInvocationID(ctx context.Context) context.Context {
	if InvocationID(ctx) != "" {
		return ctx
	}
	return WithInvocationID(ctx, NewID())
}
