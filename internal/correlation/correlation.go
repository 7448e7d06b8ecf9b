// Package correlation carries a request-scoped correlation ID through a
// context.Context so it can be injected into outbound vendor HTTP calls
// and included in their log lines, tying a chain of retries back to one
// logical operation.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// ID is an opaque correlation identifier, a UUID string.
type ID string

type contextKey struct{}

// New generates a fresh correlation ID.
func New() ID {
	return ID(uuid.NewString())
}

// ToContext attaches id to ctx.
func ToContext(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation ID carried by ctx, generating one
// if none is present.
func FromContext(ctx context.Context) ID {
	if id, ok := ctx.Value(contextKey{}).(ID); ok {
		return id
	}
	return New()
}

// FromContextOrEmpty returns the correlation ID carried by ctx, or "" if
// none was attached.
func FromContextOrEmpty(ctx context.Context) ID {
	if id, ok := ctx.Value(contextKey{}).(ID); ok {
		return id
	}
	return ""
}

// String returns the string form of the id.
func (id ID) String() string {
	return string(id)
}

// IsValid reports whether id is non-empty.
func (id ID) IsValid() bool {
	return id != ""
}
