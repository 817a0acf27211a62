package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// UserContext holds authenticated user information
type UserContext struct {
	UserID   uuid.UUID
	Email    string
	FullName string
	CRMID    string
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok && user != nil
}

// MustFromContext extracts user context or panics
func MustFromContext(ctx context.Context) *UserContext {
	user, ok := FromContext(ctx)
	if !ok {
		panic("user context not found in context")
	}
	return user
}

// Initials returns initials from the full name (e.g., "Ivan Petrov" -> "IP")
func (u *UserContext) Initials() string {
	var b strings.Builder
	for _, part := range strings.Fields(u.FullName) {
		for _, r := range part {
			b.WriteString(strings.ToUpper(string(r)))
			break
		}
	}
	return b.String()
}
