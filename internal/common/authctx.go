package common

import (
	"context"
	"slices"
)

type ctxKey string

const sessionKey ctxKey = "auth/session"

// Session describes the authenticated customer attached to a request.
type Session struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the session carries the exact role label.
func (s Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// WithSession stores the authenticated session on the provided context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFrom extracts the authenticated session from the context if present.
func SessionFrom(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok || s.UserID == "" {
		return Session{}, false
	}
	return s, true
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	s, ok := SessionFrom(ctx)
	if !ok {
		return "", false
	}
	return s.UserID, true
}

// IsAuthenticated reports whether the request carries a session.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := SessionFrom(ctx)
	return ok
}
