package auth

import (
	"context"
	"time"

	"github.com/keyxmakerx/userdir/internal/plugins/users"
)

// How a request was authenticated.
const (
	MethodBearer  = "bearer"
	MethodSession = "session"
)

// AuthContext holds the authenticated identity for one request. It is built
// from a directory record by FromUser and carries only what handlers need;
// the password hash never leaves the directory.
type AuthContext struct {
	UserID    string
	Email     string
	Name      string
	Method    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromUser maps a directory record to an AuthContext.
func FromUser(u *users.User, method string) *AuthContext {
	return &AuthContext{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Method:    method,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// UserIDFromContext returns the authenticated user's id, or "".
func UserIDFromContext(ctx context.Context) string {
	if ac := FromContext(ctx); ac != nil {
		return ac.UserID
	}
	return ""
}
