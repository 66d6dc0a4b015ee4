package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the permission level of an authenticated principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

var (
	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

// IsAdmin reports whether the identity may use back-office operations.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
