package authn

import (
	"context"
	"strings"
)

// Identity is the verified caller behind a request.
type Identity struct {
	UserID         string
	OrganizationID string
	Roles          []string
}

// PlatformAdmin reports whether the identity carries the global
// platform-admin role.
func (id Identity) PlatformAdmin() bool {
	for _, r := range id.Roles {
		if r == RolePlatformAdmin {
			return true
		}
	}
	return false
}

// HasRole checks for a specific role (case-insensitive).
func (id Identity) HasRole(role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityKey struct{}

// ContextWithIdentity stores the verified caller identity in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, &id)
}

// IdentityFromContext extracts the caller identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// UserIDFromContext returns the authenticated user ID if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(id.UserID) == "" {
		return "", false
	}
	return id.UserID, true
}
