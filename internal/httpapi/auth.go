package httpapi

import (
	"net/http"
	"strings"

	"gatewise.org/internal/authn"
)

// publicPath reports whether a path may be reached without a bearer token.
func publicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token":
		return true
	}
	return false
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := authn.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		id := authn.Identity{
			UserID:         claims.Subject,
			OrganizationID: claims.OrganizationID,
			Roles:          claims.Roles,
		}
		next.ServeHTTP(w, r.WithContext(authn.ContextWithIdentity(r.Context(), id)))
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requireManager gates catalogue and role mutations: platform admins pass for
// any organization, everyone else must hold an administrative role inside the
// target organization. It returns the organization scope the service layer
// should enforce; platform admins get the unscoped empty string.
func requireManager(w http.ResponseWriter, r *http.Request, organizationID string) (string, bool) {
	id, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return "", false
	}
	if id.PlatformAdmin() {
		if organizationID != "" {
			return organizationID, true
		}
		return "", true
	}
	if organizationID != "" && id.OrganizationID != organizationID {
		writeError(w, r, http.StatusForbidden, "organization scope mismatch")
		return "", false
	}
	if !id.HasRole("owner") && !id.HasRole("admin") {
		writeError(w, r, http.StatusForbidden, "administrative role required")
		return "", false
	}
	if organizationID != "" {
		return organizationID, true
	}
	return id.OrganizationID, true
}
