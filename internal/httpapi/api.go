package httpapi

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"gatewise.org/internal/authn"
	"gatewise.org/internal/authz"
	"gatewise.org/internal/obs"
)

// Config carries the collaborators the HTTP surface needs.
type Config struct {
	Service     *authz.Service
	Resolver    *authz.Resolver
	Memberships authz.MembershipProvider
	ReadyProbe  func() bool
	Version     string

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
	TokenTTL      time.Duration
}

// API is the HTTP transport over the authorization service.
type API struct {
	mux         *http.ServeMux
	svc         *authz.Service
	resolver    *authz.Resolver
	memberships authz.MembershipProvider
	ready       func() bool
	version     string
	tokenTTL    time.Duration

	rateBurst     int
	ratePerSecond int
	maxBodyBytes  int64
}

// New wires the routes. Collaborators must be non-nil; probes and limits
// fall back to defaults.
func New(cfg Config) *API {
	a := &API{
		mux:           http.NewServeMux(),
		svc:           cfg.Service,
		resolver:      cfg.Resolver,
		memberships:   cfg.Memberships,
		ready:         cfg.ReadyProbe,
		version:       cfg.Version,
		tokenTTL:      cfg.TokenTTL,
		rateBurst:     cfg.RateBurst,
		ratePerSecond: cfg.RatePerSecond,
		maxBodyBytes:  cfg.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = func() bool { return true }
	}
	if a.version == "" {
		a.version = "dev"
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 50
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 25
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.HandleFunc("/v1/auth/token", a.handleToken)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizations)
	a.mux.HandleFunc("/v1/applications/", a.handleApplications)
	a.mux.HandleFunc("/v1/resources/", a.handleResources)
	a.mux.HandleFunc("/v1/roles/", a.handleRoles)
	a.mux.HandleFunc("/v1/members/", a.handleMembers)
	return a
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if !a.ready() {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service":    "gatewise",
		"version":    a.version,
		"go_version": runtime.Version(),
	})
}

type tokenRequest struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Roles          []string `json:"roles"`
}

// handleToken issues a development token. Production deployments front this
// service with a real identity provider and disable the endpoint.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	token, err := authn.GenerateToken(req.UserID, strings.TrimSpace(req.OrganizationID), req.Roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(a.tokenTTL.Seconds()),
	})
}

// pathSegments strips the prefix and splits the remainder, dropping empty
// trailing segments.
func pathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
