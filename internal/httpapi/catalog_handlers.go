package httpapi

import (
	"net/http"

	"gatewise.org/internal/authn"
)

// orgScopeForRead returns the organization scope a read should be limited
// to: the empty string for platform admins, the token's organization for
// everyone else.
func orgScopeForRead(w http.ResponseWriter, r *http.Request, organizationID string) (string, bool) {
	id, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return "", false
	}
	if id.PlatformAdmin() {
		return organizationID, true
	}
	if organizationID != "" && id.OrganizationID != organizationID {
		writeError(w, r, http.StatusForbidden, "organization scope mismatch")
		return "", false
	}
	if organizationID != "" {
		return organizationID, true
	}
	return id.OrganizationID, true
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/v1/organizations/")
	if len(seg) < 2 {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	orgID := seg[0]

	switch {
	case len(seg) == 2 && seg[1] == "applications":
		switch r.Method {
		case http.MethodPost:
			a.createApplication(w, r, orgID)
		case http.MethodGet:
			a.listApplications(w, r, orgID)
		default:
			methodNotAllowed(w, r)
		}
	case len(seg) == 2 && seg[1] == "roles":
		switch r.Method {
		case http.MethodPost:
			a.createOrgRole(w, r, orgID)
		case http.MethodGet:
			a.listOrgRoles(w, r, orgID)
		default:
			methodNotAllowed(w, r)
		}
	case len(seg) == 3 && seg[1] == "members" && seg[2] == "sync":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		a.syncMembers(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

type createApplicationRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (a *API) createApplication(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, ok := requireManager(w, r, orgID); !ok {
		return
	}
	var req createApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	app, err := a.svc.CreateApplication(r.Context(), orgID, req.Key, req.Name)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) listApplications(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, ok := orgScopeForRead(w, r, orgID); !ok {
		return
	}
	apps, err := a.svc.ListApplications(r.Context(), orgID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (a *API) handleApplications(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/v1/applications/")
	switch {
	case len(seg) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r)
			return
		}
		a.deleteApplication(w, r, seg[0])
	case len(seg) == 2 && seg[1] == "resources":
		switch r.Method {
		case http.MethodPost:
			a.createResource(w, r, seg[0])
		case http.MethodGet:
			a.listResources(w, r, seg[0])
		default:
			methodNotAllowed(w, r)
		}
	case len(seg) == 2 && seg[1] == "roles":
		switch r.Method {
		case http.MethodPost:
			a.createAppRole(w, r, seg[0])
		case http.MethodGet:
			a.listAppRoles(w, r, seg[0])
		default:
			methodNotAllowed(w, r)
		}
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) deleteApplication(w http.ResponseWriter, r *http.Request, appID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	if err := a.svc.DeleteApplication(r.Context(), org, appID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type createResourceRequest struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) createResource(w http.ResponseWriter, r *http.Request, appID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	var req createResourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := a.svc.CreateResource(r.Context(), org, appID, req.Key, req.Name, req.Description)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listResources(w http.ResponseWriter, r *http.Request, appID string) {
	org, ok := orgScopeForRead(w, r, "")
	if !ok {
		return
	}
	resources, err := a.svc.ListResources(r.Context(), org, appID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (a *API) handleResources(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/v1/resources/")
	switch {
	case len(seg) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r)
			return
		}
		a.deleteResource(w, r, seg[0])
	case len(seg) == 2 && seg[1] == "actions":
		switch r.Method {
		case http.MethodPost:
			a.createAction(w, r, seg[0])
		case http.MethodGet:
			a.listActions(w, r, seg[0])
		default:
			methodNotAllowed(w, r)
		}
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) deleteResource(w http.ResponseWriter, r *http.Request, resourceID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	if err := a.svc.DeleteResource(r.Context(), org, resourceID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type createActionRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (a *API) createAction(w http.ResponseWriter, r *http.Request, resourceID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	var req createActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	act, err := a.svc.CreateAction(r.Context(), org, resourceID, req.Key, req.Name)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}

func (a *API) listActions(w http.ResponseWriter, r *http.Request, resourceID string) {
	org, ok := orgScopeForRead(w, r, "")
	if !ok {
		return
	}
	actions, err := a.svc.ListActions(r.Context(), org, resourceID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (a *API) syncMembers(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, ok := requireManager(w, r, orgID); !ok {
		return
	}
	payload, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unable to read request body")
		return
	}
	members, err := a.svc.SyncMembers(r.Context(), orgID, payload)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}
