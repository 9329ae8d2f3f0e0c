package httpapi

import (
	"net/http"

	"gatewise.org/internal/authz"
)

type createRoleRequest struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Active      *bool    `json:"active"`
	ActionIDs   []string `json:"action_ids"`
}

func (req *createRoleRequest) active() bool {
	if req.Active == nil {
		return true
	}
	return *req.Active
}

func (a *API) createOrgRole(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, ok := requireManager(w, r, orgID); !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := authz.RoleScope{OrganizationID: orgID}
	role, err := a.svc.CreateRole(r.Context(), scope, req.Key, req.Name, req.Description, req.active(), req.ActionIDs)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listOrgRoles(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, ok := orgScopeForRead(w, r, orgID); !ok {
		return
	}
	roles, err := a.svc.ListRoles(r.Context(), authz.RoleScope{OrganizationID: orgID})
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) createAppRole(w http.ResponseWriter, r *http.Request, appID string) {
	app, err := a.svc.GetApplication(r.Context(), appID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if _, ok := requireManager(w, r, app.OrganizationID); !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	scope := authz.RoleScope{OrganizationID: app.OrganizationID, ApplicationID: app.ID}
	role, err := a.svc.CreateRole(r.Context(), scope, req.Key, req.Name, req.Description, req.active(), req.ActionIDs)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listAppRoles(w http.ResponseWriter, r *http.Request, appID string) {
	app, err := a.svc.GetApplication(r.Context(), appID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if _, ok := orgScopeForRead(w, r, app.OrganizationID); !ok {
		return
	}
	scope := authz.RoleScope{OrganizationID: app.OrganizationID, ApplicationID: app.ID}
	roles, err := a.svc.ListRoles(r.Context(), scope)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/v1/roles/")
	switch {
	case len(seg) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getRole(w, r, seg[0])
		case http.MethodPatch:
			a.patchRole(w, r, seg[0])
		case http.MethodDelete:
			a.deleteRole(w, r, seg[0])
		default:
			methodNotAllowed(w, r)
		}
	case len(seg) == 2 && seg[1] == "actions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r)
			return
		}
		a.setRoleActions(w, r, seg[0])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, roleID string) {
	org, ok := orgScopeForRead(w, r, "")
	if !ok {
		return
	}
	role, err := a.svc.GetRole(r.Context(), org, roleID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

type patchRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (a *API) patchRole(w http.ResponseWriter, r *http.Request, roleID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	var req patchRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := a.svc.UpdateRole(r.Context(), org, roleID, authz.RolePatch{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request, roleID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	if err := a.svc.DeleteRole(r.Context(), org, roleID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type setRoleActionsRequest struct {
	ActionIDs []string `json:"action_ids"`
}

func (a *API) setRoleActions(w http.ResponseWriter, r *http.Request, roleID string) {
	org, ok := requireManager(w, r, "")
	if !ok {
		return
	}
	var req setRoleActionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.svc.SetRoleActions(r.Context(), org, roleID, req.ActionIDs); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role_id":      roleID,
		"action_count": len(req.ActionIDs),
	})
}
