package httpapi

import (
	"net/http"

	"gatewise.org/internal/authn"
	"gatewise.org/internal/authz"
)

func (a *API) handleMembers(w http.ResponseWriter, r *http.Request) {
	seg := pathSegments(r.URL.Path, "/v1/members/")
	switch {
	case len(seg) == 2 && seg[1] == "roles":
		switch r.Method {
		case http.MethodPost:
			a.assignRoles(w, r, seg[0])
		case http.MethodGet:
			a.listAssignments(w, r, seg[0])
		default:
			methodNotAllowed(w, r)
		}
	case len(seg) == 3 && seg[1] == "roles":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r)
			return
		}
		a.unassignRole(w, r, seg[0], seg[2])
	case len(seg) == 2 && seg[1] == "permissions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		a.resolvePermissions(w, r, seg[0])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

type assignRolesRequest struct {
	ApplicationID string   `json:"application_id"`
	RoleIDs       []string `json:"role_ids"`
}

func (a *API) assignRoles(w http.ResponseWriter, r *http.Request, memberID string) {
	member, err := a.svc.GetMember(r.Context(), memberID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if _, ok := requireManager(w, r, member.OrganizationID); !ok {
		return
	}
	var req assignRolesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	assigned, err := a.svc.AssignRoles(r.Context(), memberID, req.ApplicationID, req.RoleIDs)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id":      memberID,
		"assigned_count": assigned,
	})
}

func (a *API) unassignRole(w http.ResponseWriter, r *http.Request, memberID, roleID string) {
	member, err := a.svc.GetMember(r.Context(), memberID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if _, ok := requireManager(w, r, member.OrganizationID); !ok {
		return
	}
	if err := a.svc.UnassignRole(r.Context(), memberID, roleID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (a *API) listAssignments(w http.ResponseWriter, r *http.Request, memberID string) {
	member, err := a.svc.GetMember(r.Context(), memberID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if _, ok := orgScopeForRead(w, r, member.OrganizationID); !ok {
		return
	}
	assignments, err := a.svc.ListAssignments(r.Context(), memberID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

// resolvePermissions answers "what may this member do in this application".
// The target application comes from the application_id or application_key
// query parameter.
func (a *API) resolvePermissions(w http.ResponseWriter, r *http.Request, memberID string) {
	id, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}
	caller := authz.Caller{
		UserID:        id.UserID,
		PlatformAdmin: id.PlatformAdmin(),
	}
	if !caller.PlatformAdmin && a.memberships != nil && id.OrganizationID != "" {
		if m, found, err := a.memberships.GetMembership(r.Context(), id.UserID, id.OrganizationID); err == nil && found {
			caller.MemberID = m.MemberID
		}
	}

	q := r.URL.Query()
	ref := authz.ApplicationRef{
		ID:  q.Get("application_id"),
		Key: q.Get("application_key"),
	}
	res, err := a.resolver.Resolve(r.Context(), caller, memberID, ref)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
