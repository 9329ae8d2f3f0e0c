package authz

import (
	"context"
	"fmt"

	"gatewise.org/internal/obs"
)

// Resolution reasons. A tier-3 (explicit grant) result carries no reason.
const (
	ReasonPlatformAdmin      = "PLATFORM_ADMIN"
	ReasonOrganizationRole   = "ORGANIZATION_ROLE_INHERIT"
	ReasonApplicationMissing = "APPLICATION_NOT_FOUND"
)

// Wildcard marks the synthetic resource/action granted by the admin tiers.
const Wildcard = "*"

// Caller is the authenticated identity behind a resolution query, supplied
// by the session subsystem.
type Caller struct {
	UserID        string
	MemberID      string
	PlatformAdmin bool
}

// ApplicationRef identifies the target application by id or by key. Exactly
// one is expected; when both are set the id wins.
type ApplicationRef struct {
	ID  string
	Key string
}

func (r ApplicationRef) empty() bool { return r.ID == "" && r.Key == "" }

// RoleRef is the role metadata echoed alongside a resolution.
type RoleRef struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ResolvedPermission is one effective resource-action grant, annotated with
// the role it came through.
type ResolvedPermission struct {
	RoleKey      string `json:"role_key"`
	RoleName     string `json:"role_name"`
	ResourceKey  string `json:"resource_key"`
	ResourceName string `json:"resource_name,omitempty"`
	ActionKey    string `json:"action_key"`
	ActionName   string `json:"action_name,omitempty"`
}

// Resolution is the effective permission set of a member in an application
// context.
type Resolution struct {
	Roles       []RoleRef            `json:"roles"`
	Permissions []ResolvedPermission `json:"permissions"`
	Reason      string               `json:"reason,omitempty"`
}

func (r Resolution) clone() Resolution {
	out := Resolution{Reason: r.Reason}
	if r.Roles != nil {
		out.Roles = make([]RoleRef, len(r.Roles))
		copy(out.Roles, r.Roles)
	}
	if r.Permissions != nil {
		out.Permissions = make([]ResolvedPermission, len(r.Permissions))
		copy(out.Permissions, r.Permissions)
	}
	return out
}

// Resolver computes effective permissions for (member, application) pairs.
// It holds no locks of its own; store reads happen outside any cache-internal
// critical section.
type Resolver struct {
	store Store
	cache *PermissionCache
}

// NewResolver wires the resolution engine to its store and cache. The cache
// may be nil, in which case every call hits the store.
func NewResolver(store Store, cache *PermissionCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Resolve computes the effective permission set of memberID in the referenced
// application. Tiers are hard short-circuits, first match wins:
//
//  1. platform-admin caller: synthetic *:* grant, never cached
//  2. target member is organization owner/admin: synthetic *:* grant, never cached
//  3. explicit application-role grants, deduplicated by resource:action
//
// Only a platform admin or the member being queried may call this; other
// callers get ErrForbidden. A missing application is a valid steady state
// and yields an empty permission set with a reason, not an error.
func (e *Resolver) Resolve(ctx context.Context, caller Caller, memberID string, ref ApplicationRef) (Resolution, error) {
	if memberID == "" {
		return Resolution{}, fmt.Errorf("%w: member id is required", ErrNotFound)
	}
	if !caller.PlatformAdmin && caller.MemberID != memberID {
		return Resolution{}, fmt.Errorf("%w: only a platform admin or the member may query permissions", ErrForbidden)
	}

	if caller.PlatformAdmin {
		obs.ObserveResolution("platform_admin")
		return wildcardResolution("platform_admin", "Platform Admin", ReasonPlatformAdmin), nil
	}

	member, err := e.store.GetMember(ctx, memberID)
	if err != nil {
		return Resolution{}, err
	}

	if member.Role.Administrative() {
		obs.ObserveResolution("organization_role")
		name := string(member.Role)
		return wildcardResolution(name, name, ReasonOrganizationRole), nil
	}

	if ref.empty() {
		return Resolution{}, fmt.Errorf("%w: application id or key is required", ErrNotFound)
	}

	app, ok, err := e.resolveApplication(ctx, member.OrganizationID, ref)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		obs.ObserveResolution("empty")
		return Resolution{
			Roles:       []RoleRef{},
			Permissions: []ResolvedPermission{},
			Reason:      ReasonApplicationMissing,
		}, nil
	}

	key := CacheKey(member.ID, app.ID)
	if e.cache != nil {
		if cached, hit := e.cache.Get(key); hit {
			obs.ObserveResolution("explicit")
			return cached, nil
		}
	}

	res, err := e.resolveExplicit(ctx, member.ID, app.ID)
	if err != nil {
		return Resolution{}, err
	}
	if e.cache != nil {
		e.cache.Set(key, res)
	}
	obs.ObserveResolution("explicit")
	return res, nil
}

// resolveApplication finds the application within the member's organization.
// A missing application, or one owned by another organization, reports !ok.
func (e *Resolver) resolveApplication(ctx context.Context, organizationID string, ref ApplicationRef) (Application, bool, error) {
	var (
		app Application
		err error
	)
	if ref.ID != "" {
		app, err = e.store.GetApplication(ctx, ref.ID)
	} else {
		app, err = e.store.GetApplicationByKey(ctx, organizationID, ref.Key)
	}
	if err != nil {
		if isNotFound(err) {
			return Application{}, false, nil
		}
		return Application{}, false, err
	}
	if app.OrganizationID != organizationID {
		return Application{}, false, nil
	}
	return app, true, nil
}

// resolveExplicit is the tier-3 path: assigned roles, batched grant read,
// dedup by resource:action. Holding no roles is an empty result, not an
// error.
func (e *Resolver) resolveExplicit(ctx context.Context, memberID, applicationID string) (Resolution, error) {
	roles, err := e.store.RolesForMember(ctx, memberID, applicationID)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Roles:       make([]RoleRef, 0, len(roles)),
		Permissions: []ResolvedPermission{},
	}
	if len(roles) == 0 {
		return res, nil
	}

	roleIDs := make([]string, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
		res.Roles = append(res.Roles, RoleRef{ID: role.ID, Key: role.Key, Name: role.Name})
	}

	grants, err := e.store.GrantsForRoles(ctx, roleIDs)
	if err != nil {
		return Resolution{}, err
	}

	// A member may hold the same grant through several roles; the first
	// role's metadata wins.
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		dedupeKey := g.ResourceKey + ":" + g.ActionKey
		if _, dup := seen[dedupeKey]; dup {
			continue
		}
		seen[dedupeKey] = struct{}{}
		res.Permissions = append(res.Permissions, ResolvedPermission{
			RoleKey:      g.RoleKey,
			RoleName:     g.RoleName,
			ResourceKey:  g.ResourceKey,
			ResourceName: g.ResourceName,
			ActionKey:    g.ActionKey,
			ActionName:   g.ActionName,
		})
	}
	return res, nil
}

func wildcardResolution(roleKey, roleName, reason string) Resolution {
	return Resolution{
		Roles: []RoleRef{{Key: roleKey, Name: roleName}},
		Permissions: []ResolvedPermission{{
			RoleKey:     roleKey,
			RoleName:    roleName,
			ResourceKey: Wildcard,
			ActionKey:   Wildcard,
		}},
		Reason: reason,
	}
}
