package authz

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// keyPattern is the shape every application, resource, action, and role key
// must match: lowercase tokens joined by single underscores.
var keyPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// AuditSink receives fire-and-forget change notifications after every
// mutation. A sink failure never rolls back the underlying mutation.
type AuditSink interface {
	RecordChange(ctx context.Context, action, targetType, targetID string, metadata map[string]string) error
}

// Service validates and mutates the entity graph: applications, resources,
// actions, roles, grants, and member assignments. All tenancy and
// action-scoping checks live here rather than in individual transport
// handlers.
type Service struct {
	store Store
	sink  AuditSink
	cache *PermissionCache
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAuditSink attaches the change-notification sink.
func WithAuditSink(sink AuditSink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

// WithCache attaches the permission cache so mutations can invalidate
// entries for affected members.
func WithCache(cache *PermissionCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithServiceClock overrides the time source (used by tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the assignment manager.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrValidation)
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateKey checks the canonical key shape shared by every catalogued
// entity.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: key %q must match %s", ErrValidation, key, keyPattern.String())
	}
	return nil
}

// --- Applications -----------------------------------------------------------

// CreateApplication registers an application in the organization's catalogue.
func (s *Service) CreateApplication(ctx context.Context, organizationID, key, name string) (Application, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return Application{}, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	key = strings.TrimSpace(key)
	if err := ValidateKey(key); err != nil {
		return Application{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Application{}, fmt.Errorf("%w: application name is required", ErrValidation)
	}
	app, err := s.store.CreateApplication(ctx, organizationID, key, name)
	if err != nil {
		return Application{}, err
	}
	s.notify(ctx, "application.create", "application", app.ID, map[string]string{
		"organization_id": organizationID,
		"key":             key,
	})
	return app, nil
}

// GetApplication fetches one application by id.
func (s *Service) GetApplication(ctx context.Context, applicationID string) (Application, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return Application{}, fmt.Errorf("%w: application id is required", ErrValidation)
	}
	return s.store.GetApplication(ctx, applicationID)
}

// ListApplications lists the organization's applications.
func (s *Service) ListApplications(ctx context.Context, organizationID string) ([]Application, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	return s.store.ListApplications(ctx, organizationID)
}

// DeleteApplication removes an application and everything scoped to it:
// resources, actions, roles, grants, and assignments.
func (s *Service) DeleteApplication(ctx context.Context, organizationID, applicationID string) error {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if organizationID != "" && app.OrganizationID != organizationID {
		return fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	organizationID = app.OrganizationID
	if err := s.store.DeleteApplication(ctx, applicationID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateApplication(applicationID)
	}
	s.notify(ctx, "application.delete", "application", applicationID, map[string]string{
		"organization_id": organizationID,
	})
	return nil
}

// --- Resources and actions --------------------------------------------------

// CreateResource adds a protected noun to an application's catalogue. A
// non-empty organizationID restricts the mutation to that tenant.
func (s *Service) CreateResource(ctx context.Context, organizationID, applicationID, key, name, description string) (Resource, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return Resource{}, fmt.Errorf("%w: application id is required", ErrValidation)
	}
	key = strings.TrimSpace(key)
	if err := ValidateKey(key); err != nil {
		return Resource{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Resource{}, fmt.Errorf("%w: resource name is required", ErrValidation)
	}
	if err := s.checkApplicationTenancy(ctx, organizationID, applicationID); err != nil {
		return Resource{}, err
	}
	res, err := s.store.CreateResource(ctx, applicationID, key, name, strings.TrimSpace(description))
	if err != nil {
		return Resource{}, err
	}
	s.notify(ctx, "resource.create", "resource", res.ID, map[string]string{
		"application_id": applicationID,
		"key":            key,
	})
	return res, nil
}

// ListResources lists an application's resources.
func (s *Service) ListResources(ctx context.Context, organizationID, applicationID string) ([]Resource, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, fmt.Errorf("%w: application id is required", ErrValidation)
	}
	if err := s.checkApplicationTenancy(ctx, organizationID, applicationID); err != nil {
		return nil, err
	}
	return s.store.ListResources(ctx, applicationID)
}

// DeleteResource removes a resource and its actions.
func (s *Service) DeleteResource(ctx context.Context, organizationID, resourceID string) error {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return fmt.Errorf("%w: resource id is required", ErrValidation)
	}
	if err := s.checkResourceTenancy(ctx, organizationID, resourceID); err != nil {
		return err
	}
	if err := s.store.DeleteResource(ctx, resourceID); err != nil {
		return err
	}
	s.notify(ctx, "resource.delete", "resource", resourceID, nil)
	return nil
}

// CreateAction adds a protected verb to a resource.
func (s *Service) CreateAction(ctx context.Context, organizationID, resourceID, key, name string) (Action, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return Action{}, fmt.Errorf("%w: resource id is required", ErrValidation)
	}
	key = strings.TrimSpace(key)
	if err := ValidateKey(key); err != nil {
		return Action{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Action{}, fmt.Errorf("%w: action name is required", ErrValidation)
	}
	if err := s.checkResourceTenancy(ctx, organizationID, resourceID); err != nil {
		return Action{}, err
	}
	act, err := s.store.CreateAction(ctx, resourceID, key, name)
	if err != nil {
		return Action{}, err
	}
	s.notify(ctx, "action.create", "action", act.ID, map[string]string{
		"resource_id": resourceID,
		"key":         key,
	})
	return act, nil
}

// ListActions lists a resource's actions.
func (s *Service) ListActions(ctx context.Context, organizationID, resourceID string) ([]Action, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource id is required", ErrValidation)
	}
	if err := s.checkResourceTenancy(ctx, organizationID, resourceID); err != nil {
		return nil, err
	}
	return s.store.ListActions(ctx, resourceID)
}

// --- Roles ------------------------------------------------------------------

// CreateRole creates a role in the given scope and grants it the listed
// actions. Every action must resolve to the role's own application (or, for
// organization-scoped roles, to an application of the same organization);
// anything else is a reference outside scope.
func (s *Service) CreateRole(ctx context.Context, scope RoleScope, key, name, description string, active bool, actionIDs []string) (Role, error) {
	scope.OrganizationID = strings.TrimSpace(scope.OrganizationID)
	scope.ApplicationID = strings.TrimSpace(scope.ApplicationID)
	if scope.OrganizationID == "" {
		return Role{}, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	key = strings.TrimSpace(key)
	if err := ValidateKey(key); err != nil {
		return Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrValidation)
	}
	if IsReservedRoleName(name) || IsReservedRoleName(key) {
		return Role{}, fmt.Errorf("%w: %q collides with a built-in role", ErrValidation, name)
	}
	if scope.ApplicationScoped() {
		app, err := s.store.GetApplication(ctx, scope.ApplicationID)
		if err != nil {
			return Role{}, err
		}
		if app.OrganizationID != scope.OrganizationID {
			return Role{}, fmt.Errorf("%w: application %s", ErrNotFound, scope.ApplicationID)
		}
	}

	actionIDs = dedupeIDs(actionIDs)
	if err := s.checkActionScopes(ctx, scope, actionIDs); err != nil {
		return Role{}, err
	}

	role, err := s.store.CreateRole(ctx, Role{
		OrganizationID: scope.OrganizationID,
		ApplicationID:  scope.ApplicationID,
		Key:            key,
		Name:           name,
		Description:    strings.TrimSpace(description),
		Active:         active,
	}, actionIDs)
	if err != nil {
		return Role{}, err
	}
	s.notify(ctx, "role.create", "role", role.ID, map[string]string{
		"organization_id": scope.OrganizationID,
		"application_id":  scope.ApplicationID,
		"key":             key,
		"action_count":    fmt.Sprintf("%d", role.ActionCount),
	})
	return role, nil
}

// GetRole fetches a role within the caller's organization. An empty
// organization scope (platform administration) skips the tenancy check.
func (s *Service) GetRole(ctx context.Context, organizationID, roleID string) (Role, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if organizationID != "" && role.OrganizationID != organizationID {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	return role, nil
}

// ListRoles lists roles in a scope. Organization scope includes the built-in
// catalogue, synthesized as immutable roles.
func (s *Service) ListRoles(ctx context.Context, scope RoleScope) ([]Role, error) {
	if strings.TrimSpace(scope.OrganizationID) == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	roles, err := s.store.ListRoles(ctx, scope)
	if err != nil {
		return nil, err
	}
	if scope.ApplicationScoped() {
		return roles, nil
	}
	merged := make([]Role, 0, len(roles)+len(builtinRoles))
	for _, b := range BuiltinRoles() {
		merged = append(merged, Role{
			OrganizationID: scope.OrganizationID,
			Key:            b.Key,
			Name:           b.Name,
			Description:    b.Description,
			Active:         true,
			BuiltIn:        true,
		})
	}
	return append(merged, roles...), nil
}

// UpdateRole patches a role's name, description, or active flag. Renaming to
// a reserved built-in name is rejected. Cached resolutions for members
// holding the role are invalidated.
func (s *Service) UpdateRole(ctx context.Context, organizationID, roleID string, patch RolePatch) (Role, error) {
	role, err := s.GetRole(ctx, organizationID, roleID)
	if err != nil {
		return Role{}, err
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrValidation)
		}
		if IsReservedRoleName(trimmed) {
			return Role{}, fmt.Errorf("%w: %q collides with a built-in role", ErrValidation, trimmed)
		}
		patch.Name = &trimmed
	}
	updated, err := s.store.UpdateRole(ctx, roleID, patch)
	if err != nil {
		return Role{}, err
	}
	s.invalidateRole(ctx, role)
	s.notify(ctx, "role.update", "role", roleID, map[string]string{
		"organization_id": organizationID,
	})
	return updated, nil
}

// SetRoleActions replaces the role's grant set after re-validating action
// scoping.
func (s *Service) SetRoleActions(ctx context.Context, organizationID, roleID string, actionIDs []string) error {
	role, err := s.GetRole(ctx, organizationID, roleID)
	if err != nil {
		return err
	}
	actionIDs = dedupeIDs(actionIDs)
	scope := RoleScope{OrganizationID: role.OrganizationID, ApplicationID: role.ApplicationID}
	if err := s.checkActionScopes(ctx, scope, actionIDs); err != nil {
		return err
	}
	if err := s.store.SetRoleActions(ctx, roleID, actionIDs); err != nil {
		return err
	}
	s.invalidateRole(ctx, role)
	s.notify(ctx, "role.actions.set", "role", roleID, map[string]string{
		"organization_id": organizationID,
		"action_count":    fmt.Sprintf("%d", len(actionIDs)),
	})
	return nil
}

// DeleteRole removes a role, its grants, and its member assignments.
func (s *Service) DeleteRole(ctx context.Context, organizationID, roleID string) error {
	role, err := s.GetRole(ctx, organizationID, roleID)
	if err != nil {
		return err
	}
	// Affected members must be captured before the cascade removes their
	// assignment rows.
	members, err := s.store.MemberIDsHoldingRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.invalidateMembers(members, role.ApplicationID)
	s.notify(ctx, "role.delete", "role", roleID, map[string]string{
		"organization_id": organizationID,
	})
	return nil
}

// --- Assignments ------------------------------------------------------------

// AssignRoles grants application roles to a member. Re-assigning an already
// held role is a no-op; the returned count covers newly created assignments
// only. A role outside the target application, or outside the member's
// organization, is a reference error.
func (s *Service) AssignRoles(ctx context.Context, memberID, applicationID string, roleIDs []string) (int, error) {
	memberID = strings.TrimSpace(memberID)
	applicationID = strings.TrimSpace(applicationID)
	if memberID == "" || applicationID == "" {
		return 0, fmt.Errorf("%w: member id and application id are required", ErrValidation)
	}
	roleIDs = dedupeIDs(roleIDs)
	if len(roleIDs) == 0 {
		return 0, fmt.Errorf("%w: at least one role id is required", ErrValidation)
	}

	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return 0, err
	}
	roles, err := s.store.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	for _, id := range roleIDs {
		role, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("%w: role %s does not exist", ErrReference, id)
		}
		if role.ApplicationID != applicationID {
			return 0, fmt.Errorf("%w: role %s does not belong to application %s", ErrReference, id, applicationID)
		}
		if role.OrganizationID != member.OrganizationID {
			return 0, fmt.Errorf("%w: role %s belongs to another organization", ErrReference, id)
		}
	}

	assigned, err := s.store.AssignRoles(ctx, memberID, roleIDs)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Invalidate(memberID, applicationID)
	}
	s.notify(ctx, "member.roles.assign", "member", memberID, map[string]string{
		"application_id": applicationID,
		"assigned_count": fmt.Sprintf("%d", assigned),
	})
	return assigned, nil
}

// UnassignRole removes one assignment. Removing an assignment that does not
// exist is a no-op.
func (s *Service) UnassignRole(ctx context.Context, memberID, roleID string) error {
	memberID = strings.TrimSpace(memberID)
	roleID = strings.TrimSpace(roleID)
	if memberID == "" || roleID == "" {
		return fmt.Errorf("%w: member id and role id are required", ErrValidation)
	}
	if err := s.store.UnassignRole(ctx, memberID, roleID); err != nil {
		return err
	}
	if s.cache != nil {
		if role, err := s.store.GetRole(ctx, roleID); err == nil && role.ApplicationScoped() {
			s.cache.Invalidate(memberID, role.ApplicationID)
		} else {
			s.cache.InvalidateMember(memberID)
		}
	}
	s.notify(ctx, "member.roles.unassign", "member", memberID, map[string]string{
		"role_id": roleID,
	})
	return nil
}

// ListAssignments lists the application roles a member holds.
func (s *Service) ListAssignments(ctx context.Context, memberID string) ([]Assignment, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, fmt.Errorf("%w: member id is required", ErrValidation)
	}
	return s.store.ListAssignments(ctx, memberID)
}

// --- Members ----------------------------------------------------------------

// SyncMembers ingests a membership-provider payload (array or envelope
// shape), normalizes it, and upserts the records into the organization.
func (s *Service) SyncMembers(ctx context.Context, organizationID string, payload []byte) ([]Member, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrValidation)
	}
	records, err := DecodeMemberList(payload)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	result := make([]Member, 0, len(records))
	for _, rec := range records {
		m, err := rec.toMember(organizationID, now)
		if err != nil {
			return nil, err
		}
		stored, err := s.store.UpsertMember(ctx, m)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	s.notify(ctx, "members.sync", "organization", organizationID, map[string]string{
		"count": fmt.Sprintf("%d", len(result)),
	})
	return result, nil
}

// GetMember fetches one member by id.
func (s *Service) GetMember(ctx context.Context, memberID string) (Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return Member{}, fmt.Errorf("%w: member id is required", ErrValidation)
	}
	return s.store.GetMember(ctx, memberID)
}

// --- internals --------------------------------------------------------------

// checkApplicationTenancy verifies the application belongs to the caller's
// organization. An empty organizationID (platform administration) passes.
func (s *Service) checkApplicationTenancy(ctx context.Context, organizationID, applicationID string) error {
	if organizationID == "" {
		return nil
	}
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.OrganizationID != organizationID {
		return fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	return nil
}

// checkResourceTenancy walks resource -> application -> organization.
func (s *Service) checkResourceTenancy(ctx context.Context, organizationID, resourceID string) error {
	if organizationID == "" {
		return nil
	}
	res, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if err := s.checkApplicationTenancy(ctx, organizationID, res.ApplicationID); err != nil {
		return fmt.Errorf("%w: resource %s", ErrNotFound, resourceID)
	}
	return nil
}

// checkActionScopes is the single scoping validation for every grant
// mutation path: each action must exist and resolve to the role's
// application, or for organization-scoped roles to any application of the
// same organization.
func (s *Service) checkActionScopes(ctx context.Context, scope RoleScope, actionIDs []string) error {
	if len(actionIDs) == 0 {
		return nil
	}
	found, err := s.store.ActionScopes(ctx, actionIDs)
	if err != nil {
		return err
	}
	byID := make(map[string]ActionScope, len(found))
	for _, as := range found {
		byID[as.ActionID] = as
	}
	for _, id := range actionIDs {
		as, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: action %s does not exist", ErrReference, id)
		}
		if scope.ApplicationScoped() {
			if as.ApplicationID != scope.ApplicationID {
				return fmt.Errorf("%w: action %s belongs to another application", ErrReference, id)
			}
			continue
		}
		if as.OrganizationID != scope.OrganizationID {
			return fmt.Errorf("%w: action %s belongs to another organization", ErrReference, id)
		}
	}
	return nil
}

// invalidateRole drops cached resolutions for every member holding the role.
func (s *Service) invalidateRole(ctx context.Context, role Role) {
	if s.cache == nil {
		return
	}
	members, err := s.store.MemberIDsHoldingRole(ctx, role.ID)
	if err != nil {
		// Invalidation is best effort; the TTL bounds staleness.
		return
	}
	s.invalidateMembers(members, role.ApplicationID)
}

func (s *Service) invalidateMembers(memberIDs []string, applicationID string) {
	if s.cache == nil {
		return
	}
	for _, id := range memberIDs {
		if applicationID != "" {
			s.cache.Invalidate(id, applicationID)
		} else {
			s.cache.InvalidateMember(id)
		}
	}
}

// notify forwards a change event to the audit sink. Recording failures are
// swallowed: the mutation already happened.
func (s *Service) notify(ctx context.Context, action, targetType, targetID string, metadata map[string]string) {
	if s.sink == nil {
		return
	}
	_ = s.sink.RecordChange(ctx, action, targetType, targetID, metadata)
}

func dedupeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
