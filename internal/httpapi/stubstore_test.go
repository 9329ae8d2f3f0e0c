package httpapi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gatewise.org/internal/authz"
)

// stubStore is an in-memory authz.Store backing the handler tests.
type stubStore struct {
	nextID int

	apps        map[string]authz.Application
	resources   map[string]authz.Resource
	actions     map[string]authz.Action
	roles       map[string]authz.Role
	roleActions map[string][]string
	members     map[string]authz.Member
	assignments map[string]map[string]bool
}

func newStubStore() *stubStore {
	return &stubStore{
		apps:        make(map[string]authz.Application),
		resources:   make(map[string]authz.Resource),
		actions:     make(map[string]authz.Action),
		roles:       make(map[string]authz.Role),
		roleActions: make(map[string][]string),
		members:     make(map[string]authz.Member),
		assignments: make(map[string]map[string]bool),
	}
}

var _ authz.Store = (*stubStore)(nil)

func (s *stubStore) id(prefix string) string {
	s.nextID++
	return prefix + "_" + strconv.Itoa(s.nextID)
}

func (s *stubStore) CreateApplication(_ context.Context, organizationID, key, name string) (authz.Application, error) {
	for _, app := range s.apps {
		if app.OrganizationID == organizationID && app.Key == key {
			return authz.Application{}, fmt.Errorf("%w: application key %s", authz.ErrConflict, key)
		}
	}
	app := authz.Application{
		ID:             s.id("app"),
		OrganizationID: organizationID,
		Key:            key,
		Name:           name,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	s.apps[app.ID] = app
	return app, nil
}

func (s *stubStore) GetApplication(_ context.Context, applicationID string) (authz.Application, error) {
	app, ok := s.apps[applicationID]
	if !ok {
		return authz.Application{}, fmt.Errorf("%w: application %s", authz.ErrNotFound, applicationID)
	}
	return app, nil
}

func (s *stubStore) GetApplicationByKey(_ context.Context, organizationID, key string) (authz.Application, error) {
	for _, app := range s.apps {
		if app.OrganizationID == organizationID && app.Key == key {
			return app, nil
		}
	}
	return authz.Application{}, fmt.Errorf("%w: application %s", authz.ErrNotFound, key)
}

func (s *stubStore) ListApplications(_ context.Context, organizationID string) ([]authz.Application, error) {
	var out []authz.Application
	for _, app := range s.apps {
		if app.OrganizationID == organizationID {
			out = append(out, app)
		}
	}
	return out, nil
}

func (s *stubStore) DeleteApplication(_ context.Context, applicationID string) error {
	if _, ok := s.apps[applicationID]; !ok {
		return fmt.Errorf("%w: application %s", authz.ErrNotFound, applicationID)
	}
	delete(s.apps, applicationID)
	return nil
}

func (s *stubStore) CreateResource(_ context.Context, applicationID, key, name, description string) (authz.Resource, error) {
	if _, ok := s.apps[applicationID]; !ok {
		return authz.Resource{}, fmt.Errorf("%w: application %s", authz.ErrNotFound, applicationID)
	}
	res := authz.Resource{
		ID:            s.id("res"),
		ApplicationID: applicationID,
		Key:           key,
		Name:          name,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
	s.resources[res.ID] = res
	return res, nil
}

func (s *stubStore) GetResource(_ context.Context, resourceID string) (authz.Resource, error) {
	res, ok := s.resources[resourceID]
	if !ok {
		return authz.Resource{}, fmt.Errorf("%w: resource %s", authz.ErrNotFound, resourceID)
	}
	return res, nil
}

func (s *stubStore) ListResources(_ context.Context, applicationID string) ([]authz.Resource, error) {
	var out []authz.Resource
	for _, res := range s.resources {
		if res.ApplicationID == applicationID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *stubStore) DeleteResource(_ context.Context, resourceID string) error {
	if _, ok := s.resources[resourceID]; !ok {
		return fmt.Errorf("%w: resource %s", authz.ErrNotFound, resourceID)
	}
	delete(s.resources, resourceID)
	return nil
}

func (s *stubStore) CreateAction(_ context.Context, resourceID, key, name string) (authz.Action, error) {
	if _, ok := s.resources[resourceID]; !ok {
		return authz.Action{}, fmt.Errorf("%w: resource %s", authz.ErrNotFound, resourceID)
	}
	act := authz.Action{
		ID:         s.id("act"),
		ResourceID: resourceID,
		Key:        key,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}
	s.actions[act.ID] = act
	return act, nil
}

func (s *stubStore) ListActions(_ context.Context, resourceID string) ([]authz.Action, error) {
	var out []authz.Action
	for _, act := range s.actions {
		if act.ResourceID == resourceID {
			out = append(out, act)
		}
	}
	return out, nil
}

func (s *stubStore) ActionScopes(_ context.Context, actionIDs []string) ([]authz.ActionScope, error) {
	var out []authz.ActionScope
	for _, id := range actionIDs {
		act, ok := s.actions[id]
		if !ok {
			continue
		}
		res := s.resources[act.ResourceID]
		app := s.apps[res.ApplicationID]
		out = append(out, authz.ActionScope{
			ActionID:       act.ID,
			ResourceID:     res.ID,
			ApplicationID:  app.ID,
			OrganizationID: app.OrganizationID,
		})
	}
	return out, nil
}

func (s *stubStore) CreateRole(_ context.Context, role authz.Role, actionIDs []string) (authz.Role, error) {
	role.ID = s.id("role")
	role.ActionCount = len(actionIDs)
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	s.roles[role.ID] = role
	s.roleActions[role.ID] = append([]string(nil), actionIDs...)
	return role, nil
}

func (s *stubStore) GetRole(_ context.Context, roleID string) (authz.Role, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return authz.Role{}, fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
	}
	role.ActionCount = len(s.roleActions[roleID])
	return role, nil
}

func (s *stubStore) RolesByIDs(ctx context.Context, roleIDs []string) ([]authz.Role, error) {
	var out []authz.Role
	for _, id := range roleIDs {
		if role, err := s.GetRole(ctx, id); err == nil {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *stubStore) ListRoles(_ context.Context, scope authz.RoleScope) ([]authz.Role, error) {
	var out []authz.Role
	for _, role := range s.roles {
		if role.OrganizationID == scope.OrganizationID && role.ApplicationID == scope.ApplicationID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (s *stubStore) UpdateRole(_ context.Context, roleID string, patch authz.RolePatch) (authz.Role, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return authz.Role{}, fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
	}
	if patch.Name != nil {
		role.Name = *patch.Name
	}
	if patch.Description != nil {
		role.Description = *patch.Description
	}
	if patch.Active != nil {
		role.Active = *patch.Active
	}
	s.roles[roleID] = role
	return role, nil
}

func (s *stubStore) DeleteRole(_ context.Context, roleID string) error {
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
	}
	delete(s.roles, roleID)
	delete(s.roleActions, roleID)
	for _, set := range s.assignments {
		delete(set, roleID)
	}
	return nil
}

func (s *stubStore) SetRoleActions(_ context.Context, roleID string, actionIDs []string) error {
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", authz.ErrNotFound, roleID)
	}
	s.roleActions[roleID] = append([]string(nil), actionIDs...)
	return nil
}

func (s *stubStore) GetMember(_ context.Context, memberID string) (authz.Member, error) {
	m, ok := s.members[memberID]
	if !ok {
		return authz.Member{}, fmt.Errorf("%w: member %s", authz.ErrNotFound, memberID)
	}
	return m, nil
}

func (s *stubStore) FindMember(_ context.Context, userID, organizationID string) (authz.Member, error) {
	for _, m := range s.members {
		if m.UserID == userID && m.OrganizationID == organizationID {
			return m, nil
		}
	}
	return authz.Member{}, fmt.Errorf("%w: membership of %s", authz.ErrNotFound, userID)
}

func (s *stubStore) UpsertMember(ctx context.Context, in authz.Member) (authz.Member, error) {
	if existing, err := s.FindMember(ctx, in.UserID, in.OrganizationID); err == nil {
		existing.Role = in.Role
		s.members[existing.ID] = existing
		return existing, nil
	}
	if in.ID == "" {
		in.ID = s.id("mem")
	}
	s.members[in.ID] = in
	return in, nil
}

func (s *stubStore) AssignRoles(_ context.Context, memberID string, roleIDs []string) (int, error) {
	set, ok := s.assignments[memberID]
	if !ok {
		set = make(map[string]bool)
		s.assignments[memberID] = set
	}
	assigned := 0
	for _, id := range roleIDs {
		if !set[id] {
			set[id] = true
			assigned++
		}
	}
	return assigned, nil
}

func (s *stubStore) UnassignRole(_ context.Context, memberID, roleID string) error {
	delete(s.assignments[memberID], roleID)
	return nil
}

func (s *stubStore) ListAssignments(_ context.Context, memberID string) ([]authz.Assignment, error) {
	var out []authz.Assignment
	for roleID := range s.assignments[memberID] {
		out = append(out, authz.Assignment{MemberID: memberID, RoleID: roleID})
	}
	return out, nil
}

func (s *stubStore) MemberIDsHoldingRole(_ context.Context, roleID string) ([]string, error) {
	var out []string
	for memberID, set := range s.assignments {
		if set[roleID] {
			out = append(out, memberID)
		}
	}
	return out, nil
}

func (s *stubStore) RolesForMember(_ context.Context, memberID, applicationID string) ([]authz.Role, error) {
	var out []authz.Role
	for roleID := range s.assignments[memberID] {
		role, ok := s.roles[roleID]
		if !ok || !role.Active || role.ApplicationID != applicationID {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

func (s *stubStore) GrantsForRoles(_ context.Context, roleIDs []string) ([]authz.Grant, error) {
	var out []authz.Grant
	for _, roleID := range roleIDs {
		role := s.roles[roleID]
		for _, actionID := range s.roleActions[roleID] {
			act, ok := s.actions[actionID]
			if !ok {
				continue
			}
			res := s.resources[act.ResourceID]
			out = append(out, authz.Grant{
				RoleID:       roleID,
				RoleKey:      role.Key,
				RoleName:     role.Name,
				ResourceKey:  res.Key,
				ResourceName: res.Name,
				ActionID:     act.ID,
				ActionKey:    act.Key,
				ActionName:   act.Name,
			})
		}
	}
	return out, nil
}
