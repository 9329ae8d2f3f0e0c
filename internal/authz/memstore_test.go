package authz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// memStore is an in-memory Store used across the package tests. It counts
// reads on the resolution path so cache behavior can be asserted.
type memStore struct {
	nextID int

	apps        map[string]Application
	resources   map[string]Resource
	actions     map[string]Action
	roles       map[string]Role
	roleActions map[string][]string // roleID -> actionIDs
	members     map[string]Member
	assignments map[string]map[string]bool // memberID -> roleID set

	rolesForMemberCalls int
	grantsForRolesCalls int
}

func newMemStore() *memStore {
	return &memStore{
		apps:        make(map[string]Application),
		resources:   make(map[string]Resource),
		actions:     make(map[string]Action),
		roles:       make(map[string]Role),
		roleActions: make(map[string][]string),
		members:     make(map[string]Member),
		assignments: make(map[string]map[string]bool),
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return prefix + "_" + strconv.Itoa(m.nextID)
}

func (m *memStore) CreateApplication(_ context.Context, organizationID, key, name string) (Application, error) {
	for _, app := range m.apps {
		if app.OrganizationID == organizationID && app.Key == key {
			return Application{}, fmt.Errorf("%w: application key %s", ErrConflict, key)
		}
	}
	app := Application{
		ID:             m.id("app"),
		OrganizationID: organizationID,
		Key:            key,
		Name:           name,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	m.apps[app.ID] = app
	return app, nil
}

func (m *memStore) GetApplication(_ context.Context, applicationID string) (Application, error) {
	app, ok := m.apps[applicationID]
	if !ok {
		return Application{}, fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	return app, nil
}

func (m *memStore) GetApplicationByKey(_ context.Context, organizationID, key string) (Application, error) {
	for _, app := range m.apps {
		if app.OrganizationID == organizationID && app.Key == key {
			return app, nil
		}
	}
	return Application{}, fmt.Errorf("%w: application %s", ErrNotFound, key)
}

func (m *memStore) ListApplications(_ context.Context, organizationID string) ([]Application, error) {
	var out []Application
	for _, app := range m.apps {
		if app.OrganizationID == organizationID {
			out = append(out, app)
		}
	}
	return out, nil
}

func (m *memStore) DeleteApplication(_ context.Context, applicationID string) error {
	if _, ok := m.apps[applicationID]; !ok {
		return fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	delete(m.apps, applicationID)
	for id, res := range m.resources {
		if res.ApplicationID == applicationID {
			_ = m.DeleteResource(context.Background(), id)
		}
	}
	for id, role := range m.roles {
		if role.ApplicationID == applicationID {
			_ = m.DeleteRole(context.Background(), id)
		}
	}
	return nil
}

func (m *memStore) CreateResource(_ context.Context, applicationID, key, name, description string) (Resource, error) {
	if _, ok := m.apps[applicationID]; !ok {
		return Resource{}, fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	for _, res := range m.resources {
		if res.ApplicationID == applicationID && res.Key == key {
			return Resource{}, fmt.Errorf("%w: resource key %s", ErrConflict, key)
		}
	}
	res := Resource{
		ID:            m.id("res"),
		ApplicationID: applicationID,
		Key:           key,
		Name:          name,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
	m.resources[res.ID] = res
	return res, nil
}

func (m *memStore) GetResource(_ context.Context, resourceID string) (Resource, error) {
	res, ok := m.resources[resourceID]
	if !ok {
		return Resource{}, fmt.Errorf("%w: resource %s", ErrNotFound, resourceID)
	}
	return res, nil
}

func (m *memStore) ListResources(_ context.Context, applicationID string) ([]Resource, error) {
	var out []Resource
	for _, res := range m.resources {
		if res.ApplicationID == applicationID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (m *memStore) DeleteResource(_ context.Context, resourceID string) error {
	if _, ok := m.resources[resourceID]; !ok {
		return fmt.Errorf("%w: resource %s", ErrNotFound, resourceID)
	}
	delete(m.resources, resourceID)
	for id, act := range m.actions {
		if act.ResourceID == resourceID {
			delete(m.actions, id)
		}
	}
	return nil
}

func (m *memStore) CreateAction(_ context.Context, resourceID, key, name string) (Action, error) {
	if _, ok := m.resources[resourceID]; !ok {
		return Action{}, fmt.Errorf("%w: resource %s", ErrNotFound, resourceID)
	}
	for _, act := range m.actions {
		if act.ResourceID == resourceID && act.Key == key {
			return Action{}, fmt.Errorf("%w: action key %s", ErrConflict, key)
		}
	}
	act := Action{
		ID:         m.id("act"),
		ResourceID: resourceID,
		Key:        key,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}
	m.actions[act.ID] = act
	return act, nil
}

func (m *memStore) ListActions(_ context.Context, resourceID string) ([]Action, error) {
	var out []Action
	for _, act := range m.actions {
		if act.ResourceID == resourceID {
			out = append(out, act)
		}
	}
	return out, nil
}

func (m *memStore) ActionScopes(_ context.Context, actionIDs []string) ([]ActionScope, error) {
	var out []ActionScope
	for _, id := range actionIDs {
		act, ok := m.actions[id]
		if !ok {
			continue
		}
		res := m.resources[act.ResourceID]
		app := m.apps[res.ApplicationID]
		out = append(out, ActionScope{
			ActionID:       act.ID,
			ResourceID:     res.ID,
			ApplicationID:  app.ID,
			OrganizationID: app.OrganizationID,
		})
	}
	return out, nil
}

func (m *memStore) CreateRole(_ context.Context, role Role, actionIDs []string) (Role, error) {
	for _, existing := range m.roles {
		if existing.Key != role.Key {
			continue
		}
		if existing.ApplicationID == role.ApplicationID &&
			(role.ApplicationID != "" || existing.OrganizationID == role.OrganizationID) {
			return Role{}, fmt.Errorf("%w: role key %s", ErrConflict, role.Key)
		}
	}
	for _, id := range actionIDs {
		if _, ok := m.actions[id]; !ok {
			return Role{}, fmt.Errorf("%w: action %s", ErrReference, id)
		}
	}
	role.ID = m.id("role")
	role.ActionCount = len(actionIDs)
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	m.roles[role.ID] = role
	m.roleActions[role.ID] = append([]string(nil), actionIDs...)
	return role, nil
}

func (m *memStore) GetRole(_ context.Context, roleID string) (Role, error) {
	role, ok := m.roles[roleID]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	role.ActionCount = len(m.roleActions[roleID])
	return role, nil
}

func (m *memStore) RolesByIDs(ctx context.Context, roleIDs []string) ([]Role, error) {
	var out []Role
	for _, id := range roleIDs {
		if role, err := m.GetRole(ctx, id); err == nil {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memStore) ListRoles(_ context.Context, scope RoleScope) ([]Role, error) {
	var out []Role
	for id, role := range m.roles {
		if role.OrganizationID != scope.OrganizationID {
			continue
		}
		if role.ApplicationID != scope.ApplicationID {
			continue
		}
		role.ActionCount = len(m.roleActions[id])
		out = append(out, role)
	}
	return out, nil
}

func (m *memStore) UpdateRole(_ context.Context, roleID string, patch RolePatch) (Role, error) {
	role, ok := m.roles[roleID]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
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
	role.UpdatedAt = time.Now().UTC()
	m.roles[roleID] = role
	return role, nil
}

func (m *memStore) DeleteRole(_ context.Context, roleID string) error {
	if _, ok := m.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	delete(m.roles, roleID)
	delete(m.roleActions, roleID)
	for _, set := range m.assignments {
		delete(set, roleID)
	}
	return nil
}

func (m *memStore) SetRoleActions(_ context.Context, roleID string, actionIDs []string) error {
	if _, ok := m.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	m.roleActions[roleID] = append([]string(nil), actionIDs...)
	return nil
}

func (m *memStore) GetMember(_ context.Context, memberID string) (Member, error) {
	member, ok := m.members[memberID]
	if !ok {
		return Member{}, fmt.Errorf("%w: member %s", ErrNotFound, memberID)
	}
	return member, nil
}

func (m *memStore) FindMember(_ context.Context, userID, organizationID string) (Member, error) {
	for _, member := range m.members {
		if member.UserID == userID && member.OrganizationID == organizationID {
			return member, nil
		}
	}
	return Member{}, fmt.Errorf("%w: member for user %s", ErrNotFound, userID)
}

func (m *memStore) UpsertMember(ctx context.Context, in Member) (Member, error) {
	if existing, err := m.FindMember(ctx, in.UserID, in.OrganizationID); err == nil {
		existing.Role = in.Role
		m.members[existing.ID] = existing
		return existing, nil
	}
	in.ID = m.id("mem")
	m.members[in.ID] = in
	return in, nil
}

func (m *memStore) AssignRoles(_ context.Context, memberID string, roleIDs []string) (int, error) {
	set, ok := m.assignments[memberID]
	if !ok {
		set = make(map[string]bool)
		m.assignments[memberID] = set
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

func (m *memStore) UnassignRole(_ context.Context, memberID, roleID string) error {
	delete(m.assignments[memberID], roleID)
	return nil
}

func (m *memStore) ListAssignments(_ context.Context, memberID string) ([]Assignment, error) {
	var out []Assignment
	for roleID := range m.assignments[memberID] {
		out = append(out, Assignment{MemberID: memberID, RoleID: roleID})
	}
	return out, nil
}

func (m *memStore) MemberIDsHoldingRole(_ context.Context, roleID string) ([]string, error) {
	var out []string
	for memberID, set := range m.assignments {
		if set[roleID] {
			out = append(out, memberID)
		}
	}
	return out, nil
}

func (m *memStore) RolesForMember(_ context.Context, memberID, applicationID string) ([]Role, error) {
	m.rolesForMemberCalls++
	var out []Role
	for roleID := range m.assignments[memberID] {
		role, ok := m.roles[roleID]
		if !ok || !role.Active || role.ApplicationID != applicationID {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

func (m *memStore) GrantsForRoles(_ context.Context, roleIDs []string) ([]Grant, error) {
	m.grantsForRolesCalls++
	var out []Grant
	for _, roleID := range roleIDs {
		role := m.roles[roleID]
		for _, actionID := range m.roleActions[roleID] {
			act, ok := m.actions[actionID]
			if !ok {
				continue
			}
			res := m.resources[act.ResourceID]
			out = append(out, Grant{
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

var _ Store = (*memStore)(nil)

// graphFixture builds one organization with a billing application, an
// invoices resource carrying read/approve actions, and a regular member.
type graphFixture struct {
	store  *memStore
	org    string
	app    Application
	res    Resource
	read   Action
	appr   Action
	member Member
}

func newGraphFixture(t interface{ Fatalf(string, ...any) }) *graphFixture {
	ctx := context.Background()
	store := newMemStore()
	org := "org_1"
	app, err := store.CreateApplication(ctx, org, "billing", "Billing")
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	res, err := store.CreateResource(ctx, app.ID, "invoices", "Invoices", "")
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	read, err := store.CreateAction(ctx, res.ID, "read", "Read")
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	appr, err := store.CreateAction(ctx, res.ID, "approve", "Approve")
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	member, err := store.UpsertMember(ctx, Member{
		UserID:         "user_1",
		OrganizationID: org,
		Role:           OrgRoleMember,
		JoinedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("upsert member: %v", err)
	}
	return &graphFixture{
		store:  store,
		org:    org,
		app:    app,
		res:    res,
		read:   read,
		appr:   appr,
		member: member,
	}
}

func (f *graphFixture) createRole(t interface{ Fatalf(string, ...any) }, key string, actionIDs ...string) Role {
	role, err := f.store.CreateRole(context.Background(), Role{
		OrganizationID: f.org,
		ApplicationID:  f.app.ID,
		Key:            key,
		Name:           strings.ReplaceAll(key, "_", " "),
		Active:         true,
	}, actionIDs)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	return role
}
