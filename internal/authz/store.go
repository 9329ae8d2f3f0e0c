package authz

import "context"

// ActionScope locates an action inside the entity graph. Scope checks on
// grants resolve actions through this instead of re-deriving joins per
// mutation path.
type ActionScope struct {
	ActionID       string
	ResourceID     string
	ApplicationID  string
	OrganizationID string
}

// Store describes the persistence operations required by the authorization
// core. Implementations must map duplicate-key violations to ErrConflict and
// missing rows to ErrNotFound.
type Store interface {
	// Applications.
	CreateApplication(ctx context.Context, organizationID, key, name string) (Application, error)
	GetApplication(ctx context.Context, applicationID string) (Application, error)
	GetApplicationByKey(ctx context.Context, organizationID, key string) (Application, error)
	ListApplications(ctx context.Context, organizationID string) ([]Application, error)
	// DeleteApplication cascades to resources, actions, roles, grants,
	// and assignments.
	DeleteApplication(ctx context.Context, applicationID string) error

	// Resources and actions.
	CreateResource(ctx context.Context, applicationID, key, name, description string) (Resource, error)
	GetResource(ctx context.Context, resourceID string) (Resource, error)
	ListResources(ctx context.Context, applicationID string) ([]Resource, error)
	// DeleteResource cascades to its actions.
	DeleteResource(ctx context.Context, resourceID string) error
	CreateAction(ctx context.Context, resourceID, key, name string) (Action, error)
	ListActions(ctx context.Context, resourceID string) ([]Action, error)
	// ActionScopes resolves the application/organization each action belongs
	// to, in one batched read. Unknown action IDs are simply absent from the
	// result.
	ActionScopes(ctx context.Context, actionIDs []string) ([]ActionScope, error)

	// Roles and grants.
	CreateRole(ctx context.Context, role Role, actionIDs []string) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	RolesByIDs(ctx context.Context, roleIDs []string) ([]Role, error)
	ListRoles(ctx context.Context, scope RoleScope) ([]Role, error)
	UpdateRole(ctx context.Context, roleID string, patch RolePatch) (Role, error)
	// DeleteRole cascades to grants and member assignments.
	DeleteRole(ctx context.Context, roleID string) error
	SetRoleActions(ctx context.Context, roleID string, actionIDs []string) error

	// Members and assignments.
	GetMember(ctx context.Context, memberID string) (Member, error)
	FindMember(ctx context.Context, userID, organizationID string) (Member, error)
	UpsertMember(ctx context.Context, m Member) (Member, error)
	AssignRoles(ctx context.Context, memberID string, roleIDs []string) (int, error)
	UnassignRole(ctx context.Context, memberID, roleID string) error
	ListAssignments(ctx context.Context, memberID string) ([]Assignment, error)
	MemberIDsHoldingRole(ctx context.Context, roleID string) ([]string, error)

	// Resolution read path.
	RolesForMember(ctx context.Context, memberID, applicationID string) ([]Role, error)
	// GrantsForRoles fetches all action grants for the given roles joined to
	// their resources in a single batched read.
	GrantsForRoles(ctx context.Context, roleIDs []string) ([]Grant, error)
}
