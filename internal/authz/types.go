package authz

import "time"

// OrgRole is the organization-level role carried by every membership.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// Valid reports whether the value is one of the known organization roles.
func (r OrgRole) Valid() bool {
	switch r {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleMember:
		return true
	}
	return false
}

// Administrative reports whether the role short-circuits per-application grants.
func (r OrgRole) Administrative() bool {
	return r == OrgRoleOwner || r == OrgRoleAdmin
}

// Application is a tenant-owned integration exposing a resource/action catalogue.
type Application struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Resource is a protected noun within an application.
type Resource struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Key           string    `json:"key"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Action is a protected verb on a resource. The fully-qualified permission
// string is applicationKey:resourceKey:actionKey.
type Action struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Role bundles action grants. ApplicationID is empty for organization-scoped
// roles and set for application-scoped ones.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ApplicationID  string    `json:"application_id,omitempty"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Active         bool      `json:"active"`
	ActionCount    int       `json:"action_count"`
	BuiltIn        bool      `json:"built_in,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ApplicationScoped reports whether the role belongs to a single application.
func (r Role) ApplicationScoped() bool { return r.ApplicationID != "" }

// Member is a user's membership in one organization.
type Member struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           OrgRole   `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Assignment records that a member holds an application role.
type Assignment struct {
	MemberID  string    `json:"member_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Grant joins a role to an action it permits, denormalized with the
// resource metadata needed by the resolution engine.
type Grant struct {
	RoleID       string `json:"role_id"`
	RoleKey      string `json:"role_key"`
	RoleName     string `json:"role_name"`
	ResourceKey  string `json:"resource_key"`
	ResourceName string `json:"resource_name"`
	ActionID     string `json:"action_id"`
	ActionKey    string `json:"action_key"`
	ActionName   string `json:"action_name"`
}

// RoleScope identifies where a role lives: always an organization, and
// optionally one of its applications.
type RoleScope struct {
	OrganizationID string
	ApplicationID  string
}

// ApplicationScoped reports whether the scope targets a single application.
func (s RoleScope) ApplicationScoped() bool { return s.ApplicationID != "" }

// RolePatch carries optional role mutations. Nil fields are left untouched.
type RolePatch struct {
	Name        *string
	Description *string
	Active      *bool
}
