package authz

import "strings"

// BuiltinRole is a fixed organization-level role shipped with the platform.
// Built-ins are never persisted, never mutable, and their names are reserved
// against custom roles (case-insensitive).
type BuiltinRole struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

var builtinRoles = []BuiltinRole{
	{
		Key:         "owner",
		Name:        "Owner",
		Description: "Full control over the organization and every application in it",
		Permissions: []string{"*:*:*"},
	},
	{
		Key:         "admin",
		Name:        "Admin",
		Description: "Administers all applications within the organization",
		Permissions: []string{"*:*:*"},
	},
	{
		Key:         "member",
		Name:        "Member",
		Description: "Holds only explicitly assigned application roles",
		Permissions: nil,
	},
}

// BuiltinRoles returns the static catalogue. The result is a copy; callers
// may not mutate the catalogue.
func BuiltinRoles() []BuiltinRole {
	out := make([]BuiltinRole, len(builtinRoles))
	copy(out, builtinRoles)
	return out
}

// IsReservedRoleName reports whether the name collides with a built-in role.
func IsReservedRoleName(name string) bool {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, b := range builtinRoles {
		if name == b.Key || name == strings.ToLower(b.Name) {
			return true
		}
	}
	return false
}
