package authz

import "testing"

func TestBuiltinRolesCatalogue(t *testing.T) {
	roles := BuiltinRoles()
	if len(roles) != 3 {
		t.Fatalf("builtins=%d, want 3", len(roles))
	}
	byKey := map[string]BuiltinRole{}
	for _, r := range roles {
		byKey[r.Key] = r
	}
	for _, key := range []string{"owner", "admin"} {
		b, ok := byKey[key]
		if !ok {
			t.Fatalf("missing built-in %q", key)
		}
		if len(b.Permissions) != 1 || b.Permissions[0] != "*:*:*" {
			t.Fatalf("%s permissions=%v, want [*:*:*]", key, b.Permissions)
		}
	}
	if len(byKey["member"].Permissions) != 0 {
		t.Fatalf("member must carry no implicit permissions, got %v", byKey["member"].Permissions)
	}

	// Mutating the returned slice must not leak into the catalogue.
	roles[0].Key = "clobbered"
	if BuiltinRoles()[0].Key == "clobbered" {
		t.Fatal("BuiltinRoles returned shared state")
	}
}

func TestIsReservedRoleName(t *testing.T) {
	for _, name := range []string{"owner", "Admin", "MEMBER", " owner "} {
		if !IsReservedRoleName(name) {
			t.Errorf("IsReservedRoleName(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"billing_approver", "owners", ""} {
		if IsReservedRoleName(name) {
			t.Errorf("IsReservedRoleName(%q) = true, want false", name)
		}
	}
}

func TestOrgRoleHelpers(t *testing.T) {
	if !OrgRoleOwner.Administrative() || !OrgRoleAdmin.Administrative() {
		t.Fatal("owner and admin must be administrative")
	}
	if OrgRoleMember.Administrative() {
		t.Fatal("member must not be administrative")
	}
	if OrgRole("superuser").Valid() {
		t.Fatal("unknown role reported valid")
	}
}
