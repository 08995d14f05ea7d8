package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermProjectorRead, true},
		{RoleViewer, PermProjectorOperate, false},
		{RoleViewer, PermSystemAdmin, false},
		{RoleOperator, PermProjectorRead, true},
		{RoleOperator, PermProjectorOperate, true},
		{RoleOperator, PermSystemAdmin, false},
		{RoleAdmin, PermProjectorOperate, true},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("unknown"), PermProjectorRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleOperator)
	if len(perms) != 2 {
		t.Fatalf("PermissionsForRole(operator) = %v", perms)
	}

	perms[0] = PermSystemAdmin
	if HasPermission(RoleOperator, PermSystemAdmin) {
		t.Error("mutating the returned slice changed the role mapping")
	}

	if PermissionsForRole(Role("unknown")) != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%s) = false", r)
		}
	}
	if IsValidRole(Role("panel")) {
		t.Error("IsValidRole(panel) = true")
	}
}
