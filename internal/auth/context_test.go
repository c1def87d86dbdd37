package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/packwise/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:   1,
		FamilyID: 2,
		Role:     model.RoleFamilyAdmin,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.FamilyID != 2 {
		t.Errorf("FamilyID = %d, want 2", got.FamilyID)
	}
	if got.Role != model.RoleFamilyAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleFamilyAdmin)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestFamilyID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{FamilyID: 42})
	if FamilyID(ctx) != 42 {
		t.Errorf("FamilyID = %d, want 42", FamilyID(ctx))
	}
}

func TestFamilyIDMissing(t *testing.T) {
	if FamilyID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		role model.Role
		want bool
	}{
		{model.RoleSystemAdmin, true},
		{model.RoleFamilyAdmin, true},
		{model.RoleFamilyMember, false},
	}
	for _, tt := range tests {
		ctx := WithAuth(context.Background(), AuthContext{Role: tt.role})
		if got := IsAdmin(ctx); got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestIsAdminMissing(t *testing.T) {
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
