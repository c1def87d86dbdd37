package auth

import (
	"context"

	"github.com/dukerupert/packwise/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID   int64
	FamilyID int64
	Role     model.Role
}

func (ac AuthContext) IsSystemAdmin() bool {
	return ac.Role == model.RoleSystemAdmin
}

// CanManageCatalog reports whether the actor may change categories, items
// and templates.
func (ac AuthContext) CanManageCatalog() bool {
	return ac.Role == model.RoleSystemAdmin || ac.Role == model.RoleFamilyAdmin
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func FamilyID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.FamilyID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.CanManageCatalog()
}
