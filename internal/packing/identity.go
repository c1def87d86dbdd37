package packing

import (
	"context"
	"fmt"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/store"
)

// Register creates a family with its first user as family admin.
func (s *Service) Register(ctx context.Context, familyName, email, name, password string) (*model.User, *model.Family, error) {
	familyName, err := cleanName(familyName)
	if err != nil {
		return nil, nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	family, err := s.families.WithTx(tx).Create(ctx, familyName)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.WithTx(tx).Create(ctx, &family.ID, email, name, hash, model.RoleFamilyAdmin)
	if store.IsUniqueViolation(err) {
		return nil, nil, ErrEmailInUse
	}
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("family registered", "family_id", family.ID, "user_id", user.ID)
	return user, family, nil
}

// Login checks credentials and returns the user they belong to.
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrCredentials
	}
	return user, nil
}

// AuthFor builds the identity carried in a user's token.
func AuthFor(u *model.User) auth.AuthContext {
	ac := auth.AuthContext{UserID: u.ID, Role: u.Role}
	if u.FamilyID != nil {
		ac.FamilyID = *u.FamilyID
	}
	return ac
}

// AddMember creates a user in the actor's family. Only admins may add
// members and only system admins may create other system admins.
func (s *Service) AddMember(ctx context.Context, ac auth.AuthContext, familyID int64, email, name, password string, role model.Role) (*model.User, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	if role == "" {
		role = model.RoleFamilyMember
	}
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, ErrInvalid)
	}
	if role == model.RoleSystemAdmin && !ac.IsSystemAdmin() {
		return nil, ErrForbidden
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	family, err := s.families.GetByID(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, fmt.Errorf("family %d: %w", familyID, ErrNotFound)
	}

	user, err := s.users.Create(ctx, &familyID, email, name, hash, role)
	if store.IsUniqueViolation(err) {
		return nil, ErrEmailInUse
	}
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(familyID, "family_member", "created", user.ID, nil)
	return user, nil
}

func (s *Service) ListMembers(ctx context.Context, ac auth.AuthContext, familyID int64) ([]model.User, error) {
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	users, err := s.users.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}
