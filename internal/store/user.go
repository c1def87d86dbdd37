package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/packwise/internal/model"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) WithTx(tx *sql.Tx) *UserStore {
	return &UserStore{db: tx}
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var familyID sql.NullInt64
	var role string
	err := row.Scan(&u.ID, &familyID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.FamilyID = int64Ptr(familyID)
	u.Role = model.Role(role)
	return &u, nil
}

const userCols = `id, family_id, email, name, password_hash, role, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, familyID *int64, email, name, passwordHash string, role model.Role) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (family_id, email, name, password_hash, role) VALUES (?, ?, ?, ?, ?)`,
		nullInt64(familyID), strings.ToLower(strings.TrimSpace(email)), name, passwordHash, string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) ListByFamily(ctx context.Context, familyID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE family_id = ? ORDER BY name ASC, id ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// IsFamilyMember reports whether userID belongs to familyID.
func (s *UserStore) IsFamilyMember(ctx context.Context, familyID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ? AND family_id = ?`, userID, familyID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check family member: %w", err)
	}
	return n > 0, nil
}

func (s *UserStore) UpdateRole(ctx context.Context, id int64, role model.Role) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(role), id)
	if err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
