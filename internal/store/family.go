package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/packwise/internal/model"
)

type FamilyStore struct {
	db DBTX
}

func NewFamilyStore(db DBTX) *FamilyStore {
	return &FamilyStore{db: db}
}

func (s *FamilyStore) WithTx(tx *sql.Tx) *FamilyStore {
	return &FamilyStore{db: tx}
}

const familyCols = `id, name, created_at, updated_at`

func scanFamily(row scanner) (*model.Family, error) {
	var f model.Family
	if err := row.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FamilyStore) Create(ctx context.Context, name string) (*model.Family, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *FamilyStore) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) Update(ctx context.Context, id int64, name string) (*model.Family, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE families SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update family: %w", err)
	}
	return s.GetByID(ctx, id)
}
