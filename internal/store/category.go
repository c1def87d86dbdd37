package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/packwise/internal/model"
)

type CategoryStore struct {
	db DBTX
}

func NewCategoryStore(db DBTX) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) WithTx(tx *sql.Tx) *CategoryStore {
	return &CategoryStore{db: tx}
}

func scanCategory(row scanner) (*model.Category, error) {
	var c model.Category
	var position sql.NullInt64
	if err := row.Scan(&c.ID, &c.FamilyID, &c.Name, &position, &c.CreatedAt); err != nil {
		return nil, err
	}
	if position.Valid {
		p := int(position.Int64)
		c.Position = &p
	}
	return &c, nil
}

const categoryCols = `id, family_id, name, position, created_at`

func nullPosition(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func (s *CategoryStore) Create(ctx context.Context, familyID int64, name string, position *int) (*model.Category, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (family_id, name, position) VALUES (?, ?, ?)`,
		familyID, name, nullPosition(position),
	)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CategoryStore) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryCols+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// FindByName matches a family category by name, ignoring case.
func (s *CategoryStore) FindByName(ctx context.Context, familyID int64, name string) (*model.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryCols+` FROM categories WHERE family_id = ? AND name = ? COLLATE NOCASE ORDER BY id LIMIT 1`,
		familyID, name,
	)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return c, nil
}

// ListByFamily orders explicitly positioned categories first.
func (s *CategoryStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryCols+` FROM categories WHERE family_id = ?
		 ORDER BY position IS NULL, position ASC, name ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (s *CategoryStore) Update(ctx context.Context, id int64, name string, position *int) (*model.Category, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, position = ? WHERE id = ?`,
		name, nullPosition(position), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	return s.GetByID(ctx, id)
}

// TemplateIDs lists the active templates linking this category.
func (s *CategoryStore) TemplateIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tc.template_id FROM template_categories tc
		 JOIN templates t ON t.id = tc.template_id
		 WHERE tc.category_id = ? AND t.deleted_at IS NULL
		 ORDER BY tc.template_id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list category templates: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan category templates: %w", err)
	}
	return ids, nil
}

// Delete removes the category. Its items become uncategorized and its
// template links are dropped.
func (s *CategoryStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
