package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/packwise/internal/model"
)

// liveItem is the single place item queries exclude soft-deleted rows.
const liveItem = `deleted_at IS NULL`

type ItemStore struct {
	db DBTX
}

func NewItemStore(db DBTX) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) WithTx(tx *sql.Tx) *ItemStore {
	return &ItemStore{db: tx}
}

func scanMasterItem(row scanner) (*model.Item, error) {
	var item model.Item
	var categoryID sql.NullInt64
	var deletedAt sql.NullTime
	err := row.Scan(&item.ID, &item.FamilyID, &categoryID, &item.Name, &deletedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.CategoryID = int64Ptr(categoryID)
	item.State = model.StateFromNull(deletedAt)
	return &item, nil
}

const masterItemCols = `id, family_id, category_id, name, deleted_at, created_at, updated_at`

func scanMasterItems(rows *sql.Rows) ([]model.Item, error) {
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		item, err := scanMasterItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *ItemStore) Create(ctx context.Context, familyID int64, categoryID *int64, name string) (*model.Item, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO items (family_id, category_id, name) VALUES (?, ?, ?)`,
		familyID, nullInt64(categoryID), name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the item whether or not it is soft-deleted; check State.
func (s *ItemStore) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+masterItemCols+` FROM items WHERE id = ?`, id)
	item, err := scanMasterItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *ItemStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+masterItemCols+` FROM items WHERE family_id = ? AND `+liveItem+` ORDER BY name ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return scanMasterItems(rows)
}

func (s *ItemStore) ListByCategory(ctx context.Context, categoryID int64) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+masterItemCols+` FROM items WHERE category_id = ? AND `+liveItem+` ORDER BY name ASC, id ASC`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items by category: %w", err)
	}
	return scanMasterItems(rows)
}

// ActiveIDs filters ids down to live items of the family, preserving order.
func (s *ItemStore) ActiveIDs(ctx context.Context, familyID int64, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks, args := inClause(ids)
	args = append([]any{familyID}, args...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM items WHERE family_id = ? AND `+liveItem+` AND id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("filter active items: %w", err)
	}
	found, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan active items: %w", err)
	}
	live := make(map[int64]bool, len(found))
	for _, id := range found {
		live[id] = true
	}
	out := make([]int64, 0, len(found))
	for _, id := range ids {
		if live[id] {
			out = append(out, id)
			delete(live, id)
		}
	}
	return out, nil
}

func (s *ItemStore) Update(ctx context.Context, id int64, name string, categoryID *int64) (*model.Item, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET name = ?, category_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+liveItem,
		name, nullInt64(categoryID), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SoftDelete marks the item deleted. Packing list rows referencing it are
// left alone.
func (s *ItemStore) SoftDelete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+liveItem,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("soft delete item: %w", err)
	}
	return nil
}
