package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/packwise/internal/model"
)

const liveList = `deleted_at IS NULL`

type PackingListStore struct {
	db DBTX
}

func NewPackingListStore(db DBTX) *PackingListStore {
	return &PackingListStore{db: db}
}

func (s *PackingListStore) WithTx(tx *sql.Tx) *PackingListStore {
	return &PackingListStore{db: tx}
}

func scanPackingList(row scanner) (*model.PackingList, error) {
	var l model.PackingList
	var deletedAt sql.NullTime
	if err := row.Scan(&l.ID, &l.FamilyID, &l.Name, &deletedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.State = model.StateFromNull(deletedAt)
	return &l, nil
}

const packingListCols = `id, family_id, name, deleted_at, created_at, updated_at`

func (s *PackingListStore) Create(ctx context.Context, familyID int64, name string) (*model.PackingList, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO packing_lists (family_id, name) VALUES (?, ?)`, familyID, name)
	if err != nil {
		return nil, fmt.Errorf("insert packing list: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the list, soft-deleted or not, with its subscribed
// template ids.
func (s *PackingListStore) GetByID(ctx context.Context, id int64) (*model.PackingList, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+packingListCols+` FROM packing_lists WHERE id = ?`, id)
	l, err := scanPackingList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get packing list: %w", err)
	}
	if l.TemplateIDs, err = s.TemplateIDs(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PackingListStore) ListByFamily(ctx context.Context, familyID int64) ([]model.PackingList, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+packingListCols+` FROM packing_lists WHERE family_id = ? AND `+liveList+` ORDER BY created_at DESC, id DESC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list packing lists: %w", err)
	}
	var lists []model.PackingList
	for rows.Next() {
		l, err := scanPackingList(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan packing list: %w", err)
		}
		lists = append(lists, *l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate packing lists: %w", err)
	}

	for i := range lists {
		if lists[i].TemplateIDs, err = s.TemplateIDs(ctx, lists[i].ID); err != nil {
			return nil, err
		}
	}
	return lists, nil
}

func (s *PackingListStore) Rename(ctx context.Context, id int64, name string) (*model.PackingList, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE packing_lists SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+liveList, name, id)
	if err != nil {
		return nil, fmt.Errorf("rename packing list: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SoftDelete hides the list and ends its subscriptions.
func (s *PackingListStore) SoftDelete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE packing_lists SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+liveList,
		time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("soft delete packing list: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM packing_list_templates WHERE packing_list_id = ?`, id); err != nil {
		return fmt.Errorf("drop list subscriptions: %w", err)
	}
	return nil
}

// Subscribe records that template edits propagate to the list. It reports
// false if the subscription already existed.
func (s *PackingListStore) Subscribe(ctx context.Context, listID, templateID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO packing_list_templates (packing_list_id, template_id) VALUES (?, ?)`,
		listID, templateID,
	)
	if err != nil {
		return false, fmt.Errorf("subscribe list: %w", err)
	}
	return affected(result)
}

func (s *PackingListStore) Unsubscribe(ctx context.Context, listID, templateID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM packing_list_templates WHERE packing_list_id = ? AND template_id = ?`,
		listID, templateID,
	)
	if err != nil {
		return false, fmt.Errorf("unsubscribe list: %w", err)
	}
	return affected(result)
}

// TemplateIDs lists the live templates the list subscribes to.
func (s *PackingListStore) TemplateIDs(ctx context.Context, listID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plt.template_id FROM packing_list_templates plt
		 JOIN templates t ON t.id = plt.template_id
		 WHERE plt.packing_list_id = ? AND t.deleted_at IS NULL
		 ORDER BY plt.template_id`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan subscriptions: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}
