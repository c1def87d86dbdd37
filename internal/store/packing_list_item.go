package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/packwise/internal/model"
)

// PackingListItemStore holds the mutable rows of packing lists together
// with their per-member check and not-needed state.
type PackingListItemStore struct {
	db DBTX
}

func NewPackingListItemStore(db DBTX) *PackingListItemStore {
	return &PackingListItemStore{db: db}
}

func (s *PackingListItemStore) WithTx(tx *sql.Tx) *PackingListItemStore {
	return &PackingListItemStore{db: tx}
}

func scanPackingListItem(row scanner) (*model.PackingListItem, error) {
	var p model.PackingListItem
	var itemID, assignee sql.NullInt64
	var checked, duringPacking, notNeeded, manual int
	err := row.Scan(
		&p.ID, &p.ListID, &itemID, &p.DisplayName, &checked, &duringPacking,
		&notNeeded, &manual, &assignee, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ItemID = int64Ptr(itemID)
	p.AssignedMemberID = int64Ptr(assignee)
	p.Checked = checked != 0
	p.AddedDuringPacking = duringPacking != 0
	p.NotNeeded = notNeeded != 0
	p.ManuallyAdded = manual != 0
	return &p, nil
}

const pliCols = `id, packing_list_id, item_id, display_name, checked, added_during_packing, not_needed, manually_added, assigned_member_id, created_at, updated_at`

func (s *PackingListItemStore) GetByID(ctx context.Context, id int64) (*model.PackingListItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pliCols+` FROM packing_list_items WHERE id = ?`, id)
	p, err := scanPackingListItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get packing list item: %w", err)
	}
	return p, nil
}

// FindByMasterItem returns the list's row for a master item, if any.
func (s *PackingListItemStore) FindByMasterItem(ctx context.Context, listID, itemID int64) (*model.PackingListItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pliCols+` FROM packing_list_items WHERE packing_list_id = ? AND item_id = ?`,
		listID, itemID,
	)
	p, err := scanPackingListItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find packing list item: %w", err)
	}
	return p, nil
}

// AddItem puts a master item on a list, copying its name. Adding an item
// already on the list returns the existing row with created false. A nil
// row with a nil error means the master item does not exist or is deleted.
func (s *PackingListItemStore) AddItem(ctx context.Context, listID, itemID int64, addedDuringPacking bool) (*model.PackingListItem, bool, error) {
	existing, err := s.FindByMasterItem(ctx, listID, itemID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO packing_list_items (packing_list_id, item_id, display_name, added_during_packing)
		 SELECT ?, id, name, ? FROM items WHERE id = ? AND `+liveItem,
		listID, boolInt(addedDuringPacking), itemID,
	)
	if IsUniqueViolation(err) {
		// Lost a race with a concurrent insert; reuse the winner's row.
		existing, err := s.FindByMasterItem(ctx, listID, itemID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert packing list item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	p, err := s.GetByID(ctx, id)
	return p, p != nil, err
}

// AddOneOff adds a list-local item with no master item.
func (s *PackingListItemStore) AddOneOff(ctx context.Context, listID int64, displayName string, addedDuringPacking bool) (*model.PackingListItem, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO packing_list_items (packing_list_id, display_name, added_during_packing) VALUES (?, ?, ?)`,
		listID, displayName, boolInt(addedDuringPacking),
	)
	if err != nil {
		return nil, fmt.Errorf("insert one-off item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// MarkManual flags the row as put on the list by a user.
func (s *PackingListItemStore) MarkManual(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE packing_list_items SET manually_added = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark packing list item manual: %w", err)
	}
	return nil
}

// Repoint links a one-off row to a master item.
func (s *PackingListItemStore) Repoint(ctx context.Context, id, itemID int64) (*model.PackingListItem, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE packing_list_items SET item_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, itemID, id)
	if err != nil {
		return nil, fmt.Errorf("repoint packing list item: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *PackingListItemStore) ListByList(ctx context.Context, listID int64) ([]model.PackingListItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pliCols+` FROM packing_list_items WHERE packing_list_id = ? ORDER BY display_name ASC, id ASC`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list packing list items: %w", err)
	}
	defer rows.Close()

	var items []model.PackingListItem
	for rows.Next() {
		p, err := scanPackingListItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan packing list item: %w", err)
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// ListViews returns the list's items with member checks, member not-needed
// marks and attributing templates attached.
func (s *PackingListItemStore) ListViews(ctx context.Context, listID int64) ([]model.PackingListItemView, error) {
	items, err := s.ListByList(ctx, listID)
	if err != nil {
		return nil, err
	}
	views := make([]model.PackingListItemView, len(items))
	index := make(map[int64]int, len(items))
	for i, p := range items {
		views[i] = model.PackingListItemView{
			PackingListItem: p,
			Checks:          []model.ItemCheck{},
			NotNeededBy:     []int64{},
			TemplateIDs:     []int64{},
		}
		index[p.ID] = i
	}
	if len(items) == 0 {
		return views, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.packing_list_item_id, c.member_id, c.checked, c.checked_at
		 FROM packing_list_item_checks c
		 JOIN packing_list_items p ON p.id = c.packing_list_item_id
		 WHERE p.packing_list_id = ? ORDER BY c.id`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list item checks: %w", err)
	}
	for rows.Next() {
		var pliID int64
		var memberID sql.NullInt64
		var checked int
		var checkedAt sql.NullTime
		if err := rows.Scan(&pliID, &memberID, &checked, &checkedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item check: %w", err)
		}
		c := model.ItemCheck{MemberID: int64Ptr(memberID), Checked: checked != 0}
		if checkedAt.Valid {
			t := checkedAt.Time
			c.CheckedAt = &t
		}
		if i, ok := index[pliID]; ok {
			views[i].Checks = append(views[i].Checks, c)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item checks: %w", err)
	}

	if err := s.attachPairs(ctx, listID, views, index,
		`SELECT n.packing_list_item_id, n.member_id FROM packing_list_item_not_needed n
		 JOIN packing_list_items p ON p.id = n.packing_list_item_id
		 WHERE p.packing_list_id = ? ORDER BY n.member_id`,
		func(v *model.PackingListItemView, id int64) { v.NotNeededBy = append(v.NotNeededBy, id) },
	); err != nil {
		return nil, fmt.Errorf("list not-needed marks: %w", err)
	}

	if err := s.attachPairs(ctx, listID, views, index,
		`SELECT t.packing_list_item_id, t.template_id FROM packing_list_item_templates t
		 JOIN packing_list_items p ON p.id = t.packing_list_item_id
		 WHERE p.packing_list_id = ? ORDER BY t.template_id`,
		func(v *model.PackingListItemView, id int64) { v.TemplateIDs = append(v.TemplateIDs, id) },
	); err != nil {
		return nil, fmt.Errorf("list item provenance: %w", err)
	}

	return views, nil
}

func (s *PackingListItemStore) attachPairs(ctx context.Context, listID int64, views []model.PackingListItemView, index map[int64]int, query string, add func(*model.PackingListItemView, int64)) error {
	rows, err := s.db.QueryContext(ctx, query, listID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pliID, other int64
		if err := rows.Scan(&pliID, &other); err != nil {
			return err
		}
		if i, ok := index[pliID]; ok {
			add(&views[i], other)
		}
	}
	return rows.Err()
}

// SetUserChecked records a check mark for a member, or for the whole family
// when memberID is nil. The family mark also drives the list-level checked
// column.
func (s *PackingListItemStore) SetUserChecked(ctx context.Context, id int64, memberID *int64, checked bool) error {
	var checkedAt sql.NullTime
	if checked {
		checkedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE packing_list_item_checks SET checked = ?, checked_at = ?
		 WHERE packing_list_item_id = ? AND member_id IS ?`,
		boolInt(checked), checkedAt, id, nullInt64(memberID),
	)
	if err != nil {
		return fmt.Errorf("update item check: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO packing_list_item_checks (packing_list_item_id, member_id, checked, checked_at) VALUES (?, ?, ?, ?)`,
			id, nullInt64(memberID), boolInt(checked), checkedAt,
		); err != nil {
			return fmt.Errorf("insert item check: %w", err)
		}
	}

	if memberID == nil {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE packing_list_items SET checked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			boolInt(checked), id,
		); err != nil {
			return fmt.Errorf("update list-level check: %w", err)
		}
	}
	return nil
}

// SetNotNeeded dismisses or restores an item for one member, or for the
// whole list when memberID is nil.
func (s *PackingListItemStore) SetNotNeeded(ctx context.Context, id int64, memberID *int64, notNeeded bool) error {
	var err error
	switch {
	case memberID == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE packing_list_items SET not_needed = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			boolInt(notNeeded), id)
	case notNeeded:
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO packing_list_item_not_needed (packing_list_item_id, member_id) VALUES (?, ?)`,
			id, *memberID)
	default:
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM packing_list_item_not_needed WHERE packing_list_item_id = ? AND member_id = ?`,
			id, *memberID)
	}
	if err != nil {
		return fmt.Errorf("set not needed: %w", err)
	}
	return nil
}

// SetAssignee assigns the item to a member, or to the whole family when
// memberID is nil.
func (s *PackingListItemStore) SetAssignee(ctx context.Context, id int64, memberID *int64) (*model.PackingListItem, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE packing_list_items SET assigned_member_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullInt64(memberID), id)
	if err != nil {
		return nil, fmt.Errorf("set assignee: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes the row. Provenance, checks and not-needed marks go with
// it; audit history does not.
func (s *PackingListItemStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM packing_list_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete packing list item: %w", err)
	}
	return nil
}
