package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/packwise/internal/model"
)

const liveTemplate = `deleted_at IS NULL`

// TemplateStore holds templates and their category and direct item links.
type TemplateStore struct {
	db DBTX
}

func NewTemplateStore(db DBTX) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) WithTx(tx *sql.Tx) *TemplateStore {
	return &TemplateStore{db: tx}
}

func scanTemplate(row scanner) (*model.Template, error) {
	var t model.Template
	var deletedAt sql.NullTime
	err := row.Scan(&t.ID, &t.FamilyID, &t.Name, &t.Description, &deletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.State = model.StateFromNull(deletedAt)
	return &t, nil
}

const templateCols = `id, family_id, name, description, deleted_at, created_at, updated_at`

func (s *TemplateStore) Create(ctx context.Context, familyID int64, name, description string) (*model.Template, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (family_id, name, description) VALUES (?, ?, ?)`,
		familyID, name, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the template whether or not it is soft-deleted.
func (s *TemplateStore) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *TemplateStore) ListByFamily(ctx context.Context, familyID int64) ([]model.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM templates WHERE family_id = ? AND `+liveTemplate+` ORDER BY name ASC, id ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *TemplateStore) Update(ctx context.Context, id int64, name, description string) (*model.Template, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+liveTemplate,
		name, description, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SoftDelete marks the template deleted and detaches it from every packing
// list. Items it contributed stay on the lists without attribution.
func (s *TemplateStore) SoftDelete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE templates SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+liveTemplate,
		time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("soft delete template: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM packing_list_templates WHERE template_id = ?`, id); err != nil {
		return fmt.Errorf("drop template subscriptions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM packing_list_item_templates WHERE template_id = ?`, id); err != nil {
		return fmt.Errorf("drop template provenance: %w", err)
	}
	return nil
}

// --- Membership ---

// AssignCategory links a category. It reports false if the link existed.
func (s *TemplateStore) AssignCategory(ctx context.Context, templateID, categoryID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO template_categories (template_id, category_id) VALUES (?, ?)`,
		templateID, categoryID,
	)
	if err != nil {
		return false, fmt.Errorf("assign template category: %w", err)
	}
	return affected(result)
}

func (s *TemplateStore) RemoveCategory(ctx context.Context, templateID, categoryID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM template_categories WHERE template_id = ? AND category_id = ?`,
		templateID, categoryID,
	)
	if err != nil {
		return false, fmt.Errorf("remove template category: %w", err)
	}
	return affected(result)
}

// AssignItem links an item directly. It reports false if the link existed.
func (s *TemplateStore) AssignItem(ctx context.Context, templateID, itemID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO template_items (template_id, item_id) VALUES (?, ?)`,
		templateID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("assign template item: %w", err)
	}
	return affected(result)
}

func (s *TemplateStore) RemoveItem(ctx context.Context, templateID, itemID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM template_items WHERE template_id = ? AND item_id = ?`,
		templateID, itemID,
	)
	if err != nil {
		return false, fmt.Errorf("remove template item: %w", err)
	}
	return affected(result)
}

// DirectItemIDs lists directly linked items, deleted ones included.
func (s *TemplateStore) DirectItemIDs(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id FROM template_items WHERE template_id = ? ORDER BY item_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list template items: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan template items: %w", err)
	}
	return ids, nil
}

// DirectItems lists the live directly linked items.
func (s *TemplateStore) DirectItems(ctx context.Context, templateID int64) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+masterItemCols+` FROM items
		 WHERE `+liveItem+` AND id IN (SELECT item_id FROM template_items WHERE template_id = ?)
		 ORDER BY name ASC, id ASC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list direct template items: %w", err)
	}
	return scanMasterItems(rows)
}

func (s *TemplateStore) CategoryIDs(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id FROM template_categories WHERE template_id = ? ORDER BY category_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list template categories: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan template categories: %w", err)
	}
	return ids, nil
}

func (s *TemplateStore) Membership(ctx context.Context, templateID int64) (*model.TemplateMembership, error) {
	categoryIDs, err := s.CategoryIDs(ctx, templateID)
	if err != nil {
		return nil, err
	}
	itemIDs, err := s.DirectItemIDs(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if categoryIDs == nil {
		categoryIDs = []int64{}
	}
	if itemIDs == nil {
		itemIDs = []int64{}
	}
	return &model.TemplateMembership{TemplateID: templateID, CategoryIDs: categoryIDs, ItemIDs: itemIDs}, nil
}

const expandedWhere = liveItem + ` AND (
	id IN (SELECT item_id FROM template_items WHERE template_id = ?)
	OR category_id IN (SELECT category_id FROM template_categories WHERE template_id = ?)
)`

// ExpandedItems returns the live items of every linked category unioned with
// the live directly linked items. Each item appears once.
func (s *TemplateStore) ExpandedItems(ctx context.Context, templateID int64) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+masterItemCols+` FROM items WHERE `+expandedWhere+` ORDER BY name ASC, id ASC`,
		templateID, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("expand template: %w", err)
	}
	return scanMasterItems(rows)
}

// ExpandedItemIDs is ExpandedItems reduced to ids, in ascending order.
func (s *TemplateStore) ExpandedItemIDs(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM items WHERE `+expandedWhere+` ORDER BY id`,
		templateID, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("expand template ids: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan expanded ids: %w", err)
	}
	return ids, nil
}

// SyncItems makes the direct item links exactly desired. Category links are
// not touched. It returns the ids it linked and unlinked.
func (s *TemplateStore) SyncItems(ctx context.Context, templateID int64, desired []int64) (added, removed []int64, err error) {
	current, err := s.DirectItemIDs(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}

	want := make(map[int64]bool, len(desired))
	for _, id := range desired {
		want[id] = true
	}
	have := make(map[int64]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	for _, id := range current {
		if want[id] {
			continue
		}
		if _, err := s.RemoveItem(ctx, templateID, id); err != nil {
			return nil, nil, err
		}
		removed = append(removed, id)
	}
	for _, id := range desired {
		if have[id] {
			continue
		}
		have[id] = true
		if _, err := s.AssignItem(ctx, templateID, id); err != nil {
			return nil, nil, err
		}
		added = append(added, id)
	}
	return added, removed, nil
}

// SubscribedListIDs lists the live packing lists subscribed to the template.
func (s *TemplateStore) SubscribedListIDs(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plt.packing_list_id FROM packing_list_templates plt
		 JOIN packing_lists pl ON pl.id = plt.packing_list_id
		 WHERE plt.template_id = ? AND pl.deleted_at IS NULL
		 ORDER BY plt.packing_list_id`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscribed lists: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan subscribed lists: %w", err)
	}
	return ids, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
