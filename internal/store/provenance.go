package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ProvenanceStore records which templates account for each packing list
// item.
type ProvenanceStore struct {
	db DBTX
}

func NewProvenanceStore(db DBTX) *ProvenanceStore {
	return &ProvenanceStore{db: db}
}

func (s *ProvenanceStore) WithTx(tx *sql.Tx) *ProvenanceStore {
	return &ProvenanceStore{db: tx}
}

// Record attributes the item to the template. It reports false when the
// attribution already existed.
func (s *ProvenanceStore) Record(ctx context.Context, pliID, templateID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO packing_list_item_templates (packing_list_item_id, template_id) VALUES (?, ?)`,
		pliID, templateID,
	)
	if err != nil {
		return false, fmt.Errorf("record provenance: %w", err)
	}
	return affected(result)
}

// Remove drops one attribution and reports whether it existed.
func (s *ProvenanceStore) Remove(ctx context.Context, pliID, templateID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM packing_list_item_templates WHERE packing_list_item_id = ? AND template_id = ?`,
		pliID, templateID,
	)
	if err != nil {
		return false, fmt.Errorf("remove provenance: %w", err)
	}
	return affected(result)
}

func (s *ProvenanceStore) CountFor(ctx context.Context, pliID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM packing_list_item_templates WHERE packing_list_item_id = ?`, pliID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count provenance: %w", err)
	}
	return n, nil
}

func (s *ProvenanceStore) TemplatesFor(ctx context.Context, pliID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_id FROM packing_list_item_templates WHERE packing_list_item_id = ? ORDER BY template_id`,
		pliID,
	)
	if err != nil {
		return nil, fmt.Errorf("list provenance: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan provenance: %w", err)
	}
	return ids, nil
}

// ClaimedItems maps master item id to packing list item id for every row
// of the list attributed to the template.
func (s *ProvenanceStore) ClaimedItems(ctx context.Context, listID, templateID int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.item_id, p.id FROM packing_list_items p
		 JOIN packing_list_item_templates t ON t.packing_list_item_id = p.id
		 WHERE p.packing_list_id = ? AND t.template_id = ? AND p.item_id IS NOT NULL`,
		listID, templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list claimed items: %w", err)
	}
	defer rows.Close()

	claimed := make(map[int64]int64)
	for rows.Next() {
		var itemID, pliID int64
		if err := rows.Scan(&itemID, &pliID); err != nil {
			return nil, fmt.Errorf("scan claimed item: %w", err)
		}
		claimed[itemID] = pliID
	}
	return claimed, rows.Err()
}

// ListAttributed returns, for every row of the list with at least one
// attribution, the templates attributed to it.
func (s *ProvenanceStore) ListAttributed(ctx context.Context, listID int64) (map[int64][]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.packing_list_item_id, t.template_id FROM packing_list_item_templates t
		 JOIN packing_list_items p ON p.id = t.packing_list_item_id
		 WHERE p.packing_list_id = ? ORDER BY t.packing_list_item_id, t.template_id`,
		listID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attributed items: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var pliID, templateID int64
		if err := rows.Scan(&pliID, &templateID); err != nil {
			return nil, fmt.Errorf("scan attributed item: %w", err)
		}
		out[pliID] = append(out[pliID], templateID)
	}
	return out, rows.Err()
}
