package packing

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
)

// TemplateDetail is a template with its raw links.
type TemplateDetail struct {
	model.Template
	CategoryIDs []int64 `json:"category_ids"`
	ItemIDs     []int64 `json:"item_ids"`
}

func (s *Service) ListTemplates(ctx context.Context, ac auth.AuthContext, familyID int64) ([]model.Template, error) {
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	ts, err := s.templates.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if ts == nil {
		ts = []model.Template{}
	}
	return ts, nil
}

func (s *Service) GetTemplate(ctx context.Context, ac auth.AuthContext, id int64) (*TemplateDetail, error) {
	t, err := s.template(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	m, err := s.templates.Membership(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &TemplateDetail{Template: *t, CategoryIDs: m.CategoryIDs, ItemIDs: m.ItemIDs}, nil
}

func (s *Service) CreateTemplate(ctx context.Context, ac auth.AuthContext, familyID int64, name, description string) (*model.Template, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.Create(ctx, familyID, name, description)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(familyID, "template", "created", t.ID, nil)
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, ac auth.AuthContext, id int64, name, description string) (*model.Template, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	t, err := s.template(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	t, err = s.templates.Update(ctx, t.ID, name, description)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(t.FamilyID, "template", "updated", t.ID, nil)
	return t, nil
}

// DeleteTemplate soft-deletes the template. Lists stop subscribing to it
// and lose its attributions, but keep every item it put there.
func (s *Service) DeleteTemplate(ctx context.Context, ac auth.AuthContext, id int64) error {
	if err := requireCatalog(ac); err != nil {
		return err
	}
	t, err := s.template(ctx, ac, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.templates.WithTx(tx).SoftDelete(ctx, t.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Notify(t.FamilyID, "template", "deleted", t.ID, nil)
	return nil
}

// ExpandedItems returns the live items the template currently puts on a
// list.
func (s *Service) ExpandedItems(ctx context.Context, ac auth.AuthContext, id int64) ([]model.Item, error) {
	t, err := s.template(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	items, err := s.templates.ExpandedItems(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Item{}
	}
	return items, nil
}

func (s *Service) mutateTemplate(ctx context.Context, ac auth.AuthContext, t *model.Template, mutate func(txStores) error) (*Outcome, error) {
	out, err := s.mutateExpansion(ctx, ac, t.FamilyID, []int64{t.ID}, mutate)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(t.FamilyID, "template", "updated", t.ID, nil)
	return out, nil
}

func (s *Service) AddTemplateItem(ctx context.Context, ac auth.AuthContext, templateID, itemID int64) (*Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	t, err := s.template(ctx, ac, templateID)
	if err != nil {
		return nil, err
	}
	it, err := s.item(ctx, ac, itemID)
	if err != nil {
		return nil, err
	}
	if it.FamilyID != t.FamilyID {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}
	return s.mutateTemplate(ctx, ac, t, func(ts txStores) error {
		_, err := ts.templates.AssignItem(ctx, t.ID, it.ID)
		return err
	})
}

// RemoveTemplateItem unlinks a direct item. An item removed from a list
// this way may still be present through a linked category.
func (s *Service) RemoveTemplateItem(ctx context.Context, ac auth.AuthContext, templateID, itemID int64) (*Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	t, err := s.template(ctx, ac, templateID)
	if err != nil {
		return nil, err
	}
	return s.mutateTemplate(ctx, ac, t, func(ts txStores) error {
		removed, err := ts.templates.RemoveItem(ctx, t.ID, itemID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("item %d is not linked to template %d: %w", itemID, t.ID, ErrNotFound)
		}
		return nil
	})
}

func (s *Service) AddTemplateCategory(ctx context.Context, ac auth.AuthContext, templateID, categoryID int64) (*Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	t, err := s.template(ctx, ac, templateID)
	if err != nil {
		return nil, err
	}
	c, err := s.category(ctx, ac, categoryID)
	if err != nil {
		return nil, err
	}
	if c.FamilyID != t.FamilyID {
		return nil, fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
	}
	return s.mutateTemplate(ctx, ac, t, func(ts txStores) error {
		_, err := ts.templates.AssignCategory(ctx, t.ID, c.ID)
		return err
	})
}

func (s *Service) RemoveTemplateCategory(ctx context.Context, ac auth.AuthContext, templateID, categoryID int64) (*Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	t, err := s.template(ctx, ac, templateID)
	if err != nil {
		return nil, err
	}
	return s.mutateTemplate(ctx, ac, t, func(ts txStores) error {
		removed, err := ts.templates.RemoveCategory(ctx, t.ID, categoryID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("category %d is not linked to template %d: %w", categoryID, t.ID, ErrNotFound)
		}
		return nil
	})
}

// SyncTemplateItems makes the template's direct items exactly itemIDs and
// returns the resulting direct membership. Category links are untouched.
func (s *Service) SyncTemplateItems(ctx context.Context, ac auth.AuthContext, templateID int64, itemIDs []int64) ([]int64, *Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, nil, err
	}
	t, err := s.template(ctx, ac, templateID)
	if err != nil {
		return nil, nil, err
	}

	desired := make([]int64, 0, len(itemIDs))
	for _, id := range itemIDs {
		if !slices.Contains(desired, id) {
			desired = append(desired, id)
		}
	}
	live, err := s.items.ActiveIDs(ctx, t.FamilyID, desired)
	if err != nil {
		return nil, nil, err
	}
	if len(live) != len(desired) {
		for _, id := range desired {
			if !slices.Contains(live, id) {
				return nil, nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
			}
		}
	}

	var membership []int64
	out, err := s.mutateTemplate(ctx, ac, t, func(ts txStores) error {
		if _, _, err := ts.templates.SyncItems(ctx, t.ID, desired); err != nil {
			return err
		}
		ids, err := ts.templates.DirectItemIDs(ctx, t.ID)
		membership = ids
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if membership == nil {
		membership = []int64{}
	}
	return membership, out, nil
}
