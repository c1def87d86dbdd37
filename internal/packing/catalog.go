package packing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
)

// --- categories ---

func (s *Service) ListCategories(ctx context.Context, ac auth.AuthContext, familyID int64) ([]model.Category, error) {
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	cats, err := s.categories.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []model.Category{}
	}
	return cats, nil
}

func (s *Service) CreateCategory(ctx context.Context, ac auth.AuthContext, familyID int64, name string, position *int) (*model.Category, error) {
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
	c, err := s.categories.Create(ctx, familyID, name, position)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(familyID, "category", "created", c.ID, nil)
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, ac auth.AuthContext, id int64, name string, position *int) (*model.Category, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	c, err := s.category(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	c, err = s.categories.Update(ctx, c.ID, name, position)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(c.FamilyID, "category", "updated", c.ID, nil)
	return c, nil
}

// DeleteCategory removes the category. Its items become uncategorized, so
// templates linking it lose them from their expansion.
func (s *Service) DeleteCategory(ctx context.Context, ac auth.AuthContext, id int64) (*Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, err
	}
	c, err := s.category(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	templateIDs, err := s.categories.TemplateIDs(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	out, err := s.mutateExpansion(ctx, ac, c.FamilyID, templateIDs, func(ts txStores) error {
		return ts.categories.Delete(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(c.FamilyID, "category", "deleted", c.ID, nil)
	return out, nil
}

// --- items ---

func (s *Service) ListItems(ctx context.Context, ac auth.AuthContext, familyID int64) ([]model.Item, error) {
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	items, err := s.items.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Item{}
	}
	return items, nil
}

func (s *Service) GetItem(ctx context.Context, ac auth.AuthContext, id int64) (*model.Item, error) {
	return s.item(ctx, ac, id)
}

// categoryRef loads a category named in an item's fields. A missing one is
// bad input for the item, not a missing item.
func (s *Service) categoryRef(ctx context.Context, ac auth.AuthContext, id int64) (*model.Category, error) {
	c, err := s.category(ctx, ac, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("category %d does not exist: %w", id, ErrInvalid)
	}
	return c, err
}

// resolveCategory validates an explicit category, or picks the family
// category matching the suggestion for name.
func (s *Service) resolveCategory(ctx context.Context, ac auth.AuthContext, familyID int64, name string, categoryID *int64) (*int64, error) {
	if categoryID != nil {
		c, err := s.categoryRef(ctx, ac, *categoryID)
		if err != nil {
			return nil, err
		}
		if c.FamilyID != familyID {
			return nil, fmt.Errorf("category %d belongs to another family: %w", c.ID, ErrInvalid)
		}
		return &c.ID, nil
	}
	suggested := SuggestCategory(name)
	if suggested == FallbackCategory {
		return nil, nil
	}
	c, err := s.categories.FindByName(ctx, familyID, suggested)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return &c.ID, nil
}

// CreateItem adds a master item. An item landing in a category linked to
// templates extends their expansion, which propagates to subscribed lists.
func (s *Service) CreateItem(ctx context.Context, ac auth.AuthContext, familyID int64, name string, categoryID *int64) (*model.Item, *Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, nil, err
	}
	if !inFamily(ac, familyID) {
		return nil, nil, ErrForbidden
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, nil, err
	}
	categoryID, err = s.resolveCategory(ctx, ac, familyID, name, categoryID)
	if err != nil {
		return nil, nil, err
	}

	var templateIDs []int64
	if categoryID != nil {
		if templateIDs, err = s.categories.TemplateIDs(ctx, *categoryID); err != nil {
			return nil, nil, err
		}
	}

	var item *model.Item
	out, err := s.mutateExpansion(ctx, ac, familyID, templateIDs, func(ts txStores) error {
		var err error
		item, err = ts.items.Create(ctx, familyID, categoryID, name)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.notifier.Notify(familyID, "item", "created", item.ID, nil)
	return item, out, nil
}

// UpdateItem renames the item and moves it between categories. Names
// already copied onto packing lists are kept; a category move changes the
// expansion of templates linking either category.
func (s *Service) UpdateItem(ctx context.Context, ac auth.AuthContext, id int64, name string, categoryID *int64) (*model.Item, *Outcome, error) {
	if err := requireCatalog(ac); err != nil {
		return nil, nil, err
	}
	it, err := s.item(ctx, ac, id)
	if err != nil {
		return nil, nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, nil, err
	}
	if categoryID != nil {
		c, err := s.categoryRef(ctx, ac, *categoryID)
		if err != nil {
			return nil, nil, err
		}
		if c.FamilyID != it.FamilyID {
			return nil, nil, fmt.Errorf("category %d belongs to another family: %w", c.ID, ErrInvalid)
		}
	}

	var templateIDs []int64
	for _, cid := range []*int64{it.CategoryID, categoryID} {
		if cid == nil {
			continue
		}
		ids, err := s.categories.TemplateIDs(ctx, *cid)
		if err != nil {
			return nil, nil, err
		}
		for _, tid := range ids {
			if !slices.Contains(templateIDs, tid) {
				templateIDs = append(templateIDs, tid)
			}
		}
	}

	var updated *model.Item
	out, err := s.mutateExpansion(ctx, ac, it.FamilyID, templateIDs, func(ts txStores) error {
		var err error
		updated, err = ts.items.Update(ctx, it.ID, name, categoryID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.notifier.Notify(it.FamilyID, "item", "updated", it.ID, nil)
	return updated, out, nil
}

// DeleteItem soft-deletes the item. It leaves template expansions at once,
// but rows already on packing lists stay until the list is resynced.
func (s *Service) DeleteItem(ctx context.Context, ac auth.AuthContext, id int64) error {
	if err := requireCatalog(ac); err != nil {
		return err
	}
	it, err := s.item(ctx, ac, id)
	if err != nil {
		return err
	}
	if err := s.items.SoftDelete(ctx, it.ID); err != nil {
		return err
	}
	s.notifier.Notify(it.FamilyID, "item", "deleted", it.ID, nil)
	return nil
}
