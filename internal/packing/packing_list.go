package packing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/reconcile"
	"github.com/dukerupert/packwise/internal/store"
)

// ListDetail is a packing list with its items.
type ListDetail struct {
	model.PackingList
	Items []model.PackingListItemView `json:"items"`
}

func (s *Service) ListPackingLists(ctx context.Context, ac auth.AuthContext, familyID int64) ([]model.PackingList, error) {
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	lists, err := s.lists.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if lists == nil {
		lists = []model.PackingList{}
	}
	return lists, nil
}

func (s *Service) GetPackingList(ctx context.Context, ac auth.AuthContext, id int64) (*ListDetail, error) {
	l, err := s.list(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	views, err := s.listItems.ListViews(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return &ListDetail{PackingList: *l, Items: views}, nil
}

// CreatePackingList creates a list and, given a template, populates it
// from the template's expanded items and subscribes it to later edits.
func (s *Service) CreatePackingList(ctx context.Context, ac auth.AuthContext, familyID int64, name string, templateID *int64) (*ListDetail, error) {
	if !inFamily(ac, familyID) {
		return nil, ErrForbidden
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if templateID != nil {
		t, err := s.template(ctx, ac, *templateID)
		if err != nil {
			return nil, err
		}
		if t.FamilyID != familyID {
			return nil, fmt.Errorf("template %d: %w", t.ID, ErrNotFound)
		}
	}

	l, err := s.lists.Create(ctx, familyID, name)
	if err != nil {
		return nil, err
	}
	if templateID != nil {
		if _, err := s.engine.Populate(ctx, l.ID, *templateID, actor(ac)); err != nil {
			if derr := s.lists.SoftDelete(ctx, l.ID); derr != nil {
				s.logger.Error("discard unpopulated list", "list_id", l.ID, "error", derr)
			}
			return nil, err
		}
	}

	s.notifier.Notify(familyID, "packing_list", "created", l.ID, nil)
	return s.GetPackingList(ctx, ac, l.ID)
}

func (s *Service) RenamePackingList(ctx context.Context, ac auth.AuthContext, id int64, name string) (*model.PackingList, error) {
	l, err := s.list(ctx, ac, id)
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	l, err = s.lists.Rename(ctx, l.ID, name)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(l.FamilyID, "packing_list", "updated", l.ID, nil)
	return l, nil
}

func (s *Service) DeletePackingList(ctx context.Context, ac auth.AuthContext, id int64) error {
	l, err := s.list(ctx, ac, id)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.lists.WithTx(tx).SoftDelete(ctx, l.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.notifier.Notify(l.FamilyID, "packing_list", "deleted", l.ID, nil)
	return nil
}

// SubscribeTemplate subscribes an existing list and adds the template's
// items, reusing rows the list already has.
func (s *Service) SubscribeTemplate(ctx context.Context, ac auth.AuthContext, listID, templateID int64) (*reconcile.ListResult, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	t, err := s.template(ctx, ac, templateID)
	if err != nil {
		return nil, err
	}
	if t.FamilyID != l.FamilyID {
		return nil, fmt.Errorf("template %d: %w", templateID, ErrNotFound)
	}
	res, err := s.engine.Populate(ctx, l.ID, t.ID, actor(ac))
	if err != nil {
		return nil, s.engineErr(err)
	}
	s.notifier.Notify(l.FamilyID, "packing_list", "reconciled", l.ID, map[string]any{"template_id": t.ID})
	return res, nil
}

// UnsubscribeTemplate ends the subscription and removes the items only
// that template accounted for.
func (s *Service) UnsubscribeTemplate(ctx context.Context, ac auth.AuthContext, listID, templateID int64) (*reconcile.ListResult, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	subscribed, err := s.lists.TemplateIDs(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(subscribed, templateID) {
		return nil, fmt.Errorf("list %d is not subscribed to template %d: %w", l.ID, templateID, ErrNotFound)
	}
	res, err := s.engine.Unsubscribe(ctx, l.ID, templateID, actor(ac))
	if err != nil {
		return nil, s.engineErr(err)
	}
	s.notifier.Notify(l.FamilyID, "packing_list", "reconciled", l.ID, map[string]any{"template_id": templateID})
	return res, nil
}

// ResyncList runs a full reconciliation pass over the list.
func (s *Service) ResyncList(ctx context.Context, ac auth.AuthContext, listID int64) (*reconcile.ListResult, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.ResyncList(ctx, l.ID, actor(ac))
	if err != nil {
		return nil, s.engineErr(err)
	}
	s.notifier.Notify(l.FamilyID, "packing_list", "reconciled", l.ID, nil)
	return res, nil
}

func (s *Service) engineErr(err error) error {
	if errors.Is(err, reconcile.ErrListNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func (s *Service) ListItemsOf(ctx context.Context, ac auth.AuthContext, listID int64) ([]model.PackingListItemView, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	return s.listItems.ListViews(ctx, l.ID)
}

// listTx runs fn with tx-bound item and audit stores.
func (s *Service) listTx(ctx context.Context, fn func(items *store.PackingListItemStore, audit *store.AuditStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(s.listItems.WithTx(tx), s.audit.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AddItem puts a master item on the list by hand. Adding an item already
// on the list returns the existing row, now marked as manually added.
func (s *Service) AddItem(ctx context.Context, ac auth.AuthContext, listID, itemID int64, addedDuringPacking bool) (*model.PackingListItem, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	it, err := s.item(ctx, ac, itemID)
	if err != nil {
		return nil, err
	}
	if it.FamilyID != l.FamilyID {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}

	var pli *model.PackingListItem
	err = s.listTx(ctx, func(items *store.PackingListItemStore, audit *store.AuditStore) error {
		p, created, err := items.AddItem(ctx, l.ID, it.ID, addedDuringPacking)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("item %d: %w", itemID, ErrNotFound)
		}
		if err := items.MarkManual(ctx, p.ID); err != nil {
			return err
		}
		if created {
			if err := audit.Record(ctx, store.AuditRecord{
				ListID:      l.ID,
				ItemID:      &p.ID,
				ActorUserID: actor(ac),
				Action:      model.AuditItemAdded,
				Details:     fmt.Sprintf("Added %q", p.DisplayName),
				Metadata:    map[string]any{"source": "manual", "item_id": it.ID},
			}); err != nil {
				return err
			}
		}
		pli, err = items.GetByID(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(l.FamilyID, "packing_list_item", "added", pli.ID, map[string]any{"list_id": l.ID})
	return pli, nil
}

// AddOneOff adds a list-local item that no template will ever touch.
func (s *Service) AddOneOff(ctx context.Context, ac auth.AuthContext, listID int64, displayName string, addedDuringPacking bool) (*model.PackingListItem, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	displayName, err = cleanName(displayName)
	if err != nil {
		return nil, err
	}

	var pli *model.PackingListItem
	err = s.listTx(ctx, func(items *store.PackingListItemStore, audit *store.AuditStore) error {
		p, err := items.AddOneOff(ctx, l.ID, displayName, addedDuringPacking)
		if err != nil {
			return err
		}
		pli = p
		return audit.Record(ctx, store.AuditRecord{
			ListID:      l.ID,
			ItemID:      &p.ID,
			ActorUserID: actor(ac),
			Action:      model.AuditItemAdded,
			Details:     fmt.Sprintf("Added one-off %q", p.DisplayName),
			Metadata:    map[string]any{"source": "one_off"},
		})
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(l.FamilyID, "packing_list_item", "added", pli.ID, map[string]any{"list_id": l.ID})
	return pli, nil
}

// RemoveItem deletes a row by hand. The ITEM_REMOVED entry is written in
// the same transaction, before the row goes.
func (s *Service) RemoveItem(ctx context.Context, ac auth.AuthContext, listID, pliID int64) error {
	l, p, err := s.listItem(ctx, ac, listID, pliID)
	if err != nil {
		return err
	}
	err = s.listTx(ctx, func(items *store.PackingListItemStore, audit *store.AuditStore) error {
		meta := map[string]any{"source": "manual"}
		if p.ItemID != nil {
			meta["item_id"] = *p.ItemID
		}
		if err := audit.Record(ctx, store.AuditRecord{
			ListID:      l.ID,
			ItemID:      &p.ID,
			ActorUserID: actor(ac),
			Action:      model.AuditItemRemoved,
			Details:     fmt.Sprintf("Removed %q", p.DisplayName),
			Metadata:    meta,
		}); err != nil {
			return err
		}
		return items.Delete(ctx, p.ID)
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(l.FamilyID, "packing_list_item", "removed", p.ID, map[string]any{"list_id": l.ID})
	return nil
}

// SetChecked records a check for memberID, or the shared family check when
// memberID is nil.
func (s *Service) SetChecked(ctx context.Context, ac auth.AuthContext, listID, pliID int64, memberID *int64, checked bool) error {
	l, p, err := s.listItem(ctx, ac, listID, pliID)
	if err != nil {
		return err
	}
	if err := s.member(ctx, l.FamilyID, memberID); err != nil {
		return err
	}

	action, verb := model.AuditItemChecked, "Checked"
	if !checked {
		action, verb = model.AuditItemUnchecked, "Unchecked"
	}
	err = s.listTx(ctx, func(items *store.PackingListItemStore, audit *store.AuditStore) error {
		if err := items.SetUserChecked(ctx, p.ID, memberID, checked); err != nil {
			return err
		}
		return audit.Record(ctx, store.AuditRecord{
			ListID:            l.ID,
			ItemID:            &p.ID,
			ActorUserID:       actor(ac),
			Action:            action,
			AppliesToMemberID: memberID,
			Details:           fmt.Sprintf("%s %q", verb, p.DisplayName),
		})
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(l.FamilyID, "packing_list_item", "checked", p.ID, map[string]any{"list_id": l.ID, "checked": checked})
	return nil
}

// SetNotNeeded dismisses or restores an item for memberID, or for the whole
// list when memberID is nil.
func (s *Service) SetNotNeeded(ctx context.Context, ac auth.AuthContext, listID, pliID int64, memberID *int64, notNeeded bool) error {
	l, p, err := s.listItem(ctx, ac, listID, pliID)
	if err != nil {
		return err
	}
	if err := s.member(ctx, l.FamilyID, memberID); err != nil {
		return err
	}

	action, verb := model.AuditItemNotNeeded, "Marked %q not needed"
	if !notNeeded {
		action, verb = model.AuditItemNeeded, "Marked %q needed"
	}
	err = s.listTx(ctx, func(items *store.PackingListItemStore, audit *store.AuditStore) error {
		if err := items.SetNotNeeded(ctx, p.ID, memberID, notNeeded); err != nil {
			return err
		}
		return audit.Record(ctx, store.AuditRecord{
			ListID:            l.ID,
			ItemID:            &p.ID,
			ActorUserID:       actor(ac),
			Action:            action,
			AppliesToMemberID: memberID,
			Details:           fmt.Sprintf(verb, p.DisplayName),
		})
	})
	if err != nil {
		return err
	}
	s.notifier.Notify(l.FamilyID, "packing_list_item", "not_needed", p.ID, map[string]any{"list_id": l.ID, "not_needed": notNeeded})
	return nil
}

// SetAssignee assigns the row to a member, or back to the whole family.
func (s *Service) SetAssignee(ctx context.Context, ac auth.AuthContext, listID, pliID int64, memberID *int64) (*model.PackingListItem, error) {
	l, p, err := s.listItem(ctx, ac, listID, pliID)
	if err != nil {
		return nil, err
	}
	if err := s.member(ctx, l.FamilyID, memberID); err != nil {
		return nil, err
	}
	p, err = s.listItems.SetAssignee(ctx, p.ID, memberID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(l.FamilyID, "packing_list_item", "assigned", p.ID, map[string]any{"list_id": l.ID})
	return p, nil
}

// PromoteOneOff turns a one-off row into a master item of the family and
// repoints the row at it. A category linked to templates makes the new
// item part of their expansion.
func (s *Service) PromoteOneOff(ctx context.Context, ac auth.AuthContext, listID, pliID int64, categoryID *int64) (*model.PackingListItem, *model.Item, *Outcome, error) {
	l, p, err := s.listItem(ctx, ac, listID, pliID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !p.IsOneOff() {
		return nil, nil, nil, fmt.Errorf("packing list item %d already has a master item: %w", p.ID, ErrConstraint)
	}
	categoryID, err = s.resolveCategory(ctx, ac, l.FamilyID, p.DisplayName, categoryID)
	if err != nil {
		return nil, nil, nil, err
	}
	var templateIDs []int64
	if categoryID != nil {
		if templateIDs, err = s.categories.TemplateIDs(ctx, *categoryID); err != nil {
			return nil, nil, nil, err
		}
	}

	var item *model.Item
	out, err := s.mutateExpansion(ctx, ac, l.FamilyID, templateIDs, func(ts txStores) error {
		var err error
		if item, err = ts.items.Create(ctx, l.FamilyID, categoryID, p.DisplayName); err != nil {
			return err
		}
		if _, err := ts.listItems.Repoint(ctx, p.ID, item.ID); err != nil {
			return err
		}
		return ts.listItems.MarkManual(ctx, p.ID)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if p, err = s.listItems.GetByID(ctx, p.ID); err != nil {
		return nil, nil, nil, err
	}

	s.notifier.Notify(l.FamilyID, "item", "created", item.ID, nil)
	s.notifier.Notify(l.FamilyID, "packing_list_item", "promoted", p.ID, map[string]any{"list_id": l.ID, "item_id": item.ID})
	return p, item, out, nil
}

// ListAudit pages through a list's history, newest first.
func (s *Service) ListAudit(ctx context.Context, ac auth.AuthContext, listID int64, beforeID *int64, limit int) (*model.AuditPage, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	return s.audit.ListForList(ctx, l.ID, beforeID, limit)
}

// ListItemAudit pages through one row's history. The row may since have
// been removed.
func (s *Service) ListItemAudit(ctx context.Context, ac auth.AuthContext, listID, pliID int64, beforeID *int64, limit int) (*model.AuditPage, error) {
	l, err := s.list(ctx, ac, listID)
	if err != nil {
		return nil, err
	}
	return s.audit.ListForItem(ctx, l.ID, pliID, beforeID, limit)
}
