// Package reconcile keeps packing lists in step with the templates they
// subscribe to.
//
// Every change to a template's expanded item set is turned into a Delta and
// applied to each subscribed list as a pure add/remove diff. Rows present
// before and after are never rewritten, so check marks, not-needed flags
// and assignments survive. Each list is reconciled in its own transaction;
// one list failing does not stop the others.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/store"
)

// ErrProvenanceInconsistency marks a provenance row that disagrees with the
// current template expansions. It is logged, never returned to callers.
var ErrProvenanceInconsistency = errors.New("provenance inconsistency")

// ErrListNotFound is returned when the list is missing or soft-deleted.
var ErrListNotFound = errors.New("packing list not found")

// PartialFailureError reports the lists a propagation could not reach. The
// template mutation itself has been committed.
type PartialFailureError struct {
	TemplateID int64
	ListIDs    []int64
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.ListIDs))
	for i, id := range e.ListIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("reconcile template %d: %d list(s) failed: %s", e.TemplateID, len(e.ListIDs), strings.Join(ids, ", "))
}

// Delta is the change to one template's expanded item set.
type Delta struct {
	TemplateID int64   `json:"template_id"`
	ToAdd      []int64 `json:"to_add"`
	ToRemove   []int64 `json:"to_remove"`
}

// Diff returns newSet − oldSet as ToAdd and oldSet − newSet as ToRemove,
// both ascending.
func Diff(templateID int64, oldSet, newSet []int64) Delta {
	d := Delta{TemplateID: templateID, ToAdd: []int64{}, ToRemove: []int64{}}
	oldIdx := toSet(oldSet)
	newIdx := toSet(newSet)
	for id := range newIdx {
		if !oldIdx[id] {
			d.ToAdd = append(d.ToAdd, id)
		}
	}
	for id := range oldIdx {
		if !newIdx[id] {
			d.ToRemove = append(d.ToRemove, id)
		}
	}
	slices.Sort(d.ToAdd)
	slices.Sort(d.ToRemove)
	return d
}

func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

func toSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// ListResult counts what one pass did to one list.
type ListResult struct {
	ListID   int64  `json:"list_id"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Claimed  int    `json:"claimed"`
	Released int    `json:"released"`
	Kept     int    `json:"kept"`
	Error    string `json:"error,omitempty"`
}

// Report is the outcome of propagating one Delta.
type Report struct {
	TemplateID int64        `json:"template_id"`
	Succeeded  []int64      `json:"succeeded"`
	Failed     []int64      `json:"failed"`
	Lists      []ListResult `json:"lists"`

	// Error is set when the subscribed lists could not be determined, so
	// no list was reached.
	Error     string `json:"error,omitempty"`
	lookupErr error
}

// Err returns the subscriber lookup failure when no list could be reached,
// otherwise a *PartialFailureError when any list failed.
func (r *Report) Err() error {
	if r.lookupErr != nil {
		return fmt.Errorf("reconcile template %d: %w", r.TemplateID, r.lookupErr)
	}
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialFailureError{TemplateID: r.TemplateID, ListIDs: slices.Clone(r.Failed)}
}

// Engine applies template changes to packing lists.
type Engine struct {
	db        *sql.DB
	lists     *store.PackingListStore
	items     *store.PackingListItemStore
	templates *store.TemplateStore
	prov      *store.ProvenanceStore
	audit     *store.AuditStore
	logger    *slog.Logger
}

func NewEngine(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{
		db:        db,
		lists:     store.NewPackingListStore(db),
		items:     store.NewPackingListItemStore(db),
		templates: store.NewTemplateStore(db),
		prov:      store.NewProvenanceStore(db),
		audit:     store.NewAuditStore(db),
		logger:    logger.With("component", "reconcile"),
	}
}

// pass is one list's reconciliation inside one transaction. Template
// expansions are read fresh from the transaction and cached for its
// duration.
type pass struct {
	ctx       context.Context
	listID    int64
	actorID   *int64
	lists     *store.PackingListStore
	items     *store.PackingListItemStore
	templates *store.TemplateStore
	prov      *store.ProvenanceStore
	audit     *store.AuditStore
	logger    *slog.Logger

	expansions map[int64]map[int64]bool
	names      map[int64]string
	res        *ListResult
}

func (e *Engine) begin(ctx context.Context, listID int64, actorID *int64) (*sql.Tx, *pass, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	p := &pass{
		ctx:        ctx,
		listID:     listID,
		actorID:    actorID,
		lists:      e.lists.WithTx(tx),
		items:      e.items.WithTx(tx),
		templates:  e.templates.WithTx(tx),
		prov:       e.prov.WithTx(tx),
		audit:      e.audit.WithTx(tx),
		logger:     e.logger.With("list_id", listID),
		expansions: make(map[int64]map[int64]bool),
		names:      make(map[int64]string),
		res:        &ListResult{ListID: listID},
	}
	return tx, p, nil
}

// run executes fn in a fresh transaction for listID and commits it.
func (e *Engine) run(ctx context.Context, listID int64, actorID *int64, fn func(*pass) error) (*ListResult, error) {
	tx, p, err := e.begin(ctx, listID, actorID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	list, err := p.lists.GetByID(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list == nil || list.State.IsDeleted() {
		return nil, fmt.Errorf("packing list %d: %w", listID, ErrListNotFound)
	}

	if err := fn(p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p.res, nil
}

// Populate subscribes the list to the template and adds the template's
// whole expanded set.
func (e *Engine) Populate(ctx context.Context, listID, templateID int64, actorID *int64) (*ListResult, error) {
	res, err := e.run(ctx, listID, actorID, func(p *pass) error {
		if _, err := p.lists.Subscribe(ctx, listID, templateID); err != nil {
			return err
		}
		expanded, err := p.expansion(templateID)
		if err != nil {
			return err
		}
		for _, itemID := range sortedKeys(expanded) {
			if err := p.add(templateID, itemID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("populate list %d from template %d: %w", listID, templateID, err)
	}
	e.logger.Info("list populated", "list_id", listID, "template_id", templateID, "added", res.Added, "claimed", res.Claimed)
	return res, nil
}

// Unsubscribe ends the subscription and releases every item the template
// accounted for. Items nothing else justifies are removed.
func (e *Engine) Unsubscribe(ctx context.Context, listID, templateID int64, actorID *int64) (*ListResult, error) {
	res, err := e.run(ctx, listID, actorID, func(p *pass) error {
		if _, err := p.lists.Unsubscribe(ctx, listID, templateID); err != nil {
			return err
		}
		claimed, err := p.prov.ClaimedItems(ctx, listID, templateID)
		if err != nil {
			return err
		}
		for _, itemID := range sortedKeys(claimed) {
			if err := p.remove(templateID, itemID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unsubscribe list %d from template %d: %w", listID, templateID, err)
	}
	e.logger.Info("list unsubscribed", "list_id", listID, "template_id", templateID, "removed", res.Removed, "kept", res.Kept)
	return res, nil
}

// Apply propagates d to listIDs, or to every list subscribed to the
// template when listIDs is nil. Lists are reconciled independently; the
// report says which succeeded.
func (e *Engine) Apply(ctx context.Context, d Delta, actorID *int64, listIDs []int64) *Report {
	report := &Report{TemplateID: d.TemplateID, Succeeded: []int64{}, Failed: []int64{}, Lists: []ListResult{}}

	if listIDs == nil {
		ids, err := e.templates.SubscribedListIDs(ctx, d.TemplateID)
		if err != nil {
			e.logger.Error("list subscribers", "template_id", d.TemplateID, "error", err)
			report.lookupErr = err
			report.Error = err.Error()
			return report
		}
		listIDs = ids
	}
	if d.Empty() {
		report.Succeeded = append(report.Succeeded, listIDs...)
		return report
	}

	for _, listID := range listIDs {
		res, err := e.applyList(ctx, listID, d, actorID)
		if errors.Is(err, ErrListNotFound) {
			e.logger.Debug("skipping deleted list", "list_id", listID, "template_id", d.TemplateID)
			continue
		}
		if err != nil {
			e.logger.Error("reconcile list", "list_id", listID, "template_id", d.TemplateID, "error", err)
			report.Failed = append(report.Failed, listID)
			report.Lists = append(report.Lists, ListResult{ListID: listID, Error: err.Error()})
			continue
		}
		e.logger.Info("list reconciled", "list_id", listID, "template_id", d.TemplateID,
			"added", res.Added, "removed", res.Removed, "claimed", res.Claimed, "kept", res.Kept)
		report.Succeeded = append(report.Succeeded, listID)
		report.Lists = append(report.Lists, *res)
	}
	return report
}

func (e *Engine) applyList(ctx context.Context, listID int64, d Delta, actorID *int64) (*ListResult, error) {
	return e.run(ctx, listID, actorID, func(p *pass) error {
		subscribed, err := p.lists.TemplateIDs(ctx, listID)
		if err != nil {
			return err
		}
		if !slices.Contains(subscribed, d.TemplateID) {
			// Unsubscribed since the delta was computed; nothing to do.
			return nil
		}
		for _, itemID := range d.ToAdd {
			if err := p.add(d.TemplateID, itemID); err != nil {
				return err
			}
		}
		for _, itemID := range d.ToRemove {
			if err := p.remove(d.TemplateID, itemID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResyncList recomputes the list against every template it subscribes to:
// missing items are added, stale provenance rows are dropped, and rows left
// with no attribution and no manual add are removed.
func (e *Engine) ResyncList(ctx context.Context, listID int64, actorID *int64) (*ListResult, error) {
	res, err := e.run(ctx, listID, actorID, func(p *pass) error {
		subscribed, err := p.lists.TemplateIDs(ctx, listID)
		if err != nil {
			return err
		}
		attributed, err := p.prov.ListAttributed(ctx, listID)
		if err != nil {
			return err
		}

		for _, tid := range subscribed {
			expanded, err := p.expansion(tid)
			if err != nil {
				return err
			}
			for _, itemID := range sortedKeys(expanded) {
				if err := p.add(tid, itemID); err != nil {
					return err
				}
			}
		}

		active := toSet(subscribed)
		for _, pliID := range sortedKeys(attributed) {
			pli, err := p.items.GetByID(ctx, pliID)
			if err != nil {
				return err
			}
			if pli == nil || pli.ItemID == nil {
				continue
			}
			for _, tid := range attributed[pliID] {
				if active[tid] {
					expanded, err := p.expansion(tid)
					if err != nil {
						return err
					}
					if expanded[*pli.ItemID] {
						continue
					}
					p.logger.Warn("stale provenance dropped", "error", ErrProvenanceInconsistency,
						"packing_list_item_id", pliID, "template_id", tid)
				}
				if _, err := p.prov.Remove(ctx, pliID, tid); err != nil {
					return err
				}
				p.res.Released++
			}
			if err := p.dropIfUnclaimed(pli, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resync list %d: %w", listID, err)
	}
	e.logger.Info("list resynced", "list_id", listID, "added", res.Added, "removed", res.Removed, "released", res.Released)
	return res, nil
}

func (p *pass) expansion(templateID int64) (map[int64]bool, error) {
	if set, ok := p.expansions[templateID]; ok {
		return set, nil
	}
	ids, err := p.templates.ExpandedItemIDs(p.ctx, templateID)
	if err != nil {
		return nil, err
	}
	set := toSet(ids)
	p.expansions[templateID] = set
	return set, nil
}

func (p *pass) templateName(templateID int64) string {
	if name, ok := p.names[templateID]; ok {
		return name
	}
	name := fmt.Sprintf("#%d", templateID)
	if t, err := p.templates.GetByID(p.ctx, templateID); err == nil && t != nil {
		name = t.Name
	}
	p.names[templateID] = name
	return name
}

// add gives the list a row for itemID attributed to templateID, reusing a
// row the list already has for the same master item.
func (p *pass) add(templateID, itemID int64) error {
	expanded, err := p.expansion(templateID)
	if err != nil {
		return err
	}
	if !expanded[itemID] {
		// The template no longer claims the item; a later delta removes it.
		return nil
	}

	pli, created, err := p.items.AddItem(p.ctx, p.listID, itemID, false)
	if err != nil {
		return err
	}
	if pli == nil {
		return nil
	}
	recorded, err := p.prov.Record(p.ctx, pli.ID, templateID)
	if err != nil {
		return err
	}
	if !created {
		if recorded {
			p.res.Claimed++
		}
		return nil
	}

	p.res.Added++
	return p.audit.Record(p.ctx, store.AuditRecord{
		ListID:      p.listID,
		ItemID:      &pli.ID,
		ActorUserID: p.actorID,
		Action:      model.AuditItemAdded,
		Details:     fmt.Sprintf("Added %q from template %q", pli.DisplayName, p.templateName(templateID)),
		Metadata:    map[string]any{"source": "template", "template_id": templateID, "item_id": itemID},
	})
}

// remove releases templateID's claim on the list's row for itemID and
// deletes the row when nothing else justifies it.
func (p *pass) remove(templateID, itemID int64) error {
	pli, err := p.items.FindByMasterItem(p.ctx, p.listID, itemID)
	if err != nil {
		return err
	}
	if pli == nil {
		return nil
	}
	released, err := p.prov.Remove(p.ctx, pli.ID, templateID)
	if err != nil {
		return err
	}
	if !released {
		// Never attributed to this template.
		return nil
	}
	p.res.Released++

	// The union of every active subscription, recomputed fresh, decides.
	subscribed, err := p.lists.TemplateIDs(p.ctx, p.listID)
	if err != nil {
		return err
	}
	for _, tid := range subscribed {
		expanded, err := p.expansion(tid)
		if err != nil {
			return err
		}
		if !expanded[itemID] {
			continue
		}
		recorded, err := p.prov.Record(p.ctx, pli.ID, tid)
		if err != nil {
			return err
		}
		if recorded {
			p.logger.Debug("provenance moved to claiming template", "packing_list_item_id", pli.ID, "from", templateID, "to", tid)
		}
		p.res.Kept++
		return nil
	}

	remaining, err := p.prov.TemplatesFor(p.ctx, pli.ID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		p.logger.Warn("item kept by provenance of templates that no longer claim it",
			"error", ErrProvenanceInconsistency, "packing_list_item_id", pli.ID, "template_ids", remaining)
		p.res.Kept++
		return nil
	}
	return p.dropIfUnclaimed(pli, templateID)
}

// dropIfUnclaimed deletes pli when it has no provenance rows left and was
// not put on the list by a user. The ITEM_REMOVED entry is written first.
func (p *pass) dropIfUnclaimed(pli *model.PackingListItem, templateID int64) error {
	n, err := p.prov.CountFor(p.ctx, pli.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if pli.ManuallyAdded || pli.IsOneOff() {
		p.res.Kept++
		return nil
	}

	details := fmt.Sprintf("Removed %q: no subscribed template includes it", pli.DisplayName)
	metadata := map[string]any{"source": "reconcile", "item_id": *pli.ItemID}
	if templateID != 0 {
		details = fmt.Sprintf("Removed %q with template %q", pli.DisplayName, p.templateName(templateID))
		metadata = map[string]any{"source": "template", "template_id": templateID, "item_id": *pli.ItemID}
	}
	if err := p.audit.Record(p.ctx, store.AuditRecord{
		ListID:      p.listID,
		ItemID:      &pli.ID,
		ActorUserID: p.actorID,
		Action:      model.AuditItemRemoved,
		Details:     details,
		Metadata:    metadata,
	}); err != nil {
		return err
	}
	if err := p.items.Delete(p.ctx, pli.ID); err != nil {
		return err
	}
	p.res.Removed++
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
