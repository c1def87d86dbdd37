package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/packwise/internal/database"
	"github.com/dukerupert/packwise/internal/logging"
	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/store"
)

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *sql.DB
	engine    *Engine
	familyID  int64
	items     *store.ItemStore
	templates *store.TemplateStore
	lists     *store.PackingListStore
	plis      *store.PackingListItemStore
	prov      *store.ProvenanceStore
	audit     *store.AuditStore
}

func discardLogger() *slog.Logger {
	return logging.New(io.Discard, "error", "text")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	fam, err := store.NewFamilyStore(db).Create(ctx, "Family")
	require.NoError(t, err)

	return &fixture{
		t:         t,
		ctx:       ctx,
		db:        db,
		engine:    NewEngine(db, discardLogger()),
		familyID:  fam.ID,
		items:     store.NewItemStore(db),
		templates: store.NewTemplateStore(db),
		lists:     store.NewPackingListStore(db),
		plis:      store.NewPackingListItemStore(db),
		prov:      store.NewProvenanceStore(db),
		audit:     store.NewAuditStore(db),
	}
}

func (f *fixture) item(name string) int64 {
	f.t.Helper()
	it, err := f.items.Create(f.ctx, f.familyID, nil, name)
	require.NoError(f.t, err)
	return it.ID
}

func (f *fixture) template(name string, itemIDs ...int64) int64 {
	f.t.Helper()
	tpl, err := f.templates.Create(f.ctx, f.familyID, name, "")
	require.NoError(f.t, err)
	for _, id := range itemIDs {
		_, err := f.templates.AssignItem(f.ctx, tpl.ID, id)
		require.NoError(f.t, err)
	}
	return tpl.ID
}

func (f *fixture) list(name string, templateIDs ...int64) int64 {
	f.t.Helper()
	l, err := f.lists.Create(f.ctx, f.familyID, name)
	require.NoError(f.t, err)
	for _, tid := range templateIDs {
		_, err := f.engine.Populate(f.ctx, l.ID, tid, nil)
		require.NoError(f.t, err)
	}
	return l.ID
}

// change runs fn against the template and propagates the resulting delta.
func (f *fixture) change(templateID int64, fn func()) *Report {
	f.t.Helper()
	before, err := f.templates.ExpandedItemIDs(f.ctx, templateID)
	require.NoError(f.t, err)
	fn()
	after, err := f.templates.ExpandedItemIDs(f.ctx, templateID)
	require.NoError(f.t, err)
	return f.engine.Apply(f.ctx, Diff(templateID, before, after), nil, nil)
}

func (f *fixture) addToTemplate(templateID, itemID int64) *Report {
	return f.change(templateID, func() {
		_, err := f.templates.AssignItem(f.ctx, templateID, itemID)
		require.NoError(f.t, err)
	})
}

func (f *fixture) removeFromTemplate(templateID, itemID int64) *Report {
	return f.change(templateID, func() {
		_, err := f.templates.RemoveItem(f.ctx, templateID, itemID)
		require.NoError(f.t, err)
	})
}

// masterItems returns the master item ids on the list, ascending by name.
func (f *fixture) masterItems(listID int64) []int64 {
	f.t.Helper()
	rows, err := f.plis.ListByList(f.ctx, listID)
	require.NoError(f.t, err)
	ids := []int64{}
	for _, r := range rows {
		if r.ItemID != nil {
			ids = append(ids, *r.ItemID)
		}
	}
	return ids
}

func (f *fixture) row(listID, itemID int64) *model.PackingListItem {
	f.t.Helper()
	p, err := f.plis.FindByMasterItem(f.ctx, listID, itemID)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) provenance(listID, itemID int64) []int64 {
	f.t.Helper()
	p := f.row(listID, itemID)
	require.NotNil(f.t, p)
	ids, err := f.prov.TemplatesFor(f.ctx, p.ID)
	require.NoError(f.t, err)
	return ids
}

func TestDiff(t *testing.T) {
	d := Diff(1, []int64{3, 1, 2}, []int64{2, 4, 3, 5})
	assert.Equal(t, []int64{4, 5}, d.ToAdd)
	assert.Equal(t, []int64{1}, d.ToRemove)
	assert.False(t, d.Empty())

	same := Diff(1, []int64{1, 2}, []int64{2, 1})
	assert.True(t, same.Empty())
	assert.NotNil(t, same.ToAdd)
	assert.NotNil(t, same.ToRemove)
}

func TestPopulate(t *testing.T) {
	f := newFixture(t)
	a, b := f.item("A"), f.item("B")
	tpl := f.template("T", a, b)

	l, err := f.lists.Create(f.ctx, f.familyID, "Trip")
	require.NoError(t, err)
	res, err := f.engine.Populate(f.ctx, l.ID, tpl, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	assert.Equal(t, []int64{a, b}, f.masterItems(l.ID))
	assert.Equal(t, []int64{tpl}, f.provenance(l.ID, a))
	assert.Equal(t, []int64{tpl}, f.provenance(l.ID, b))

	subscribed, err := f.lists.TemplateIDs(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{tpl}, subscribed)

	page, err := f.audit.ListForList(f.ctx, l.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	for _, e := range page.Entries {
		assert.Equal(t, model.AuditItemAdded, e.Action)
		assert.Equal(t, model.AuditScopeFamily, e.Scope)
		assert.Equal(t, model.SystemActorName, e.ActorName)
	}

	// Populating again adds nothing and records no duplicate provenance.
	res, err = f.engine.Populate(f.ctx, l.ID, tpl, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, []int64{tpl}, f.provenance(l.ID, a))
}

func TestPopulateMissingList(t *testing.T) {
	f := newFixture(t)
	tpl := f.template("T")

	_, err := f.engine.Populate(f.ctx, 404, tpl, nil)
	assert.True(t, errors.Is(err, ErrListNotFound))
}

func TestIncrementalAddKeepsExistingState(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.item("A"), f.item("B"), f.item("C")
	tpl := f.template("T", a, b)
	l := f.list("Trip", tpl)

	pa := f.row(l, a)
	require.NoError(t, f.plis.SetUserChecked(f.ctx, pa.ID, nil, true))
	pb := f.row(l, b)
	require.NoError(t, f.plis.SetNotNeeded(f.ctx, pb.ID, nil, true))
	beforeA, beforeB := f.row(l, a), f.row(l, b)

	report := f.addToTemplate(tpl, c)
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{l}, report.Succeeded)
	require.Len(t, report.Lists, 1)
	assert.Equal(t, 1, report.Lists[0].Added)

	assert.Equal(t, []int64{a, b, c}, f.masterItems(l))
	assert.Equal(t, beforeA, f.row(l, a))
	assert.Equal(t, beforeB, f.row(l, b))
	assert.Equal(t, []int64{tpl}, f.provenance(l, c))
}

func TestRemoveKeepsItemClaimedByOtherTemplate(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.item("A"), f.item("B"), f.item("C")
	t1 := f.template("T1", a, b)
	t2 := f.template("T2", b, c)
	l := f.list("Trip", t1, t2)

	assert.Equal(t, []int64{a, b, c}, f.masterItems(l))
	assert.Equal(t, []int64{t1, t2}, f.provenance(l, b))

	report := f.removeFromTemplate(t1, b)
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{a, b, c}, f.masterItems(l))
	assert.Equal(t, []int64{t2}, f.provenance(l, b))

	report = f.removeFromTemplate(t2, b)
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{a, c}, f.masterItems(l))
	assert.Nil(t, f.row(l, b))
}

func TestOneOffsAreNeverTouched(t *testing.T) {
	f := newFixture(t)
	a := f.item("Sunscreen")
	tpl := f.template("T", a)
	l := f.list("Trip", tpl)

	oneOff, err := f.plis.AddOneOff(f.ctx, l, "Sunscreen", false)
	require.NoError(t, err)
	require.NoError(t, f.plis.SetUserChecked(f.ctx, oneOff.ID, nil, true))
	before, err := f.plis.GetByID(f.ctx, oneOff.ID)
	require.NoError(t, err)

	require.NoError(t, f.removeFromTemplate(tpl, a).Err())
	require.NoError(t, f.addToTemplate(tpl, a).Err())
	_, err = f.engine.ResyncList(f.ctx, l, nil)
	require.NoError(t, err)
	_, err = f.engine.Unsubscribe(f.ctx, l, tpl, nil)
	require.NoError(t, err)

	after, err := f.plis.GetByID(f.ctx, oneOff.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestManualAddIsNotDuplicated(t *testing.T) {
	f := newFixture(t)
	x := f.item("X")
	tpl := f.template("T")
	l := f.list("Trip", tpl)

	manual, created, err := f.plis.AddItem(f.ctx, l, x, true)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, f.plis.MarkManual(f.ctx, manual.ID))

	report := f.addToTemplate(tpl, x)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Lists[0].Claimed)
	assert.Zero(t, report.Lists[0].Added)

	rows, err := f.plis.ListByList(f.ctx, l)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, manual.ID, rows[0].ID)
	assert.Equal(t, []int64{tpl}, f.provenance(l, x))

	// A user put it there, so dropping it from the template keeps it.
	require.NoError(t, f.removeFromTemplate(tpl, x).Err())
	kept := f.row(l, x)
	require.NotNil(t, kept)
	assert.Equal(t, manual.ID, kept.ID)
	assert.Empty(t, f.provenance(l, x))
}

func TestAuditSurvivesRemoval(t *testing.T) {
	f := newFixture(t)
	a := f.item("A")
	tpl := f.template("T", a)
	l := f.list("Trip", tpl)
	pliID := f.row(l, a).ID

	require.NoError(t, f.removeFromTemplate(tpl, a).Err())
	assert.Nil(t, f.row(l, a))

	page, err := f.audit.ListForItem(f.ctx, l, pliID, nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, model.AuditItemRemoved, page.Entries[0].Action)
	assert.Equal(t, model.AuditItemAdded, page.Entries[1].Action)
	assert.Contains(t, page.Entries[0].Details, `"T"`)
}

func TestTemplatePropagationScenario(t *testing.T) {
	f := newFixture(t)
	itemA, itemB, itemC := f.item("item-a"), f.item("item-b"), f.item("item-c")
	tpl := f.template("tpl-prop", itemA, itemB)
	l := f.list("Trip", tpl)
	require.Equal(t, []int64{itemA, itemB}, f.masterItems(l))
	pliA := f.row(l, itemA).ID

	require.NoError(t, f.removeFromTemplate(tpl, itemA).Err())
	require.NoError(t, f.addToTemplate(tpl, itemC).Err())

	assert.Equal(t, []int64{itemB, itemC}, f.masterItems(l))
	n, err := f.prov.CountFor(f.ctx, pliA)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []int64{tpl}, f.provenance(l, itemC))
}

func TestCategoryLinkPropagates(t *testing.T) {
	f := newFixture(t)
	cat, err := store.NewCategoryStore(f.db).Create(f.ctx, f.familyID, "Toiletries", nil)
	require.NoError(t, err)
	brush, err := f.items.Create(f.ctx, f.familyID, &cat.ID, "Toothbrush")
	require.NoError(t, err)
	paste, err := f.items.Create(f.ctx, f.familyID, &cat.ID, "Toothpaste")
	require.NoError(t, err)
	tpl := f.template("T", brush.ID)
	l := f.list("Trip", tpl)

	report := f.change(tpl, func() {
		_, err := f.templates.AssignCategory(f.ctx, tpl, cat.ID)
		require.NoError(t, err)
	})
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{brush.ID, paste.ID}, f.masterItems(l))

	// The direct link still claims the toothbrush.
	report = f.change(tpl, func() {
		_, err := f.templates.RemoveCategory(f.ctx, tpl, cat.ID)
		require.NoError(t, err)
	})
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{brush.ID}, f.masterItems(l))
}

func TestPartialFailureIsolatesLists(t *testing.T) {
	f := newFixture(t)
	a, b := f.item("A"), f.item("B")
	tpl := f.template("T", a)
	good := f.list("Good", tpl)
	bad := f.list("Bad", tpl)

	_, err := f.db.Exec(fmt.Sprintf(`CREATE TRIGGER fail_bad BEFORE INSERT ON packing_list_items
		WHEN NEW.packing_list_id = %d BEGIN SELECT RAISE(ABORT, 'boom'); END`, bad))
	require.NoError(t, err)

	report := f.addToTemplate(tpl, b)
	assert.Equal(t, []int64{good}, report.Succeeded)
	assert.Equal(t, []int64{bad}, report.Failed)

	var pf *PartialFailureError
	require.True(t, errors.As(report.Err(), &pf))
	assert.Equal(t, tpl, pf.TemplateID)
	assert.Equal(t, []int64{bad}, pf.ListIDs)

	assert.Equal(t, []int64{a, b}, f.masterItems(good))
	assert.Equal(t, []int64{a}, f.masterItems(bad))

	// Retrying just the failed list once the fault clears catches it up.
	_, err = f.db.Exec(`DROP TRIGGER fail_bad`)
	require.NoError(t, err)
	retry := f.engine.Apply(f.ctx, Delta{TemplateID: tpl, ToAdd: []int64{b}, ToRemove: []int64{}}, nil, []int64{bad})
	require.NoError(t, retry.Err())
	assert.Equal(t, []int64{a, b}, f.masterItems(bad))
}

// breakSubscriptions makes the subscription table unreadable until the
// returned func restores it.
func (f *fixture) breakSubscriptions() func() {
	f.t.Helper()
	_, err := f.db.Exec(`ALTER TABLE packing_list_templates RENAME TO packing_list_templates_off`)
	require.NoError(f.t, err)
	return func() {
		_, err := f.db.Exec(`ALTER TABLE packing_list_templates_off RENAME TO packing_list_templates`)
		require.NoError(f.t, err)
	}
}

func TestApplyReportsSubscriberLookupFailure(t *testing.T) {
	f := newFixture(t)
	a, b := f.item("A"), f.item("B")
	tpl := f.template("T", a)
	l := f.list("Trip", tpl)

	_, err := f.templates.AssignItem(f.ctx, tpl, b)
	require.NoError(t, err)
	d := Delta{TemplateID: tpl, ToAdd: []int64{b}, ToRemove: []int64{}}

	restore := f.breakSubscriptions()
	report := f.engine.Apply(f.ctx, d, nil, nil)
	err = report.Err()
	require.Error(t, err)
	var pf *PartialFailureError
	assert.False(t, errors.As(err, &pf))
	assert.Contains(t, err.Error(), "list subscribed lists")
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, report.Succeeded)
	assert.Empty(t, report.Failed)

	restore()
	assert.Equal(t, []int64{a}, f.masterItems(l))
	report = f.engine.Apply(f.ctx, d, nil, nil)
	require.NoError(t, report.Err())
	assert.Empty(t, report.Error)
	assert.Equal(t, []int64{l}, report.Succeeded)
	assert.Equal(t, []int64{a, b}, f.masterItems(l))
}

func TestApplySkipsDeletedAndUnsubscribedLists(t *testing.T) {
	f := newFixture(t)
	a, b := f.item("A"), f.item("B")
	tpl := f.template("T", a)
	deleted := f.list("Deleted", tpl)
	left := f.list("Left", tpl)
	require.NoError(t, f.lists.SoftDelete(f.ctx, deleted))

	_, err := f.templates.AssignItem(f.ctx, tpl, b)
	require.NoError(t, err)
	report := f.engine.Apply(f.ctx, Delta{TemplateID: tpl, ToAdd: []int64{b}, ToRemove: []int64{}}, nil, []int64{deleted, left})
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{left}, report.Succeeded)

	_, err = f.lists.Unsubscribe(f.ctx, left, tpl)
	require.NoError(t, err)
	_, err = f.templates.RemoveItem(f.ctx, tpl, a)
	require.NoError(t, err)
	report = f.engine.Apply(f.ctx, Delta{TemplateID: tpl, ToAdd: []int64{}, ToRemove: []int64{a}}, nil, []int64{left})
	require.NoError(t, report.Err())
	assert.Equal(t, []int64{a, b}, f.masterItems(left))
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.item("A"), f.item("B"), f.item("C")
	t1 := f.template("T1", a, b)
	t2 := f.template("T2", b)
	l := f.list("Trip", t1, t2)

	pc, _, err := f.plis.AddItem(f.ctx, l, c, true)
	require.NoError(t, err)
	require.NoError(t, f.plis.MarkManual(f.ctx, pc.ID))

	res, err := f.engine.Unsubscribe(f.ctx, l, t1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)

	assert.Equal(t, []int64{b, c}, f.masterItems(l))
	assert.Equal(t, []int64{t2}, f.provenance(l, b))
	subscribed, err := f.lists.TemplateIDs(f.ctx, l)
	require.NoError(t, err)
	assert.Equal(t, []int64{t2}, subscribed)
}

func TestResyncList(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.item("A"), f.item("B"), f.item("C")
	tpl := f.template("T", a, b)
	l := f.list("Trip", tpl)

	// Change the template without propagating, and soft-delete a master
	// item, then let a resync catch the list up.
	_, err := f.templates.AssignItem(f.ctx, tpl, c)
	require.NoError(t, err)
	require.NoError(t, f.items.SoftDelete(f.ctx, a))

	require.NoError(t, f.plis.Delete(f.ctx, f.row(l, b).ID))

	res, err := f.engine.ResyncList(f.ctx, l, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []int64{b, c}, f.masterItems(l))
	assert.Equal(t, []int64{tpl}, f.provenance(l, b))

	res, err = f.engine.ResyncList(f.ctx, l, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Zero(t, res.Removed)
}
