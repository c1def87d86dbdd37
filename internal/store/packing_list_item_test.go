package store

import (
	"context"
	"testing"
)

func TestAddItemReusesExistingRow(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	it := createItem(t, db, f.ID, nil, "Sunscreen")
	l := createList(t, db, f.ID, "Beach")
	ps := NewPackingListItemStore(db)
	ctx := context.Background()

	first, created, err := ps.AddItem(ctx, l.ID, it.ID, true)
	if err != nil || !created {
		t.Fatalf("first add = %v, %v", created, err)
	}
	if first.DisplayName != "Sunscreen" || !first.AddedDuringPacking {
		t.Errorf("row = %+v", first)
	}

	second, created, err := ps.AddItem(ctx, l.ID, it.ID, false)
	if err != nil || created {
		t.Fatalf("second add = %v, %v", created, err)
	}
	if second.ID != first.ID {
		t.Errorf("second add id = %d, want %d", second.ID, first.ID)
	}

	rows, err := ps.ListByList(ctx, l.ID)
	if err != nil || len(rows) != 1 {
		t.Errorf("rows = %+v, %v", rows, err)
	}
}

func TestAddItemSkipsDeletedMaster(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	it := createItem(t, db, f.ID, nil, "Sunscreen")
	l := createList(t, db, f.ID, "Beach")
	ctx := context.Background()

	if err := NewItemStore(db).SoftDelete(ctx, it.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	p, created, err := NewPackingListItemStore(db).AddItem(ctx, l.ID, it.ID, false)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if p != nil || created {
		t.Errorf("deleted item added: %+v", p)
	}
}

func TestOneOffAndRepoint(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	l := createList(t, db, f.ID, "Beach")
	ps := NewPackingListItemStore(db)
	ctx := context.Background()

	p, err := ps.AddOneOff(ctx, l.ID, "Grandma's gift", false)
	if err != nil {
		t.Fatalf("add one-off: %v", err)
	}
	if !p.IsOneOff() {
		t.Fatalf("expected one-off, got %+v", p)
	}

	it := createItem(t, db, f.ID, nil, "Grandma's gift")
	if err := ps.MarkManual(ctx, p.ID); err != nil {
		t.Fatalf("mark manual: %v", err)
	}
	got, err := ps.Repoint(ctx, p.ID, it.ID)
	if err != nil {
		t.Fatalf("repoint: %v", err)
	}
	if got.IsOneOff() || *got.ItemID != it.ID || !got.ManuallyAdded {
		t.Errorf("row = %+v", got)
	}

	found, err := ps.FindByMasterItem(ctx, l.ID, it.ID)
	if err != nil || found == nil || found.ID != p.ID {
		t.Errorf("find = %+v, %v", found, err)
	}
}

func TestSetUserCheckedPerMember(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	alice := createUser(t, db, f.ID, "alice@example.com", "Alice")
	it := createItem(t, db, f.ID, nil, "Socks")
	l := createList(t, db, f.ID, "Trip")
	p := addListItem(t, db, l.ID, it.ID)
	ps := NewPackingListItemStore(db)
	ctx := context.Background()

	if err := ps.SetUserChecked(ctx, p.ID, &alice.ID, true); err != nil {
		t.Fatalf("check alice: %v", err)
	}
	// Checking again updates the same row.
	if err := ps.SetUserChecked(ctx, p.ID, &alice.ID, true); err != nil {
		t.Fatalf("check alice again: %v", err)
	}
	got, _ := ps.GetByID(ctx, p.ID)
	if got.Checked {
		t.Error("member check must not set the list-level column")
	}

	if err := ps.SetUserChecked(ctx, p.ID, nil, true); err != nil {
		t.Fatalf("check family: %v", err)
	}
	if err := ps.SetUserChecked(ctx, p.ID, nil, false); err != nil {
		t.Fatalf("uncheck family: %v", err)
	}
	got, _ = ps.GetByID(ctx, p.ID)
	if got.Checked {
		t.Error("family uncheck should clear the list-level column")
	}

	views, err := ps.ListViews(ctx, l.ID)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if len(views) != 1 || len(views[0].Checks) != 2 {
		t.Fatalf("views = %+v", views)
	}
	byMember := map[bool]bool{}
	for _, c := range views[0].Checks {
		byMember[c.MemberID == nil] = c.Checked
		if c.Checked && c.CheckedAt == nil {
			t.Error("checked mark without checked_at")
		}
	}
	if !byMember[false] || byMember[true] {
		t.Errorf("checks = %+v", views[0].Checks)
	}
}

func TestSetNotNeeded(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	bob := createUser(t, db, f.ID, "bob@example.com", "Bob")
	it := createItem(t, db, f.ID, nil, "Swimsuit")
	l := createList(t, db, f.ID, "Trip")
	p := addListItem(t, db, l.ID, it.ID)
	ps := NewPackingListItemStore(db)
	ctx := context.Background()

	if err := ps.SetNotNeeded(ctx, p.ID, &bob.ID, true); err != nil {
		t.Fatalf("not needed bob: %v", err)
	}
	if err := ps.SetNotNeeded(ctx, p.ID, &bob.ID, true); err != nil {
		t.Fatalf("not needed bob twice: %v", err)
	}
	views, err := ps.ListViews(ctx, l.ID)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if !equalIDs(views[0].NotNeededBy, []int64{bob.ID}) || views[0].NotNeeded {
		t.Errorf("view = %+v", views[0])
	}

	if err := ps.SetNotNeeded(ctx, p.ID, &bob.ID, false); err != nil {
		t.Fatalf("needed bob: %v", err)
	}
	if err := ps.SetNotNeeded(ctx, p.ID, nil, true); err != nil {
		t.Fatalf("not needed family: %v", err)
	}
	views, _ = ps.ListViews(ctx, l.ID)
	if len(views[0].NotNeededBy) != 0 || !views[0].NotNeeded {
		t.Errorf("view = %+v", views[0])
	}
}

func TestSetAssigneeAndDelete(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	carol := createUser(t, db, f.ID, "carol@example.com", "Carol")
	it := createItem(t, db, f.ID, nil, "Tent")
	tpl := createTemplate(t, db, f.ID, "Camping")
	l := createList(t, db, f.ID, "Trip")
	p := addListItem(t, db, l.ID, it.ID)
	ps := NewPackingListItemStore(db)
	ctx := context.Background()

	got, err := ps.SetAssignee(ctx, p.ID, &carol.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AssignedMemberID == nil || *got.AssignedMemberID != carol.ID {
		t.Errorf("assignee = %v", got.AssignedMemberID)
	}

	if _, err := NewProvenanceStore(db).Record(ctx, p.ID, tpl.ID); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ps.SetUserChecked(ctx, p.ID, &carol.ID, true); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := ps.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, err := NewProvenanceStore(db).CountFor(ctx, p.ID)
	if err != nil || n != 0 {
		t.Errorf("provenance count after delete = %d, %v", n, err)
	}
	views, err := ps.ListViews(ctx, l.ID)
	if err != nil || len(views) != 0 {
		t.Errorf("views = %+v, %v", views, err)
	}
}
