package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/packwise/internal/model"
)

func TestAuditPagination(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	l := createList(t, db, f.ID, "Trip")
	audit := NewAuditStore(db)
	ctx := context.Background()

	for i := 0; i < 55; i++ {
		require.NoError(t, audit.Record(ctx, AuditRecord{ListID: l.ID, Action: model.AuditItemAdded}))
	}

	first, err := audit.ListForList(ctx, l.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, first.Entries, DefaultAuditLimit)
	require.NotNil(t, first.NextBeforeID)
	assert.Greater(t, first.Entries[0].ID, first.Entries[1].ID, "newest first")
	assert.Equal(t, first.Entries[len(first.Entries)-1].ID, *first.NextBeforeID)

	second, err := audit.ListForList(ctx, l.ID, first.NextBeforeID, 0)
	require.NoError(t, err)
	assert.Len(t, second.Entries, 5)
	assert.Nil(t, second.NextBeforeID)
	for _, e := range second.Entries {
		assert.Less(t, e.ID, *first.NextBeforeID)
	}

	clamped, err := audit.ListForList(ctx, l.ID, nil, 500)
	require.NoError(t, err)
	assert.Len(t, clamped.Entries, 55)
}

func TestAuditItemPagination(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	tent := createItem(t, db, f.ID, nil, "Tent")
	stove := createItem(t, db, f.ID, nil, "Stove")
	l := createList(t, db, f.ID, "Trip")
	p := addListItem(t, db, l.ID, tent.ID)
	q := addListItem(t, db, l.ID, stove.ID)
	audit := NewAuditStore(db)
	ctx := context.Background()

	// Entries for another row interleave with the ones paged through.
	for i := 0; i < 55; i++ {
		require.NoError(t, audit.Record(ctx, AuditRecord{ListID: l.ID, ItemID: &p.ID, Action: model.AuditItemChecked}))
		require.NoError(t, audit.Record(ctx, AuditRecord{ListID: l.ID, ItemID: &q.ID, Action: model.AuditItemChecked}))
	}

	first, err := audit.ListForItem(ctx, l.ID, p.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, first.Entries, 50)
	require.NotNil(t, first.NextBeforeID)
	assert.Equal(t, first.Entries[len(first.Entries)-1].ID, *first.NextBeforeID)

	second, err := audit.ListForItem(ctx, l.ID, p.ID, first.NextBeforeID, 50)
	require.NoError(t, err)
	require.Len(t, second.Entries, 5)
	assert.Nil(t, second.NextBeforeID)

	seen := map[int64]bool{}
	for _, e := range append(first.Entries, second.Entries...) {
		require.NotNil(t, e.ItemID)
		assert.Equal(t, p.ID, *e.ItemID)
		assert.False(t, seen[e.ID], "entry %d on both pages", e.ID)
		seen[e.ID] = true
	}
	assert.Len(t, seen, 55)

	other, err := audit.ListForItem(ctx, l.ID, q.ID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, other.Entries, DefaultAuditLimit)
}

func TestClampAuditLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultAuditLimit},
		{-3, DefaultAuditLimit},
		{1, 1},
		{100, 100},
		{101, MaxAuditLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampAuditLimit(tt.in), "limit %d", tt.in)
	}
}

func TestAuditActorAndMemberNames(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	alice := createUser(t, db, f.ID, "alice@example.com", "Alice")
	gone := createUser(t, db, f.ID, "gone@example.com", "Gone")
	l := createList(t, db, f.ID, "Trip")
	audit := NewAuditStore(db)
	ctx := context.Background()

	require.NoError(t, audit.Record(ctx, AuditRecord{
		ListID: l.ID, ActorUserID: &alice.ID, Action: model.AuditItemChecked,
		AppliesToMemberID: &alice.ID,
	}))
	require.NoError(t, audit.Record(ctx, AuditRecord{
		ListID: l.ID, ActorUserID: &gone.ID, Action: model.AuditItemUnchecked,
		AppliesToMemberID: &gone.ID,
	}))
	require.NoError(t, audit.Record(ctx, AuditRecord{
		ListID: l.ID, Action: model.AuditItemAdded, Details: "template propagation",
	}))
	require.NoError(t, NewUserStore(db).Delete(ctx, gone.ID))

	page, err := audit.ListForList(ctx, l.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)

	system, departed, checked := page.Entries[0], page.Entries[1], page.Entries[2]

	assert.Equal(t, model.SystemActorName, system.ActorName)
	assert.Nil(t, system.ActorUserID)
	assert.Nil(t, system.AppliesToMemberName)
	assert.Equal(t, model.AuditScopeFamily, system.Scope)
	assert.Equal(t, "template propagation", system.Details)

	assert.Equal(t, model.SystemActorName, departed.ActorName)
	require.NotNil(t, departed.AppliesToMemberName)
	assert.Equal(t, model.SystemActorName, *departed.AppliesToMemberName)

	assert.Equal(t, "Alice", checked.ActorName)
	assert.Equal(t, model.AuditScopeMember, checked.Scope)
	require.NotNil(t, checked.AppliesToMemberName)
	assert.Equal(t, "Alice", *checked.AppliesToMemberName)
}

func TestAuditSurvivesItemDeletion(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	it := createItem(t, db, f.ID, nil, "Tent")
	other := createItem(t, db, f.ID, nil, "Stove")
	l := createList(t, db, f.ID, "Trip")
	p := addListItem(t, db, l.ID, it.ID)
	q := addListItem(t, db, l.ID, other.ID)
	audit := NewAuditStore(db)
	ctx := context.Background()

	require.NoError(t, audit.Record(ctx, AuditRecord{
		ListID: l.ID, ItemID: &p.ID, Action: model.AuditItemAdded,
		Metadata: map[string]any{"template_id": 7},
	}))
	require.NoError(t, audit.Record(ctx, AuditRecord{ListID: l.ID, ItemID: &q.ID, Action: model.AuditItemAdded}))
	require.NoError(t, audit.Record(ctx, AuditRecord{ListID: l.ID, ItemID: &p.ID, Action: model.AuditItemRemoved}))
	require.NoError(t, NewPackingListItemStore(db).Delete(ctx, p.ID))

	page, err := audit.ListForItem(ctx, l.ID, p.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, model.AuditItemRemoved, page.Entries[0].Action)
	assert.Equal(t, model.AuditItemAdded, page.Entries[1].Action)

	var meta map[string]int
	require.NoError(t, json.Unmarshal(page.Entries[1].Metadata, &meta))
	assert.Equal(t, 7, meta["template_id"])
	assert.Empty(t, page.Entries[0].Metadata)
}
