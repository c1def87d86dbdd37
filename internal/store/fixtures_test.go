package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/packwise/internal/database"
	"github.com/dukerupert/packwise/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createFamily(t *testing.T, db *sql.DB, name string) *model.Family {
	t.Helper()
	f, err := NewFamilyStore(db).Create(context.Background(), name)
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return f
}

func createUser(t *testing.T, db *sql.DB, familyID int64, email, name string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), &familyID, email, name, "", model.RoleFamilyMember)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func createCategory(t *testing.T, db *sql.DB, familyID int64, name string) *model.Category {
	t.Helper()
	c, err := NewCategoryStore(db).Create(context.Background(), familyID, name, nil)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

func createItem(t *testing.T, db *sql.DB, familyID int64, categoryID *int64, name string) *model.Item {
	t.Helper()
	it, err := NewItemStore(db).Create(context.Background(), familyID, categoryID, name)
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return it
}

func createTemplate(t *testing.T, db *sql.DB, familyID int64, name string) *model.Template {
	t.Helper()
	tpl, err := NewTemplateStore(db).Create(context.Background(), familyID, name, "")
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func createList(t *testing.T, db *sql.DB, familyID int64, name string) *model.PackingList {
	t.Helper()
	l, err := NewPackingListStore(db).Create(context.Background(), familyID, name)
	if err != nil {
		t.Fatalf("create packing list: %v", err)
	}
	return l
}

func addListItem(t *testing.T, db *sql.DB, listID, itemID int64) *model.PackingListItem {
	t.Helper()
	p, _, err := NewPackingListItemStore(db).AddItem(context.Background(), listID, itemID, false)
	if err != nil {
		t.Fatalf("add list item: %v", err)
	}
	if p == nil {
		t.Fatalf("add list item: item %d not added", itemID)
	}
	return p
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
