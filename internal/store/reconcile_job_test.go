package store

import (
	"context"
	"testing"

	"github.com/dukerupert/packwise/internal/model"
)

func TestReconcileJobLifecycle(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	tpl := createTemplate(t, db, f.ID, "Beach")
	jobs := NewReconcileJobStore(db)
	ctx := context.Background()

	j, err := jobs.Create(ctx, f.ID, tpl.ID, nil, []int64{3, 1}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.Status != model.JobPending || !equalIDs(j.ToAdd, []int64{3, 1}) || len(j.ToRemove) != 0 {
		t.Fatalf("job = %+v", j)
	}
	second, err := jobs.Create(ctx, f.ID, tpl.ID, nil, nil, []int64{9})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	pending, err := jobs.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != j.ID || pending[1].ID != second.ID {
		t.Fatalf("pending = %+v", pending)
	}

	ok, err := jobs.Claim(ctx, j.ID)
	if err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}
	ok, err = jobs.Claim(ctx, j.ID)
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v", ok, err)
	}

	if err := jobs.Finish(ctx, j.ID, model.JobPending, []int64{42}, "list 42: boom"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, err := jobs.GetByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.JobPending || got.Attempts != 1 {
		t.Errorf("status = %s attempts = %d", got.Status, got.Attempts)
	}
	if !equalIDs(got.ListIDs, []int64{42}) || !equalIDs(got.FailedListIDs, []int64{42}) {
		t.Errorf("list ids = %v failed = %v", got.ListIDs, got.FailedListIDs)
	}
	if got.LastError != "list 42: boom" {
		t.Errorf("last error = %q", got.LastError)
	}

	if ok, _ := jobs.Claim(ctx, j.ID); !ok {
		t.Fatal("retry claim failed")
	}
	if err := jobs.Finish(ctx, j.ID, model.JobDone, nil, ""); err != nil {
		t.Fatalf("finish done: %v", err)
	}
	got, _ = jobs.GetByID(ctx, j.ID)
	if got.Status != model.JobDone || got.Attempts != 2 || len(got.FailedListIDs) != 0 {
		t.Errorf("job = %+v", got)
	}
}

func TestReconcileJobResetRunning(t *testing.T) {
	db := setupTestDB(t)
	f := createFamily(t, db, "Family")
	tpl := createTemplate(t, db, f.ID, "Beach")
	jobs := NewReconcileJobStore(db)
	ctx := context.Background()

	j, err := jobs.Create(ctx, f.ID, tpl.ID, nil, []int64{1}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := jobs.Claim(ctx, j.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := jobs.ResetRunning(ctx)
	if err != nil || n != 1 {
		t.Fatalf("reset = %d, %v", n, err)
	}
	got, _ := jobs.GetByID(ctx, j.ID)
	if got.Status != model.JobPending {
		t.Errorf("status = %s", got.Status)
	}
}

func TestReconcileJobMissing(t *testing.T) {
	db := setupTestDB(t)
	got, err := NewReconcileJobStore(db).GetByID(context.Background(), 99)
	if err != nil || got != nil {
		t.Errorf("get missing = %+v, %v", got, err)
	}
}
