package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/dukerupert/packwise/internal/model"
)

// ReconcileJobStore is the queue of deferred template propagations.
type ReconcileJobStore struct {
	db DBTX
}

func NewReconcileJobStore(db DBTX) *ReconcileJobStore {
	return &ReconcileJobStore{db: db}
}

func (s *ReconcileJobStore) WithTx(tx *sql.Tx) *ReconcileJobStore {
	return &ReconcileJobStore{db: tx}
}

var jobCols = []string{
	"id", "family_id", "template_id", "actor_user_id", "to_add", "to_remove", "list_ids",
	"status", "failed_list_ids", "attempts", "last_error", "created_at", "updated_at",
}

func scanJob(row scanner) (*model.ReconcileJob, error) {
	var j model.ReconcileJob
	var actor sql.NullInt64
	var toAdd, toRemove, failed string
	var listIDs sql.NullString
	var status string
	err := row.Scan(
		&j.ID, &j.FamilyID, &j.TemplateID, &actor, &toAdd, &toRemove, &listIDs,
		&status, &failed, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ActorUserID = int64Ptr(actor)
	j.Status = model.JobStatus(status)
	if err := decodeIDs(toAdd, &j.ToAdd); err != nil {
		return nil, err
	}
	if err := decodeIDs(toRemove, &j.ToRemove); err != nil {
		return nil, err
	}
	if err := decodeIDs(failed, &j.FailedListIDs); err != nil {
		return nil, err
	}
	if listIDs.Valid {
		if err := decodeIDs(listIDs.String, &j.ListIDs); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

func encodeIDs(ids []int64) string {
	if ids == nil {
		ids = []int64{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(s string, dst *[]int64) error {
	*dst = []int64{}
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("decode id list: %w", err)
	}
	return nil
}

// Create enqueues a pending job.
func (s *ReconcileJobStore) Create(ctx context.Context, familyID, templateID int64, actorUserID *int64, toAdd, toRemove []int64) (*model.ReconcileJob, error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("reconcile_jobs")
	ib.Cols("family_id", "template_id", "actor_user_id", "to_add", "to_remove", "status")
	ib.Values(familyID, templateID, nullInt64(actorUserID), encodeIDs(toAdd), encodeIDs(toRemove), string(model.JobPending))
	query, args := ib.Build()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert reconcile job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ReconcileJobStore) GetByID(ctx context.Context, id int64) (*model.ReconcileJob, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(jobCols...).From("reconcile_jobs").Where(sb.Equal("id", id))
	query, args := sb.Build()

	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reconcile job: %w", err)
	}
	return j, nil
}

// ListPending returns up to limit pending jobs, oldest first.
func (s *ReconcileJobStore) ListPending(ctx context.Context, limit int) ([]model.ReconcileJob, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(jobCols...).From("reconcile_jobs").
		Where(sb.Equal("status", string(model.JobPending))).
		OrderBy("id").Asc().
		Limit(limit)
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.ReconcileJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reconcile job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Claim moves a pending job to running. It reports false when another
// worker got there first.
func (s *ReconcileJobStore) Claim(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reconcile_jobs SET status = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(model.JobRunning), id, string(model.JobPending),
	)
	if err != nil {
		return false, fmt.Errorf("claim reconcile job: %w", err)
	}
	return affected(result)
}

// Finish records the outcome of an attempt. failed lists the packing lists
// that could not be reconciled; a non-empty failed with status pending
// schedules a retry narrowed to those lists.
func (s *ReconcileJobStore) Finish(ctx context.Context, id int64, status model.JobStatus, failed []int64, lastError string) error {
	var listIDs sql.NullString
	if status == model.JobPending && len(failed) > 0 {
		listIDs = sql.NullString{String: encodeIDs(failed), Valid: true}
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("reconcile_jobs")
	ub.Set(
		ub.Assign("status", string(status)),
		ub.Assign("failed_list_ids", encodeIDs(failed)),
		ub.Assign("last_error", lastError),
		"updated_at = CURRENT_TIMESTAMP",
	)
	if listIDs.Valid {
		ub.SetMore(ub.Assign("list_ids", listIDs))
	}
	ub.Where(ub.Equal("id", id))
	query, args := ub.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("finish reconcile job: %w", err)
	}
	return nil
}

// ResetRunning returns jobs left running by a crashed process to pending.
func (s *ReconcileJobStore) ResetRunning(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reconcile_jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE status = ?`,
		string(model.JobPending), string(model.JobRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return result.RowsAffected()
}
