package model

import "time"

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobPartial JobStatus = "partial"
	JobFailed  JobStatus = "failed"
)

// ReconcileJob is a queued propagation of one template change to the
// packing lists subscribed to it. ListIDs narrows a retry to the lists
// that failed on an earlier attempt.
type ReconcileJob struct {
	ID            int64     `json:"id"`
	FamilyID      int64     `json:"family_id"`
	TemplateID    int64     `json:"template_id"`
	ActorUserID   *int64    `json:"actor_user_id"`
	ToAdd         []int64   `json:"to_add"`
	ToRemove      []int64   `json:"to_remove"`
	ListIDs       []int64   `json:"list_ids,omitempty"`
	Status        JobStatus `json:"status"`
	FailedListIDs []int64   `json:"failed_list_ids"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
