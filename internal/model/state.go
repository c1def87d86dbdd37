package model

import (
	"database/sql"
	"encoding/json"
	"time"
)

// State is the lifecycle of a soft-deletable row: Active, or Deleted at a
// point in time. Stores translate deleted_at columns into a State at the
// boundary so callers never inspect nullable timestamps directly.
type State struct {
	deletedAt *time.Time
}

func Active() State {
	return State{}
}

func Deleted(at time.Time) State {
	t := at.UTC()
	return State{deletedAt: &t}
}

// StateFromNull builds a State from a scanned deleted_at column.
func StateFromNull(deletedAt sql.NullTime) State {
	if !deletedAt.Valid {
		return Active()
	}
	return Deleted(deletedAt.Time)
}

func (s State) IsDeleted() bool {
	return s.deletedAt != nil
}

func (s State) DeletedAt() (time.Time, bool) {
	if s.deletedAt == nil {
		return time.Time{}, false
	}
	return *s.deletedAt, true
}

func (s State) String() string {
	if s.IsDeleted() {
		return "deleted"
	}
	return "active"
}

func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		Status    string     `json:"status"`
		DeletedAt *time.Time `json:"deleted_at,omitempty"`
	}{Status: s.String(), DeletedAt: s.deletedAt}
	return json.Marshal(out)
}
