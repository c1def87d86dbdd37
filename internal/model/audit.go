package model

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditItemAdded     AuditAction = "ITEM_ADDED"
	AuditItemRemoved   AuditAction = "ITEM_REMOVED"
	AuditItemChecked   AuditAction = "ITEM_CHECKED"
	AuditItemUnchecked AuditAction = "ITEM_UNCHECKED"
	AuditItemNotNeeded AuditAction = "ITEM_NOT_NEEDED"
	AuditItemNeeded    AuditAction = "ITEM_NEEDED"
)

type AuditScope string

const (
	AuditScopeFamily AuditScope = "family"
	AuditScopeMember AuditScope = "member"
)

// ScopeFor returns the audit scope for a change that applies to memberID.
func ScopeFor(memberID *int64) AuditScope {
	if memberID == nil {
		return AuditScopeFamily
	}
	return AuditScopeMember
}

// SystemActorName is shown for audit rows without a resolvable actor.
const SystemActorName = "system"

type AuditEntry struct {
	ID                  int64           `json:"id"`
	ListID              int64           `json:"list_id"`
	ItemID              *int64          `json:"item_id"`
	ActorUserID         *int64          `json:"actor_user_id"`
	ActorName           string          `json:"actor_name"`
	Action              AuditAction     `json:"action"`
	Scope               AuditScope      `json:"scope"`
	AppliesToMemberID   *int64          `json:"applies_to_member_id"`
	AppliesToMemberName *string         `json:"applies_to_member_name"`
	Details             string          `json:"details"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

type AuditPage struct {
	Entries      []AuditEntry `json:"entries"`
	NextBeforeID *int64       `json:"next_before_id"`
}
