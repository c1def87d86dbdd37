package model

import "time"

type PackingList struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Name        string    `json:"name"`
	State       State     `json:"state"`
	TemplateIDs []int64   `json:"template_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PackingListItem is one row of a packing list. ItemID is nil for one-off
// items that exist only on this list. ManuallyAdded is set when a user put
// the master item on the list directly; such rows outlive their templates.
type PackingListItem struct {
	ID                 int64     `json:"id"`
	ListID             int64     `json:"list_id"`
	ItemID             *int64    `json:"item_id"`
	DisplayName        string    `json:"display_name"`
	Checked            bool      `json:"checked"`
	AddedDuringPacking bool      `json:"added_during_packing"`
	NotNeeded          bool      `json:"not_needed"`
	ManuallyAdded      bool      `json:"manually_added"`
	AssignedMemberID   *int64    `json:"assigned_member_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p PackingListItem) IsOneOff() bool {
	return p.ItemID == nil
}

// ItemCheck is a check mark on a packing list item. A nil MemberID is the
// shared whole-family check.
type ItemCheck struct {
	MemberID  *int64     `json:"member_id"`
	Checked   bool       `json:"checked"`
	CheckedAt *time.Time `json:"checked_at"`
}

// PackingListItemView is a packing list item with its per-member state and
// the templates that account for its presence.
type PackingListItemView struct {
	PackingListItem
	Checks      []ItemCheck `json:"checks"`
	NotNeededBy []int64     `json:"not_needed_by"`
	TemplateIDs []int64     `json:"template_ids"`
}

// Provenance attributes a packing list item to a template.
type Provenance struct {
	PackingListItemID int64     `json:"packing_list_item_id"`
	TemplateID        int64     `json:"template_id"`
	CreatedAt         time.Time `json:"created_at"`
}
