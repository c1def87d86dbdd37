package model

import "time"

type Template struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TemplateMembership is the raw link set of a template.
type TemplateMembership struct {
	TemplateID  int64   `json:"template_id"`
	CategoryIDs []int64 `json:"category_ids"`
	ItemIDs     []int64 `json:"item_ids"`
}
