package model

import "time"

type Category struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	Name      string    `json:"name"`
	Position  *int      `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is a master item: the canonical, family-scoped packing object.
type Item struct {
	ID         int64     `json:"id"`
	FamilyID   int64     `json:"family_id"`
	CategoryID *int64    `json:"category_id"`
	Name       string    `json:"name"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
