package model

import "time"

type Role string

const (
	RoleSystemAdmin  Role = "system_admin"
	RoleFamilyAdmin  Role = "family_admin"
	RoleFamilyMember Role = "family_member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystemAdmin, RoleFamilyAdmin, RoleFamilyMember:
		return true
	}
	return false
}

type Family struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID           int64     `json:"id"`
	FamilyID     *int64    `json:"family_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
