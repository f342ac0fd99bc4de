package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role represents an admin account's role
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User is an account that can sign in to the admin panel
type User struct {
	ID           uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	if u.Role == "" {
		u.Role = RoleEditor
	}
	return nil
}
