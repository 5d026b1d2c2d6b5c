package models

import (
	"strings"

	"github.com/flux-project/flux-server/internal/security"
	"gorm.io/gorm"
)

// User represents an account that belongs to a team.
type User struct {
	Base

	Name   string  `gorm:"type:text" json:"name"`                        // Display name.
	Login  *string `gorm:"type:text;uniqueIndex" json:"login,omitempty"` // Unique login, nil for IP-only accounts.
	IP     *string `gorm:"type:text;index" json:"ip,omitempty"`          // Device IP used by IP login.
	TeamID uint64  `gorm:"not null;index" json:"teamId"`                 // Owning team ID.

	Password      string `gorm:"type:text" json:"-"`          // Hashed password.
	PlainPassword string `gorm:"-" json:"password,omitempty"` // Write-only cleartext, hashed on save.
}

// Identity implements Entity.
func (*User) Identity() string { return "user" }

// BeforeSave hashes a freshly supplied password.
func (u *User) BeforeSave(*gorm.DB) error {
	if strings.TrimSpace(u.PlainPassword) == "" {
		u.PlainPassword = ""
		return nil
	}
	hash, errHash := security.HashPassword(u.PlainPassword)
	if errHash != nil {
		return errHash
	}
	u.Password = hash
	u.PlainPassword = ""
	return nil
}
