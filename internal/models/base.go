package models

import (
	"strconv"
	"time"
)

// Entity is implemented by every persisted type exposed through the generic controllers.
type Entity interface {
	// Identity is the lower-camel type name used for permissions, routes and rooms.
	Identity() string
	// Meta returns the embedded Base.
	Meta() *Base
}

// Base carries the identity and timestamps shared by every entity.
type Base struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`              // Primary key.
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"createdAt"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`       // Last update timestamp.
}

// Meta returns b.
func (b *Base) Meta() *Base { return b }

// IDString formats the id for group tags.
func (b *Base) IDString() string { return strconv.FormatUint(b.ID, 10) }

// All returns one zero value of every entity type, in migration order.
func All() []any {
	return []any{
		&Team{},
		&User{},
		&Session{},
		&AlertButton{},
		&Alert{},
		&BarrelType{},
		&Barrel{},
		&BottleType{},
		&BottleAction{},
		&Message{},
		&ErrorLog{},
	}
}
