package models

import "gorm.io/datatypes"

// ErrorLog stores a client-side error report.
type ErrorLog struct {
	Base

	Message string         `gorm:"type:text;not null" json:"message"`
	Stack   string         `gorm:"type:text" json:"stack"`
	Path    string         `gorm:"type:text" json:"path"`         // Client route when the error happened.
	UserID  *uint64        `gorm:"index" json:"userId,omitempty"` // Reporting user.
	TeamID  *uint64        `gorm:"index" json:"teamId,omitempty"` // Reporting team.
	Context datatypes.JSON `json:"context,omitempty"`             // Arbitrary client state.
}

// Identity implements Entity.
func (*ErrorLog) Identity() string { return "errorLog" }
