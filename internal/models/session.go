package models

import "time"

// Session is one authenticated client. Socket, device and firebase keys are unique when present.
type Session struct {
	Base

	UserID         uint64     `gorm:"not null;index" json:"userId"`                         // Owning user ID.
	IP             string     `gorm:"type:text" json:"ip"`                                  // Client IP at login.
	SocketID       *string    `gorm:"type:text;uniqueIndex" json:"socketId,omitempty"`      // Bound realtime connection.
	DeviceID       *string    `gorm:"type:text;uniqueIndex" json:"deviceId,omitempty"`      // Stable device identifier.
	FirebaseToken  *string    `gorm:"type:text;uniqueIndex" json:"firebaseToken,omitempty"` // Push token of a mobile client.
	LastAction     time.Time  `gorm:"not null;index" json:"lastAction"`                     // Last authenticated activity.
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`                             // Last socket disconnection.
}

// Identity implements Entity.
func (*Session) Identity() string { return "session" }
