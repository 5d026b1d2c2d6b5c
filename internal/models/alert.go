package models

// Alert severities.
const (
	SeverityDone    = "done"
	SeverityWarning = "warning"
	SeveritySerious = "serious"
)

// Alert is a request for help sent from one team to another, or to nobody in particular.
type Alert struct {
	Base

	Title          string  `gorm:"type:text;not null" json:"title"`       // Short description.
	Severity       string  `gorm:"type:text;not null" json:"severity"`    // done, warning or serious.
	SenderTeamID   *uint64 `gorm:"index" json:"senderTeamId,omitempty"`   // Sending team.
	SenderUserID   *uint64 `gorm:"index" json:"senderUserId,omitempty"`   // Sending user.
	ReceiverTeamID *uint64 `gorm:"index" json:"receiverTeamId,omitempty"` // Receiving team, nil for unassigned.
	ButtonID       *uint64 `gorm:"index" json:"buttonId,omitempty"`       // Button the alert was raised from.
}

// Identity implements Entity.
func (*Alert) Identity() string { return "alert" }

// AlertButton is a predefined alert offered to the teams of a sender group.
type AlertButton struct {
	Base

	Title              string  `gorm:"type:text;not null" json:"title"`             // Button label.
	Category           string  `gorm:"type:text" json:"category"`                   // UI grouping.
	SenderGroup        string  `gorm:"type:text;not null;index" json:"senderGroup"` // Team group allowed to press it.
	ReceiverTeamID     *uint64 `gorm:"index" json:"receiverTeamId,omitempty"`       // Team receiving the alert.
	MessageRequired    bool    `gorm:"not null;default:false" json:"messageRequired"`
	MessagePlaceholder string  `gorm:"type:text" json:"messagePlaceholder"`
}

// Identity implements Entity.
func (*AlertButton) Identity() string { return "alertButton" }
