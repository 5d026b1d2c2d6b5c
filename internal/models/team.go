package models

// Team is a bar, a stand or an organizer crew. Permissions are granted to teams through their role.
type Team struct {
	Base

	Name     string `gorm:"type:text;not null" json:"name"`        // Display name.
	Group    string `gorm:"type:text;not null;index" json:"group"` // Channel group, e.g. "bar" or "orga".
	Location string `gorm:"type:text" json:"location"`             // Free-form location.
	Role     string `gorm:"type:text;not null" json:"role"`        // Role name from config roles.
}

// Identity implements Entity.
func (*Team) Identity() string { return "team" }
