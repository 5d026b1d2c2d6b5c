package app

import (
	"fmt"

	"github.com/flux-project/flux-server/internal/models"
	"gorm.io/gorm"
)

// HasTeamInitialized reports whether the database holds at least one team.
func HasTeamInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.Team{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.Team{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
