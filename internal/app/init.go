package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flux-project/flux-server/internal/config"
	"github.com/flux-project/flux-server/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// minPasswordLength applies to the seeded admin account.
const minPasswordLength = 6

// ErrBootstrapIncomplete indicates the bootstrap section cannot seed an account.
var ErrBootstrapIncomplete = errors.New("bootstrap requires team-name, team-role, login and password")

// Bootstrap seeds the admin team and user when the database holds no team yet.
// It reports whether an account was created.
func Bootstrap(conn *gorm.DB, cfg config.BootstrapConfig, roles map[string][]string) (bool, error) {
	initialized, errInit := HasTeamInitialized(conn)
	if errInit != nil {
		return false, errInit
	}
	if initialized {
		return false, nil
	}
	if strings.TrimSpace(cfg.Login) == "" {
		log.Warn("database holds no team and no bootstrap account is configured")
		return false, nil
	}
	if errCreate := CreateAdminTeamWithConn(conn, cfg, roles); errCreate != nil {
		return false, errCreate
	}
	log.WithFields(log.Fields{"team": cfg.TeamName, "login": cfg.Login}).Info("bootstrap account created")
	return true, nil
}

// validateBootstrap checks the bootstrap section against the configured roles.
func validateBootstrap(cfg config.BootstrapConfig, roles map[string][]string) error {
	if strings.TrimSpace(cfg.TeamName) == "" || strings.TrimSpace(cfg.TeamRole) == "" ||
		strings.TrimSpace(cfg.Login) == "" || strings.TrimSpace(cfg.Password) == "" {
		return ErrBootstrapIncomplete
	}
	if len(cfg.Password) < minPasswordLength {
		return fmt.Errorf("bootstrap password must be at least %d characters", minPasswordLength)
	}
	if _, ok := roles[strings.TrimSpace(cfg.TeamRole)]; !ok {
		return fmt.Errorf("bootstrap team role %q is not defined", cfg.TeamRole)
	}
	return nil
}

// CreateAdminTeamWithConn creates the bootstrap team and its first user in one transaction.
func CreateAdminTeamWithConn(conn *gorm.DB, cfg config.BootstrapConfig, roles map[string][]string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	if errValidate := validateBootstrap(cfg, roles); errValidate != nil {
		return errValidate
	}

	group := strings.TrimSpace(cfg.TeamGroup)
	if group == "" {
		group = strings.TrimSpace(cfg.TeamRole)
	}
	login := strings.TrimSpace(cfg.Login)

	return conn.Transaction(func(tx *gorm.DB) error {
		team := models.Team{
			Name:  strings.TrimSpace(cfg.TeamName),
			Group: group,
			Role:  strings.TrimSpace(cfg.TeamRole),
		}
		if errCreate := tx.Create(&team).Error; errCreate != nil {
			return fmt.Errorf("create team: %w", errCreate)
		}
		user := models.User{
			Name:          login,
			Login:         &login,
			TeamID:        team.ID,
			PlainPassword: cfg.Password,
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return fmt.Errorf("create user: %w", errCreate)
		}
		return nil
	})
}
