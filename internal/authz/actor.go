package authz

import (
	"strconv"

	"github.com/flux-project/flux-server/internal/models"
)

// Actor is the authenticated user, its team and the permissions granted by the team's role.
type Actor struct {
	User        *models.User
	Team        *models.Team
	Permissions []string
}

// NewActor resolves the team's role against roles.
func NewActor(user *models.User, team *models.Team, roles map[string][]string) *Actor {
	actor := &Actor{User: user, Team: team}
	if team != nil {
		actor.Permissions = append([]string(nil), roles[team.Role]...)
	}
	return actor
}

// Can reports whether the actor's team holds perm.
func (a *Actor) Can(perm string) bool {
	if a == nil || perm == "" {
		return false
	}
	for _, granted := range a.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// CanAny reports whether the actor holds at least one of perms.
func (a *Actor) CanAny(perms ...string) bool {
	for _, perm := range perms {
		if a.Can(perm) {
			return true
		}
	}
	return false
}

// UserID returns the actor's user id, or 0 when anonymous.
func (a *Actor) UserID() uint64 {
	if a == nil || a.User == nil {
		return 0
	}
	return a.User.ID
}

// TeamID returns the actor's team id, or 0 when the actor has no team.
func (a *Actor) TeamID() uint64 {
	if a == nil || a.Team == nil {
		return 0
	}
	return a.Team.ID
}

// TeamGroup returns the actor's team group, or "".
func (a *Actor) TeamGroup() string {
	if a == nil || a.Team == nil {
		return ""
	}
	return a.Team.Group
}

// Authenticated reports whether a user is attached.
func (a *Actor) Authenticated() bool {
	return a.UserID() != 0
}

func (a *Actor) teamIDString() string {
	return strconv.FormatUint(a.TeamID(), 10)
}
