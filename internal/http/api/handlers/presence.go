package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/flux-project/flux-server/internal/auth"
	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/flux-project/flux-server/internal/session"
	"github.com/gin-gonic/gin"
)

// TeamReader resolves a team the actor is allowed to read.
type TeamReader interface {
	Get(ctx context.Context, actor *authz.Actor, id uint64) (*models.Team, error)
}

// PresenceHandler reports whether teams have someone connected.
type PresenceHandler struct {
	teams    TeamReader
	sessions *session.Store
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(teams TeamReader, sessions *session.Store) *PresenceHandler {
	return &PresenceHandler{teams: teams, sessions: sessions}
}

// TeamActive reports whether a readable team has at least one live non-mobile session.
func (h *PresenceHandler) TeamActive(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		httperr.Abort(c, httperr.BadRequest("Invalid id"))
		return
	}
	team, errGet := h.teams.Get(c.Request.Context(), auth.ActorFrom(c), id)
	if errGet != nil {
		httperr.Abort(c, errGet)
		return
	}
	active, errActive := h.sessions.TeamActive(c.Request.Context(), team.ID)
	if errActive != nil {
		httperr.Abort(c, errActive)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teamId": team.ID, "active": active})
}
