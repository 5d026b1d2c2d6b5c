package handlers

import (
	"net/http"

	"github.com/flux-project/flux-server/internal/authz"
	"github.com/gin-gonic/gin"
)

// PermissionHandler lists the permissions roles may grant.
type PermissionHandler struct {
	roles map[string][]string
}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler(roles map[string][]string) *PermissionHandler {
	return &PermissionHandler{roles: roles}
}

// List returns every known permission and the configured roles.
func (h *PermissionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": authz.Definitions(), "roles": h.roles})
}
