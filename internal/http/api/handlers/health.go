package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports whether the service can reach its database.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		httperr.Abort(c, errDB)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if errPing := sqlDB.PingContext(ctx); errPing != nil {
		httperr.Abort(c, httperr.Expected(http.StatusServiceUnavailable, "DatabaseUnavailable", "Database unreachable").Wrap(errPing))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
