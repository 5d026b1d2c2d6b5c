package httperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FieldsFunc adds request context, such as the user and team, to logged failures.
type FieldsFunc func(c *gin.Context) log.Fields

// Handler writes the error envelope for the last error attached with c.Error.
// Internal errors are logged with the request method and url plus any extra fields.
func Handler(fields FieldsFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		apiErr := classify(last.Err)
		if apiErr.Code >= http.StatusInternalServerError {
			entry := log.WithError(last.Err).WithFields(log.Fields{
				"method": c.Request.Method,
				"url":    c.Request.URL.String(),
			})
			if fields != nil {
				entry = entry.WithFields(fields(c))
			}
			entry.Error("request failed")
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(apiErr.Code, Envelope{Error: apiErr})
	}
}

// Recovery turns a handler panic into an Internal error. It must run after Handler so the
// envelope is written and the failure logged with the request fields.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		Abort(c, Internal(fmt.Errorf("panic: %v", recovered)))
	})
}

// Abort attaches err to the request and stops the handler chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// classify maps storage sentinels before falling back to From.
func classify(err error) *Error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("Entity not found")
	}
	return From(err)
}
