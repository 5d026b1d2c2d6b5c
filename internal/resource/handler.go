package resource

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/flux-project/flux-server/internal/auth"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/realtime"
	"github.com/gin-gonic/gin"
)

// Path returns the route prefix of the entity type.
func (c *Controller[E]) Path() string {
	return "/" + strings.ToLower(c.identity)
}

// Mount registers the CRUD and subscription routes on group. Every route requires authentication.
func (c *Controller[E]) Mount(group *gin.RouterGroup) {
	routes := group.Group(c.Path(), auth.RequireAuth())
	routes.GET("", c.handleFind)
	routes.GET("/:id", c.handleGet)
	routes.POST("", c.handleCreate)
	routes.PUT("/:id", c.handleUpdate)
	routes.DELETE("/:id", c.handleDestroy)
	routes.POST("/subscribe", c.handleSubscribe)
	routes.POST("/unsubscribe", c.handleUnsubscribe)
}

func (c *Controller[E]) handleFind(ctx *gin.Context) {
	where, errFilters := c.ParseFilters(ctx.Request.URL.Query())
	if errFilters != nil {
		httperr.Abort(ctx, errFilters)
		return
	}
	items, errFind := c.Find(ctx.Request.Context(), auth.ActorFrom(ctx), where)
	if errFind != nil {
		httperr.Abort(ctx, errFind)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

func (c *Controller[E]) handleGet(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	item, errGet := c.Get(ctx.Request.Context(), auth.ActorFrom(ctx), id)
	if errGet != nil {
		httperr.Abort(ctx, errGet)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller[E]) handleCreate(ctx *gin.Context) {
	payload, errRead := ctx.GetRawData()
	if errRead != nil {
		httperr.Abort(ctx, httperr.BadRequest("Unreadable request body"))
		return
	}
	item, errCreate := c.Create(ctx.Request.Context(), auth.ActorFrom(ctx), payload)
	if errCreate != nil {
		httperr.Abort(ctx, errCreate)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller[E]) handleUpdate(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	payload, errRead := ctx.GetRawData()
	if errRead != nil {
		httperr.Abort(ctx, httperr.BadRequest("Unreadable request body"))
		return
	}
	item, errUpdate := c.Update(ctx.Request.Context(), auth.ActorFrom(ctx), id, payload)
	if errUpdate != nil {
		httperr.Abort(ctx, errUpdate)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller[E]) handleDestroy(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	item, errDestroy := c.Destroy(ctx.Request.Context(), auth.ActorFrom(ctx), id)
	if errDestroy != nil {
		httperr.Abort(ctx, errDestroy)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (c *Controller[E]) handleSubscribe(ctx *gin.Context) {
	rooms, errSubscribe := c.Subscribe(auth.ActorFrom(ctx), realtime.ConnIDFromContext(ctx.Request.Context()))
	if errSubscribe != nil {
		httperr.Abort(ctx, errSubscribe)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (c *Controller[E]) handleUnsubscribe(ctx *gin.Context) {
	rooms, errUnsubscribe := c.Unsubscribe(auth.ActorFrom(ctx), realtime.ConnIDFromContext(ctx.Request.Context()))
	if errUnsubscribe != nil {
		httperr.Abort(ctx, errUnsubscribe)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func parseID(ctx *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		httperr.Abort(ctx, httperr.BadRequest("Invalid id"))
		return 0, false
	}
	return id, true
}
