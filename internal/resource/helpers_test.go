package resource

import (
	"github.com/flux-project/flux-server/internal/auth"
	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/gin-gonic/gin"
)

// newTestEngine mounts the registry behind a stub that authenticates every request as actor.
func newTestEngine(f *fixture, actor *authz.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(httperr.Handler(nil), func(c *gin.Context) {
		auth.SetActor(c, actor, nil)
		c.Next()
	})
	f.registry.Mount(&engine.RouterGroup)
	return engine
}
