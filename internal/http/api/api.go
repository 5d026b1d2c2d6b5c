package api

import (
	"net/http"

	"github.com/flux-project/flux-server/internal/auth"
	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/http/api/handlers"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/metrics"
	"github.com/flux-project/flux-server/internal/ratelimit"
	"github.com/flux-project/flux-server/internal/realtime"
	"github.com/flux-project/flux-server/internal/resource"
	"github.com/flux-project/flux-server/internal/session"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the services the routes are served from.
type Deps struct {
	DB       *gorm.DB
	Roles    map[string][]string
	Sessions *session.Store
	Resolver *auth.Resolver
	Registry *resource.Registry
	Limiter  *ratelimit.Manager
	// OAuth is nil when no provider is configured.
	OAuth handlers.OAuthProvider
	// Socket upgrades SocketPath to a websocket; nil disables the realtime transport.
	Socket     http.Handler
	SocketPath string
}

// RegisterRoutes installs the middleware chain and every route on r.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	r.Use(
		metrics.Instrument(bridged),
		httperr.Handler(auth.LogFields),
		httperr.Recovery(),
		deps.Resolver.Middleware(),
	)
	r.NoRoute(func(c *gin.Context) {
		httperr.Abort(c, httperr.NotFound("Route "+c.Request.Method+" "+c.Request.URL.Path+" not found"))
	})

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Socket != nil && deps.SocketPath != "" {
		r.GET(deps.SocketPath, gin.WrapH(deps.Socket))
	}

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Sessions, deps.Resolver, deps.Limiter, deps.OAuth)
	r.POST("/login/password", authHandler.LoginPassword)
	r.POST("/login/ip", authHandler.LoginIP)
	r.GET("/login/oauth", authHandler.OAuthRedirect)
	r.POST("/login/oauth/submit", authHandler.OAuthSubmit)

	authed := r.Group("", auth.RequireAuth())
	authed.POST("/login/jwt", authHandler.Renew)
	authed.POST("/login/as/:id", auth.RequirePermission(authz.PermAuthAs), authHandler.LoginAs)
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/me", authHandler.Me)

	permissionHandler := handlers.NewPermissionHandler(deps.Roles)
	authed.GET("/permissions", permissionHandler.List)

	presenceHandler := handlers.NewPresenceHandler(deps.Registry.Teams, deps.Sessions)
	authed.GET("/team/:id/active", presenceHandler.TeamActive)

	deps.Registry.Mount(&r.RouterGroup)
}

// bridged reports whether the request arrived through a socket.
func bridged(c *gin.Context) bool {
	return realtime.ConnIDFromContext(c.Request.Context()) != ""
}
