package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/flux-project/flux-server/internal/realtime"
	"github.com/flux-project/flux-server/internal/session"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Context keys set by the resolver.
const (
	actorKey   = "auth.actor"
	sessionKey = "auth.session"
)

// Resolver authenticates requests from their realtime connection or their bearer token.
type Resolver struct {
	db       *gorm.DB
	sessions *session.Store
	roles    map[string][]string
}

// NewResolver builds a resolver; roles maps team roles to permissions.
func NewResolver(conn *gorm.DB, sessions *session.Store, roles map[string][]string) *Resolver {
	return &Resolver{db: conn, sessions: sessions, roles: roles}
}

// Middleware attaches the actor when credentials are valid. Invalid credentials leave the request anonymous.
// Once the handler chain has run, the current session is touched asynchronously; a login
// handler may have replaced the resolved session with SetSession.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		connID := realtime.ConnIDFromContext(ctx)

		sess, actor, errResolve := r.resolve(ctx, connID, c.GetHeader("Authorization"))
		if errResolve != nil {
			log.WithError(errResolve).Debug("auth: request left unauthenticated")
		}
		if actor != nil {
			SetActor(c, actor, sess)
		}

		c.Next()

		if current := SessionFrom(c); current != nil {
			go r.sessions.Touch(context.Background(), current.ID, connID, c.ClientIP())
		}
	}
}

// Actor loads the actor of a verified user.
func (r *Resolver) Actor(ctx context.Context, user *models.User) (*authz.Actor, error) {
	var team models.Team
	if errTeam := r.db.WithContext(ctx).Take(&team, user.TeamID).Error; errTeam != nil {
		return nil, fmt.Errorf("auth: load team %d: %w", user.TeamID, errTeam)
	}
	return authz.NewActor(user, &team, r.roles), nil
}

func (r *Resolver) resolve(ctx context.Context, connID, header string) (*models.Session, *authz.Actor, error) {
	var (
		sess *models.Session
		user *models.User
		err  error
	)
	if connID != "" {
		sess, user, err = r.sessions.FindBySocket(ctx, connID)
	}
	if user == nil {
		token, ok := bearerToken(header)
		if !ok {
			if err == nil {
				err = errors.New("no credentials")
			}
			return nil, nil, err
		}
		sess, user, err = r.sessions.Verify(ctx, token)
		if err != nil {
			return nil, nil, err
		}
	}
	actor, errActor := r.Actor(ctx, user)
	if errActor != nil {
		return nil, nil, errActor
	}
	return sess, actor, nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireAuth rejects anonymous requests with Unauthorized.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFrom(c) == nil {
			httperr.Abort(c, httperr.Unauthorized("Authentication required"))
			return
		}
		c.Next()
	}
}

// RequirePermission rejects actors lacking perm with Forbidden.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorFrom(c).Can(perm) {
			httperr.Abort(c, httperr.Forbidden("Missing permission "+perm))
			return
		}
		c.Next()
	}
}

// SetActor attaches an authenticated actor and its session to the request.
func SetActor(c *gin.Context, actor *authz.Actor, sess *models.Session) {
	c.Set(actorKey, actor)
	c.Set(sessionKey, sess)
}

// SetSession replaces the request's session, as after a login on an authenticated connection.
func SetSession(c *gin.Context, sess *models.Session) {
	c.Set(sessionKey, sess)
}

// ActorFrom returns the authenticated actor, or nil.
func ActorFrom(c *gin.Context) *authz.Actor {
	value, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := value.(*authz.Actor)
	return actor
}

// SessionFrom returns the authenticated session, or nil.
func SessionFrom(c *gin.Context) *models.Session {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := value.(*models.Session)
	return sess
}

// LogFields reports the actor's ids for error logs.
func LogFields(c *gin.Context) log.Fields {
	actor := ActorFrom(c)
	if actor == nil {
		return log.Fields{}
	}
	return log.Fields{"user_id": actor.UserID(), "team_id": actor.TeamID()}
}
