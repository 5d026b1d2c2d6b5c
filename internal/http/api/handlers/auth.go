package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flux-project/flux-server/internal/auth"
	"github.com/flux-project/flux-server/internal/httperr"
	"github.com/flux-project/flux-server/internal/models"
	"github.com/flux-project/flux-server/internal/ratelimit"
	"github.com/flux-project/flux-server/internal/realtime"
	"github.com/flux-project/flux-server/internal/security"
	"github.com/flux-project/flux-server/internal/session"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StatusSessionNotFound is returned when a session-bound action runs without a session.
const StatusSessionNotFound = "SessionNotFound"

// AuthHandler serves the login, logout and identity endpoints.
type AuthHandler struct {
	db       *gorm.DB
	sessions *session.Store
	resolver *auth.Resolver
	limiter  *ratelimit.Manager
	oauth    OAuthProvider
}

// NewAuthHandler constructs an AuthHandler. oauth may be nil when no provider is configured.
func NewAuthHandler(db *gorm.DB, sessions *session.Store, resolver *auth.Resolver, limiter *ratelimit.Manager, oauth OAuthProvider) *AuthHandler {
	return &AuthHandler{db: db, sessions: sessions, resolver: resolver, limiter: limiter, oauth: oauth}
}

// deviceRequest carries the optional mobile device identifiers of a login.
type deviceRequest struct {
	DeviceID      string `json:"deviceId"`
	FirebaseToken string `json:"firebaseToken"`
}

// passwordLoginRequest defines the request body for password login.
type passwordLoginRequest struct {
	deviceRequest
	Login    string `json:"login"`
	Password string `json:"password"`
}

// oauthSubmitRequest defines the request body for the OAuth callback.
type oauthSubmitRequest struct {
	deviceRequest
	AuthorizationCode string `json:"authorizationCode"`
}

// loginResponse is returned by every successful login.
type loginResponse struct {
	JWT  string       `json:"jwt"`
	User *models.User `json:"user"`
	Team *models.Team `json:"team"`
}

// LoginPassword authenticates a login and password.
func (h *AuthHandler) LoginPassword(c *gin.Context) {
	var body passwordLoginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.Abort(c, httperr.BadRequest("Invalid json"))
		return
	}
	login := strings.TrimSpace(body.Login)
	if login == "" || body.Password == "" {
		httperr.Abort(c, httperr.BadRequest("Missing login or password"))
		return
	}
	if !h.allow(c, login) {
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("login = ?", login).Take(&user).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		httperr.Abort(c, errFind)
		return
	}
	if errFind != nil || !security.CheckPassword(user.Password, body.Password) {
		httperr.Abort(c, httperr.Unauthorized("Invalid login or password"))
		return
	}
	h.issue(c, &user, body.deviceRequest)
}

// LoginIP authenticates the user registered for the client IP.
func (h *AuthHandler) LoginIP(c *gin.Context) {
	var body deviceRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			httperr.Abort(c, httperr.BadRequest("Invalid json"))
			return
		}
	}
	if !h.allow(c, "") {
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("ip = ?", c.ClientIP()).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			httperr.Abort(c, httperr.Unauthorized("No user is registered for this IP"))
			return
		}
		httperr.Abort(c, errFind)
		return
	}
	h.issue(c, &user, body)
}

// OAuthRedirect returns the provider authorization URL.
func (h *AuthHandler) OAuthRedirect(c *gin.Context) {
	if h.oauth == nil {
		httperr.Abort(c, httperr.Expected(http.StatusNotImplemented, StatusEtuUTTNotConfigured, "EtuUTT login is not configured"))
		return
	}
	state, errState := security.GenerateRandomString(16)
	if errState != nil {
		httperr.Abort(c, errState)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirectUrl": h.oauth.AuthorizeURL(state)})
}

// OAuthSubmit exchanges an authorization code and logs in the matching user.
func (h *AuthHandler) OAuthSubmit(c *gin.Context) {
	if h.oauth == nil {
		httperr.Abort(c, httperr.Expected(http.StatusNotImplemented, StatusEtuUTTNotConfigured, "EtuUTT login is not configured"))
		return
	}
	var body oauthSubmitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.AuthorizationCode) == "" {
		httperr.Abort(c, httperr.BadRequest("Missing authorizationCode"))
		return
	}
	if !h.allow(c, "") {
		return
	}

	identity, errExchange := h.oauth.Exchange(c.Request.Context(), strings.TrimSpace(body.AuthorizationCode))
	if errExchange != nil {
		httperr.Abort(c, httperr.Expected(http.StatusServiceUnavailable, StatusEtuUTTError, "EtuUTT login failed").Wrap(errExchange))
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("login = ?", identity.Login).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			httperr.Abort(c, httperr.Unauthorized("No account is registered for "+identity.Login))
			return
		}
		httperr.Abort(c, errFind)
		return
	}
	h.issue(c, &user, body.deviceRequest)
}

// Renew issues a new token for the authenticated user.
func (h *AuthHandler) Renew(c *gin.Context) {
	var body deviceRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			httperr.Abort(c, httperr.BadRequest("Invalid json"))
			return
		}
	}
	h.issue(c, auth.ActorFrom(c).User, body)
}

// LoginAs opens a session as another user.
func (h *AuthHandler) LoginAs(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		httperr.Abort(c, httperr.BadRequest("Invalid id"))
		return
	}
	var target models.User
	if errFind := h.db.WithContext(c.Request.Context()).Take(&target, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			httperr.Abort(c, httperr.NotFound("User not found"))
			return
		}
		httperr.Abort(c, errFind)
		return
	}
	log.WithFields(log.Fields{"user_id": auth.ActorFrom(c).UserID(), "target_id": target.ID}).Info("auth: logging in as another user")
	h.issue(c, &target, deviceRequest{})
}

// Logout destroys the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess := auth.SessionFrom(c)
	if sess == nil {
		httperr.Abort(c, httperr.Expected(http.StatusNotFound, StatusSessionNotFound, "No session to close"))
		return
	}
	if errDestroy := h.sessions.Destroy(c.Request.Context(), sess.ID); errDestroy != nil {
		httperr.Abort(c, errDestroy)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated user, its team and its permissions.
func (h *AuthHandler) Me(c *gin.Context) {
	actor := auth.ActorFrom(c)
	permissions := actor.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"user": actor.User, "team": actor.Team, "permissions": permissions})
}

// allow applies the login rate limits and aborts the request when they are exceeded.
func (h *AuthHandler) allow(c *gin.Context, login string) bool {
	if h.limiter == nil {
		return true
	}
	result := h.limiter.Check(c.Request.Context(), ratelimit.ResolveLogin(h.limiter.Settings(), c.ClientIP(), login)...)
	if result.Allowed {
		return true
	}
	retry := int(time.Until(result.Reset).Seconds())
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	httperr.Abort(c, httperr.Expected(http.StatusTooManyRequests, httperr.StatusTooManyRequests, "Too many login attempts, retry later"))
	return false
}

// issue opens a session for user on the current connection and writes the login response.
func (h *AuthHandler) issue(c *gin.Context, user *models.User, device deviceRequest) {
	ctx := c.Request.Context()
	actor, errActor := h.resolver.Actor(ctx, user)
	if errActor != nil {
		httperr.Abort(c, errActor)
		return
	}
	sess, token, errCreate := h.sessions.Create(ctx, user, session.Connection{
		IP:            c.ClientIP(),
		SocketID:      realtime.ConnIDFromContext(ctx),
		DeviceID:      strings.TrimSpace(device.DeviceID),
		FirebaseToken: strings.TrimSpace(device.FirebaseToken),
	})
	if errCreate != nil {
		httperr.Abort(c, errCreate)
		return
	}
	auth.SetSession(c, sess)
	c.JSON(http.StatusOK, loginResponse{JWT: token, User: user, Team: actor.Team})
}
