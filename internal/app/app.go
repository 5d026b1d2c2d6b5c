package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flux-project/flux-server/internal/auth"
	"github.com/flux-project/flux-server/internal/authz"
	"github.com/flux-project/flux-server/internal/config"
	"github.com/flux-project/flux-server/internal/db"
	"github.com/flux-project/flux-server/internal/http/api"
	"github.com/flux-project/flux-server/internal/http/api/handlers"
	"github.com/flux-project/flux-server/internal/ratelimit"
	"github.com/flux-project/flux-server/internal/realtime"
	"github.com/flux-project/flux-server/internal/resource"
	"github.com/flux-project/flux-server/internal/security"
	"github.com/flux-project/flux-server/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

// App holds the services of one server instance.
type App struct {
	cfg      config.AppConfig
	db       *gorm.DB
	engine   *gin.Engine
	hub      *realtime.Hub
	sessions *session.Store
	purge    *session.PurgeTask
	redis    *redis.Client
	relay    *realtime.RedisRelay
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	return db.Migrate(conn.WithContext(ctx))
}

// New opens and migrates the database, seeds the bootstrap account and builds the HTTP and socket stack.
func New(cfg config.AppConfig) (*App, error) {
	if errRoles := authz.ValidateRoles(cfg.Roles); errRoles != nil {
		return nil, errRoles
	}
	conn, err := db.Open(cfg.DSN())
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, db: conn}
	if errBuild := a.build(); errBuild != nil {
		_ = a.Close()
		return nil, errBuild
	}
	return a, nil
}

func (a *App) build() error {
	if errMigrate := db.Migrate(a.db); errMigrate != nil {
		return errMigrate
	}
	if _, errBootstrap := Bootstrap(a.db, a.cfg.Bootstrap, a.cfg.Roles); errBootstrap != nil {
		return fmt.Errorf("bootstrap: %w", errBootstrap)
	}

	signer, errSigner := security.NewTokenSigner(a.cfg.JWT.Secret, a.cfg.JWT.Expiry)
	if errSigner != nil {
		return errSigner
	}
	a.sessions = session.NewStore(a.db, signer)
	a.hub = realtime.NewHub()

	var relay realtime.Relay
	if a.cfg.Redis.Enabled && strings.TrimSpace(a.cfg.Redis.Addr) != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.relay = realtime.NewRedisRelay(a.redis, a.cfg.Redis.Prefix, a.hub)
		relay = a.relay
	}
	notifier := realtime.NewNotifier(a.hub, relay)

	var oauth handlers.OAuthProvider
	if provider := handlers.NewEtuUTTProvider(a.cfg.OAuth); provider != nil {
		oauth = provider
	}

	a.engine = gin.New()
	bridge := realtime.NewBridge(a.engine, a.cfg.Socket.Timeout)
	socket := realtime.NewServer(a.hub, bridge, a.disconnect)

	api.RegisterRoutes(a.engine, api.Deps{
		DB:         a.db,
		Roles:      a.cfg.Roles,
		Sessions:   a.sessions,
		Resolver:   auth.NewResolver(a.db, a.sessions, a.cfg.Roles),
		Registry:   resource.NewRegistry(a.db, a.cfg.Roles, notifier, a.hub),
		Limiter:    ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(a.cfg)), time.Now, nil),
		OAuth:      oauth,
		Socket:     socket,
		SocketPath: a.cfg.Socket.Path,
	})

	purge, errPurge := session.NewPurgeTask(a.sessions, a.cfg.Sessions.PurgeSchedule)
	if errPurge != nil {
		return errPurge
	}
	a.purge = purge
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.engine }

// Run serves until ctx is done, then shuts every service down in reverse start order.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.purge.Start()
	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()
	if a.relay != nil {
		go func() {
			if errRelay := a.relay.Run(relayCtx); errRelay != nil {
				log.WithError(errRelay).Error("realtime relay stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting flux server on %s", srv.Addr)
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errCh <- errListen
		}
		close(errCh)
	}()

	var errServe error
	select {
	case <-ctx.Done():
	case errServe = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.Errorf("server shutdown error: %v", errShutdown)
	}
	a.hub.CloseAll()
	cancelRelay()
	a.purge.Stop()
	if errClose := a.Close(); errClose != nil {
		log.WithError(errClose).Warn("release resources")
	}
	return errServe
}

// Close releases the Redis client and the database pool.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, db.Close(a.db))
	return errors.Join(errs...)
}

// disconnect releases the socket binding of a closed connection.
func (a *App) disconnect(ctx context.Context, connID string) {
	if errDisconnect := a.sessions.DisconnectSocket(ctx, connID); errDisconnect != nil {
		log.WithError(errDisconnect).WithField("conn_id", connID).Warn("release socket session")
	}
}
