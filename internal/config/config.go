package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvPort         = "PORT"
)

// Defaults applied when the config file omits a value.
const (
	defaultJWTExpiry     = 30 * 24 * time.Hour
	defaultPort          = 3000
	defaultSocketTimeout = 60 * time.Second
	defaultSocketPath    = "/socket"
	defaultLoginRate     = 5
	defaultPurgeSchedule = "@hourly"
	defaultRedisPrefix   = "flux"
)

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingJWTSecret indicates tokens cannot be signed.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` or JWT_SECRET)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// DatabaseConfig is the nested form of the DSN setting.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SocketConfig controls the realtime transport.
type SocketConfig struct {
	Path    string        `yaml:"path"`    // HTTP path upgraded to a websocket.
	Timeout time.Duration `yaml:"timeout"` // Watchdog for bridged requests.
}

// RedisConfig enables the cross-instance relay and the shared rate limiter.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds per-second limits keyed by endpoint family.
type RateLimitConfig struct {
	Login int `yaml:"login"`
}

// SessionsConfig controls background session maintenance.
type SessionsConfig struct {
	PurgeSchedule string `yaml:"purge-schedule"`
}

// BootstrapConfig describes the admin account seeded into an empty database.
type BootstrapConfig struct {
	TeamName  string `yaml:"team-name"`
	TeamGroup string `yaml:"team-group"`
	TeamRole  string `yaml:"team-role"`
	Login     string `yaml:"login"`
	Password  string `yaml:"password"`
}

// OAuthConfig holds the EtuUTT client settings. An empty client id disables OAuth login.
type OAuthConfig struct {
	BaseURL      string `yaml:"base-url"`
	ClientID     string `yaml:"client-id"`
	ClientSecret string `yaml:"client-secret"`
	RedirectURL  string `yaml:"redirect-url"`
}

// Enabled reports whether an OAuth provider is configured.
func (c OAuthConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.BaseURL) != ""
}

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath  string              `yaml:"-"`
	Host        string              `yaml:"host"`
	Port        int                 `yaml:"port"`
	Debug       bool                `yaml:"debug"`
	DatabaseDSN string              `yaml:"database-dsn"`
	Database    DatabaseConfig      `yaml:"database"`
	JWT         JWTConfig           `yaml:"jwt"`
	Socket      SocketConfig        `yaml:"socket"`
	Roles       map[string][]string `yaml:"roles"`
	Redis       RedisConfig         `yaml:"redis"`
	RateLimit   RateLimitConfig     `yaml:"rate-limit"`
	Sessions    SessionsConfig      `yaml:"sessions"`
	Bootstrap   BootstrapConfig     `yaml:"bootstrap"`
	OAuth       OAuthConfig         `yaml:"oauth"`
}

// Addr returns the listen address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadFromEnv loads app config from the file named by CONFIG_PATH.
func LoadFromEnv() (AppConfig, error) {
	return Load(os.Getenv(EnvConfigPath))
}

// Load reads the YAML config file at path, applies env overrides and defaults, and validates roles.
func Load(path string) (AppConfig, error) {
	cfg := AppConfig{ConfigPath: ResolveConfigPath(path)}

	data, errRead := os.ReadFile(cfg.ConfigPath)
	if errRead != nil && !errors.Is(errRead, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if strings.TrimSpace(cfg.DSN()) == "" {
		return AppConfig{}, ErrMissingDatabaseDSN
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return AppConfig{}, ErrMissingJWTSecret
	}
	roles, errRoles := NormalizeRoles(cfg.Roles)
	if errRoles != nil {
		return AppConfig{}, errRoles
	}
	cfg.Roles = roles
	if role := strings.TrimSpace(cfg.Bootstrap.TeamRole); role != "" {
		if _, ok := cfg.Roles[role]; !ok {
			return AppConfig{}, fmt.Errorf("bootstrap team role %q is not defined in roles", role)
		}
	}
	return cfg, nil
}

// DSN returns the configured database DSN, preferring `database-dsn`.
func (c AppConfig) DSN() string {
	if dsn := strings.TrimSpace(c.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(c.Database.DSN)
}

func applyEnv(cfg *AppConfig) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil && port > 0 {
			cfg.Port = port
		}
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.Socket.Timeout <= 0 {
		cfg.Socket.Timeout = defaultSocketTimeout
	}
	if strings.TrimSpace(cfg.Socket.Path) == "" {
		cfg.Socket.Path = defaultSocketPath
	}
	if cfg.RateLimit.Login <= 0 {
		cfg.RateLimit.Login = defaultLoginRate
	}
	if strings.TrimSpace(cfg.Sessions.PurgeSchedule) == "" {
		cfg.Sessions.PurgeSchedule = defaultPurgeSchedule
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = defaultRedisPrefix
	}
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}
