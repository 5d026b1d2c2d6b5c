package ratelimit

import (
	"strings"

	"github.com/flux-project/flux-server/internal/config"
)

// SettingsConfig captures the rate limit settings of the running instance.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig derives limiter settings from the application config.
// The shared Redis backend is used whenever Redis is enabled for the instance.
func SettingsFromConfig(cfg config.AppConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:         cfg.RateLimit.Login,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.RedisPrefix != "" {
		out.RedisPrefix += ":ratelimit"
	}
	if out.RedisAddr == "" {
		out.RedisEnabled = false
	}
	return out
}

// StaticSettings returns a provider always yielding cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	return func() SettingsConfig { return cfg }
}
