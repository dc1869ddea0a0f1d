package config

import (
	stderrors "errors"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/toyz/loom/internal/errors"
)

// ServerConfig holds the transport settings read from the environment.
// List values are separated by semicolons.
type ServerConfig struct {
	Address         string        `env:"LOOM_ADDRESS,default=:8080"`
	Adapter         string        `env:"LOOM_ADAPTER,default=http"`
	CORSOrigins     []string      `env:"LOOM_CORS_ORIGINS"`
	RateLimit       float64       `env:"LOOM_RATE_LIMIT,default=0"` // requests per second, 0 disables
	RateBurst       int           `env:"LOOM_RATE_BURST,default=0"`
	MetricsPath     string        `env:"LOOM_METRICS_PATH,default=/metrics"`
	LogLevel        string        `env:"LOOM_LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOOM_LOG_FORMAT,default=text"`
	LogFile         string        `env:"LOOM_LOG_FILE"`
	LookupCacheTTL  time.Duration `env:"LOOM_LOOKUP_CACHE_TTL,default=0s"`
	SilentUnmatched bool          `env:"LOOM_SILENT_UNMATCHED,default=false"`
	PropertyFiles   []string      `env:"LOOM_PROPERTIES"`
}

// DefaultServer returns the settings used when nothing is configured
func DefaultServer() ServerConfig {
	return ServerConfig{
		Address:     ":8080",
		Adapter:     "http",
		MetricsPath: "/metrics",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// LoadServer decodes ServerConfig from the environment
func LoadServer() (ServerConfig, error) {
	cfg := DefaultServer()
	if err := envdecode.Decode(&cfg); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return DefaultServer(), errors.WrapConfigurationError("environment", "decode", err)
	}
	if cfg.RateBurst <= 0 && cfg.RateLimit > 0 {
		cfg.RateBurst = int(cfg.RateLimit) + 1
	}
	return cfg, nil
}
