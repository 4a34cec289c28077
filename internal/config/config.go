// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the catalog proxy's runtime configuration.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// RedisURL is the cache backend address. When Redis is
	// unreachable at startup the proxy falls back to the in-process
	// memory store.
	RedisURL   string `env:"REDIS_URL" envDefault:"localhost:6379"`
	CacheCodec string `env:"CACHE_CODEC" envDefault:"json"`

	CommerceBaseURL string `env:"WC_BASE_URL"`
	ConsumerKey     string `env:"WC_CONSUMER_KEY"`
	ConsumerSecret  string `env:"WC_CONSUMER_SECRET"`
	UserAgent       string `env:"USER_AGENT" envDefault:"catalog-proxy/1.0"`

	CacheTTL          time.Duration `env:"CACHE_TTL" envDefault:"2m"`
	EmptyCacheTTL     time.Duration `env:"EMPTY_CACHE_TTL" envDefault:"30s"`
	PreferredCacheTTL time.Duration `env:"PREFERRED_CACHE_TTL" envDefault:"10m"`
	CacheStaleAfter   time.Duration `env:"CACHE_STALE_AFTER" envDefault:"5m"`
	MaxTotalItems     int           `env:"MAX_TOTAL_ITEMS" envDefault:"10000"`

	ImageAllowedDomains []string `env:"IMAGE_ALLOWED_DOMAINS" envSeparator:"," envDefault:"pixypic.net"`

	RateLimit       int           `env:"RATE_LIMIT" envDefault:"60"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	AdminToken string `env:"ADMIN_TOKEN"`
}

// Load parses and validates the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.CommerceBaseURL == "" {
		missing = append(missing, "WC_BASE_URL")
	}
	if c.ConsumerKey == "" {
		missing = append(missing, "WC_CONSUMER_KEY")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "WC_CONSUMER_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}
	return nil
}
