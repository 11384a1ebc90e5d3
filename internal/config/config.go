// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type WebConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ProviderConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
	Version string `yaml:"version"` // model version hash sent with every create
}

type RetryConfig struct {
	Retries   int           `yaml:"retries"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

type PollingConfig struct {
	Budget         time.Duration `yaml:"budget"`          // wall-clock limit for one tracking loop
	Interval       time.Duration `yaml:"interval"`        // delay between sequential status polls
	ActiveInterval time.Duration `yaml:"active_interval"` // list refetch while renders are in flight
	IdleInterval   time.Duration `yaml:"idle_interval"`   // list refetch when everything is terminal
	ErrorInterval  time.Duration `yaml:"error_interval"`  // list refetch after a fetch failure
	PageSize       int           `yaml:"page_size"`
}

type WatchConfig struct {
	// Mode selects the reconciliation strategy: "poll" (storage polling,
	// default) or "feed" (live change feed). Never both per session.
	Mode string `yaml:"mode"`
}

type SweepConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type RateLimitConfig struct {
	Submissions int           `yaml:"submissions"`
	Window      time.Duration `yaml:"window"`
}

type PreflightConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Retry     RetryConfig     `yaml:"retry"`
	Polling   PollingConfig   `yaml:"polling"`
	Watch     WatchConfig     `yaml:"watch"`
	Sweep     SweepConfig     `yaml:"sweep"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Preflight PreflightConfig `yaml:"preflight"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Web.JWTSecret == "" {
		return nil, errors.New("web.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.TokenTTL <= 0 {
		cfg.Web.TokenTTL = 24 * time.Hour
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.replicate.com/v1"
	}
	if cfg.Retry.Retries <= 0 {
		cfg.Retry.Retries = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 10 * time.Second
	}
	// The polling budget is a soft timeout; exceeding it hands the job over
	// to list reconciliation rather than failing it.
	if cfg.Polling.Budget < time.Minute {
		cfg.Polling.Budget = time.Minute
	}
	if cfg.Polling.Budget > 3*time.Minute {
		cfg.Polling.Budget = 3 * time.Minute
	}
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = 2 * time.Second
	}
	if cfg.Polling.ActiveInterval <= 0 {
		cfg.Polling.ActiveInterval = 2500 * time.Millisecond
	}
	if cfg.Polling.IdleInterval <= 0 {
		cfg.Polling.IdleInterval = 10 * time.Second
	}
	if cfg.Polling.ErrorInterval <= 0 {
		cfg.Polling.ErrorInterval = 12 * time.Second
	}
	if cfg.Polling.PageSize <= 0 {
		cfg.Polling.PageSize = 18
	}
	if cfg.Watch.Mode != "feed" {
		cfg.Watch.Mode = "poll"
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = time.Minute
	}
	if cfg.Sweep.StaleAfter <= 0 {
		cfg.Sweep.StaleAfter = 5 * time.Minute
	}
	if cfg.RateLimit.Submissions <= 0 {
		cfg.RateLimit.Submissions = 10
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Preflight.Timeout <= 0 {
		cfg.Preflight.Timeout = 8 * time.Second
	}
}
