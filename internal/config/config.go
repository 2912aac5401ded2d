package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RESERVO_BACKEND_API_KEY.
const EnvPrefix = "RESERVO_"

// Backend kinds.
const (
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Pretty bool   `yaml:"pretty" env:"PRETTY"`
	} `yaml:"logging" envPrefix:"LOGGING_"`

	Server struct {
		Port                   int      `yaml:"port" env:"PORT"`
		AllowedOrigins         []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
		ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`
	} `yaml:"server" envPrefix:"SERVER_"`

	Backend struct {
		Kind                     string  `yaml:"kind" env:"KIND"`
		BaseURL                  string  `yaml:"base_url" env:"BASE_URL"`
		APIKey                   string  `yaml:"api_key" env:"API_KEY"`
		TimeoutSeconds           int     `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
		RatePerSecond            float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
		Burst                    int     `yaml:"burst" env:"BURST"`
		ConfigCacheTTLSeconds    int     `yaml:"config_cache_ttl_seconds" env:"CONFIG_CACHE_TTL_SECONDS"`
		OccupancyCacheTTLSeconds int     `yaml:"occupancy_cache_ttl_seconds" env:"OCCUPANCY_CACHE_TTL_SECONDS"`
	} `yaml:"backend" envPrefix:"BACKEND_"`

	Database struct {
		Path string `yaml:"path" env:"PATH"`
	} `yaml:"database" envPrefix:"DATABASE_"`

	Backup struct {
		Enabled       bool   `yaml:"enabled" env:"ENABLED"`
		Path          string `yaml:"path" env:"PATH"`
		IntervalHours int    `yaml:"interval_hours" env:"INTERVAL_HOURS"`
		RetentionDays int    `yaml:"retention_days" env:"RETENTION_DAYS"`
	} `yaml:"backup" envPrefix:"BACKUP_"`

	Redis struct {
		Address  string `yaml:"address" env:"ADDRESS"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
	} `yaml:"redis" envPrefix:"REDIS_"`

	Widget struct {
		Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	} `yaml:"widget" envPrefix:"WIDGET_"`

	Telegram struct {
		Enabled    bool   `yaml:"enabled" env:"ENABLED"`
		BotToken   string `yaml:"bot_token" env:"BOT_TOKEN"`
		BusinessID string `yaml:"business_id" env:"BUSINESS_ID"`
		Debug      bool   `yaml:"debug" env:"DEBUG"`
	} `yaml:"telegram" envPrefix:"TELEGRAM_"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port" env:"HEALTH_CHECK_PORT"`
		PrometheusEnabled bool `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED"`
		PrometheusPort    int  `yaml:"prometheus_port" env:"PROMETHEUS_PORT"`
	} `yaml:"monitoring" envPrefix:"MONITORING_"`
}

// DefaultPath is read when no config path is given.
const DefaultPath = "configs/config.yaml"

// Load reads the YAML file at path, expands ${ENV_VAR} placeholders and then
// applies RESERVO_* environment overrides. A .env file next to the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend.Kind == BackendSQLite {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Backend.Kind = strings.ToLower(strings.TrimSpace(c.Backend.Kind))
	if c.Backend.Kind == "" {
		c.Backend.Kind = BackendHTTP
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/reservo.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendHTTP:
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("backend.base_url is required for the http backend")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unknown backend.kind %q", c.Backend.Kind)
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
			return fmt.Errorf("set telegram.bot_token in config")
		}
		if c.Telegram.BusinessID == "" {
			return fmt.Errorf("telegram.business_id is required when telegram is enabled")
		}
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative")
	}
	return nil
}

func (c *Config) ServerPort() int {
	if c.Server.Port <= 0 {
		return 8080
	}
	return c.Server.Port
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) ConfigCacheTTL() time.Duration {
	return time.Duration(c.Backend.ConfigCacheTTLSeconds) * time.Second
}

// OccupancyCacheTTL is zero unless configured: occupancy changes with every booking.
func (c *Config) OccupancyCacheTTL() time.Duration {
	return time.Duration(c.Backend.OccupancyCacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) AllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.Server.AllowedOrigins
}
