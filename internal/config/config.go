// Package config loads and validates crawlctl configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig        `mapstructure:"server"`
	Auth     AuthConfig          `mapstructure:"auth"`
	Engine   EngineConfig        `mapstructure:"engine"`
	Poll     PollConfig          `mapstructure:"poll"`
	Crawl    crawler.CrawlConfig `mapstructure:"crawl"`
	Settings SettingsConfig      `mapstructure:"settings"`
	Storage  StorageConfig       `mapstructure:"storage"`
	DB       DBConfig            `mapstructure:"db"`
	PubSub   PubSubConfig        `mapstructure:"pubsub"`
	Progress ProgressConfig      `mapstructure:"progress"`
	Logging  LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	// CommandRPS limits session commands per client; 0 disables the limit.
	CommandRPS   float64 `mapstructure:"command_rps"`
	CommandBurst int     `mapstructure:"command_burst"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// EngineConfig points at the crawl engine's REST API.
type EngineConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PollConfig tunes the status poller and command follow-ups.
type PollConfig struct {
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	ConfirmDelayMs      int `mapstructure:"confirm_delay_ms"`
	ResetTimeoutSeconds int `mapstructure:"reset_timeout_seconds"`
}

// SettingsConfig selects the settings store.
type SettingsConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	// Path of the SQLite file; empty uses the XDG data dir.
	Path string `mapstructure:"path"`
}

// StorageConfig selects where archived exports go.
type StorageConfig struct {
	// Backend is "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	// CacheControl is set on archived GCS objects.
	CacheControl string `mapstructure:"cache_control"`
}

// DBConfig controls the session-history database. An empty DSN keeps
// history in memory.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for completion notices. An empty project
// disables Pub/Sub and uses the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// MemoryCapacity bounds the notices kept by the in-memory publisher.
	MemoryCapacity int `mapstructure:"memory_capacity"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	BatchMaxEvents     int `mapstructure:"batch_max_events"`
	BatchMaxWaitMs     int `mapstructure:"batch_max_wait_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
}

// LoggingConfig configures zap and optional file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.command_rps", 5)
	v.SetDefault("server.command_burst", 10)
	v.SetDefault("engine.base_url", "http://localhost:4567")
	v.SetDefault("engine.timeout_seconds", 15)
	v.SetDefault("poll.fetch_timeout_seconds", 10)
	v.SetDefault("poll.confirm_delay_ms", 100)
	v.SetDefault("poll.reset_timeout_seconds", 5)
	v.SetDefault("crawl.seed_url", "")
	v.SetDefault("crawl.max_depth", crawler.DefaultMaxDepth)
	v.SetDefault("crawl.threads", crawler.DefaultThreads)
	v.SetDefault("crawl.delay_ms", crawler.DefaultDelayMs)
	v.SetDefault("crawl.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawl.filter", "")
	v.SetDefault("crawl.timeout_ms", crawler.DefaultTimeoutMs)
	v.SetDefault("settings.driver", "sqlite")
	v.SetDefault("settings.path", "")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "exports")
	v.SetDefault("storage.prefix", "exports")
	v.SetDefault("storage.cache_control", "private, max-age=0")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("pubsub.topic_name", "crawl-sessions")
	v.SetDefault("pubsub.memory_capacity", 1024)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_max_events", 256)
	v.SetDefault("progress.batch_max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_seconds", 5)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.CommandRPS < 0 {
		return fmt.Errorf("server.command_rps must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine.base_url must be set")
	}
	if c.Engine.TimeoutSeconds <= 0 {
		return fmt.Errorf("engine.timeout_seconds must be > 0")
	}
	if c.Poll.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("poll.fetch_timeout_seconds must be > 0")
	}
	if c.Poll.ConfirmDelayMs < 0 {
		return fmt.Errorf("poll.confirm_delay_ms must be >= 0")
	}
	switch c.Settings.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("settings.driver must be sqlite or memory, got %q", c.Settings.Driver)
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local or gcs, got %q", c.Storage.Backend)
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// EngineTimeout is the per-request timeout of the engine client.
func (c Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// ConfirmDelay is the pause confirmation poll delay.
func (c Config) ConfirmDelay() time.Duration {
	return time.Duration(c.Poll.ConfirmDelayMs) * time.Millisecond
}
