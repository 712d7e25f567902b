// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Render modes.
const (
	RenderHeadless = "headless"
	RenderStatic   = "static"
)

// Provider names shared by the archive and events sections.
const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderPubSub = "pubsub"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	Store      StoreConfig      `mapstructure:"store"`
	Render     RenderConfig     `mapstructure:"render"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Events     EventsConfig     `mapstructure:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool     `mapstructure:"development"`
	Level       string   `mapstructure:"level"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// HarvestConfig scopes a run.
type HarvestConfig struct {
	MinPriority  int `mapstructure:"min_priority"`
	MaxPages     int `mapstructure:"max_pages"`
	LimitTargets int `mapstructure:"limit_targets"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MaxConns   int32  `mapstructure:"max_conns"`
	Migrate    bool   `mapstructure:"migrate"`
}

// RenderConfig controls how pages are fetched.
type RenderConfig struct {
	Mode          string        `mapstructure:"mode"`
	UserAgent     string        `mapstructure:"user_agent"`
	ChromePath    string        `mapstructure:"chrome_path"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	PageTimeout   time.Duration `mapstructure:"page_timeout"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
}

// PolitenessConfig paces requests per host.
type PolitenessConfig struct {
	PageRPS    float64       `mapstructure:"page_rps"`
	ItemRPS    float64       `mapstructure:"item_rps"`
	Burst      int           `mapstructure:"burst"`
	PageJitter time.Duration `mapstructure:"page_jitter"`
	ItemJitter time.Duration `mapstructure:"item_jitter"`
}

// ArchiveConfig controls raw detail page snapshots.
type ArchiveConfig struct {
	Provider    string `mapstructure:"provider"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// EventsConfig controls run event publishing.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the metrics listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.output_paths", []string{})
	v.SetDefault("harvest.min_priority", 0)
	v.SetDefault("harvest.max_pages", 60)
	v.SetDefault("harvest.limit_targets", 0)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.sqlite_path", "data/harvester.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.migrate", true)
	v.SetDefault("render.mode", RenderHeadless)
	v.SetDefault("render.user_agent", "catalog-harvester/0.1")
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.respect_robots", false)
	v.SetDefault("render.page_timeout", 45*time.Second)
	v.SetDefault("render.detail_timeout", 30*time.Second)
	v.SetDefault("render.settle_delay", 500*time.Millisecond)
	v.SetDefault("politeness.page_rps", 0.5)
	v.SetDefault("politeness.item_rps", 1.0)
	v.SetDefault("politeness.burst", 1)
	v.SetDefault("politeness.page_jitter", time.Second)
	v.SetDefault("politeness.item_jitter", 500*time.Millisecond)
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.base_dir", "data/snapshots")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "items")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("events.provider", ProviderNone)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "harvester-events")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Harvest.MaxPages <= 0 {
		return fmt.Errorf("harvest.max_pages must be > 0")
	}
	if c.Harvest.LimitTargets < 0 {
		return fmt.Errorf("harvest.limit_targets must be >= 0")
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.driver is postgres")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set when store.driver is sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Render.Mode {
	case RenderHeadless, RenderStatic:
	default:
		return fmt.Errorf("unknown render.mode %q", c.Render.Mode)
	}
	if c.Render.PageTimeout <= 0 || c.Render.DetailTimeout <= 0 {
		return fmt.Errorf("render timeouts must be > 0")
	}
	if c.Politeness.PageRPS < 0 || c.Politeness.ItemRPS < 0 {
		return fmt.Errorf("politeness rates must be >= 0")
	}
	if c.Politeness.PageJitter < 0 || c.Politeness.ItemJitter < 0 {
		return fmt.Errorf("politeness jitter must be >= 0")
	}
	switch c.Archive.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
		}
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Events.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderPubSub:
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic must be set when events.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown events.provider %q", c.Events.Provider)
	}
	return nil
}
