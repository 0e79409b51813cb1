// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// Storage and database backends.
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Range    RangeConfig    `mapstructure:"range"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Retry    RetryConfig    `mapstructure:"retry"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ArchiveConfig points at the web archive.
type ArchiveConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// RangeConfig bounds the dates to archive, inclusive, as YYYY-MM-DD.
type RangeConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// PipelineConfig governs the worker pool.
type PipelineConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	MaxItemAttempts int           `mapstructure:"max_item_attempts"`
	CommitEvery     int           `mapstructure:"commit_every"`
	QueueDepth      int           `mapstructure:"queue_depth"`
	ItemBackoff     time.Duration `mapstructure:"item_backoff"`
}

// RetryConfig configures per-request backoff.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	JitterMin         time.Duration `mapstructure:"jitter_min"`
	JitterMax         time.Duration `mapstructure:"jitter_max"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Accept            string        `mapstructure:"accept"`
	Referer           string        `mapstructure:"referer"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PoolTimeout       time.Duration `mapstructure:"pool_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxBodyBytes      int           `mapstructure:"max_body_bytes"`
}

// StorageConfig selects where strip images are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Root      string `mapstructure:"root"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig selects the metadata store. An empty sqlite path means
// {storage.root}/metadata.db.
type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// PubSubConfig enables completion notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether completion notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and an optional log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
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
	v.SetDefault("archive.base_url", "https://web.archive.org")
	v.SetDefault("range.start", comics.FormatDate(comics.FirstStrip))
	v.SetDefault("range.end", comics.FormatDate(comics.LastStrip))
	v.SetDefault("pipeline.concurrency", 20)
	v.SetDefault("pipeline.max_item_attempts", 3)
	v.SetDefault("pipeline.commit_every", 50)
	v.SetDefault("pipeline.queue_depth", 0)
	v.SetDefault("pipeline.item_backoff", "2s")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.jitter_min", "1s")
	v.SetDefault("retry.jitter_max", "3s")
	v.SetDefault("retry.rate_limit_cooldown", "10m")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	v.SetDefault("http.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	v.SetDefault("http.referer", comics.SourceReferer)
	v.SetDefault("http.connect_timeout", "10s")
	v.SetDefault("http.read_timeout", "100s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.pool_timeout", "10s")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_body_bytes", 20<<20)
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.root", "dilbert_comics")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.path", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Archive.BaseURL) == "" {
		return fmt.Errorf("archive.base_url is required")
	}
	if _, _, err := c.Range.Bounds(); err != nil {
		return err
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.MaxItemAttempts <= 0 {
		return fmt.Errorf("pipeline.max_item_attempts must be > 0")
	}
	if c.Pipeline.CommitEvery <= 0 {
		return fmt.Errorf("pipeline.commit_every must be > 0")
	}
	if c.Pipeline.QueueDepth < 0 {
		return fmt.Errorf("pipeline.queue_depth must be >= 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.JitterMax < c.Retry.JitterMin {
		return fmt.Errorf("retry.jitter_max must be >= retry.jitter_min")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http.read_timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return fmt.Errorf("storage.root is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs", c.Storage.Backend)
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" && c.Storage.Backend != StorageLocal {
			return fmt.Errorf("db.path is required when storage is not local")
		}
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("db.driver %q is not one of sqlite, postgres", c.DB.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Bounds parses the range and checks it lies inside the archive.
func (r RangeConfig) Bounds() (time.Time, time.Time, error) {
	start, err := comics.ParseDate(r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range.start: %w", err)
	}
	end, err := comics.ParseDate(r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range.end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range.end %s is before range.start %s", r.End, r.Start)
	}
	if !comics.InArchive(start) || !comics.InArchive(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("range must lie within %s..%s",
			comics.FormatDate(comics.FirstStrip), comics.FormatDate(comics.LastStrip))
	}
	return start, end, nil
}

// SQLitePath resolves the metadata database file.
func (c Config) SQLitePath() string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	return strings.TrimRight(c.Storage.Root, "/") + "/metadata.db"
}
