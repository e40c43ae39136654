// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Archive sink backends.
const (
	BackendNone  = ""
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Radiko   RadikoConfig   `mapstructure:"radiko"`
	Archiver ArchiverConfig `mapstructure:"archiver"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// RadikoConfig selects the upstream region and host.
type RadikoConfig struct {
	AreaID  string `mapstructure:"area_id"`
	BaseURL string `mapstructure:"base_url"`
}

// ArchiverConfig governs the scheduler and worker pool.
type ArchiverConfig struct {
	Concurrency            int           `mapstructure:"concurrency"`
	Keywords               []string      `mapstructure:"keywords"`
	StopIfFileExists       bool          `mapstructure:"stop_if_file_exists"`
	TimeToForceTermination time.Duration `mapstructure:"time_to_force_termination"`
	Interval               time.Duration `mapstructure:"interval"`
	OutputDir              string        `mapstructure:"output_dir"`
	FFmpegPath             string        `mapstructure:"ffmpeg_path"`
}

// HTTPConfig configures the catalog transport.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// StorageConfig selects where finished archives are copied.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for archive notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls span export. An empty project keeps spans local.
type TracingConfig struct {
	ServiceName string `mapstructure:"service_name"`
	ProjectID   string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment. An empty path searches for
// config.{yaml,json,toml} in the working directory, /etc/radiko-archiver and
// $HOME/.radiko-archiver, and falls back to defaults when none exists.
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
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/radiko-archiver/")
		v.AddConfigPath("$HOME/.radiko-archiver")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("radiko.area_id", "JP13")
	v.SetDefault("radiko.base_url", "https://radiko.jp")
	v.SetDefault("archiver.concurrency", 3)
	v.SetDefault("archiver.keywords", []string{})
	v.SetDefault("archiver.stop_if_file_exists", false)
	v.SetDefault("archiver.time_to_force_termination", 8*time.Second)
	v.SetDefault("archiver.interval", 180*time.Second)
	v.SetDefault("archiver.output_dir", "./output")
	v.SetDefault("archiver.ffmpeg_path", "ffmpeg")
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.user_agent", "radiko-archiver/0.1")
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("server.port", 0)
	v.SetDefault("server.api_key", "")
	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "archives")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.service_name", "radiko-archiver")
	v.SetDefault("tracing.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Radiko.AreaID) == "" {
		return fmt.Errorf("radiko.area_id is required")
	}
	if c.Archiver.Concurrency <= 0 {
		return fmt.Errorf("archiver.concurrency must be > 0")
	}
	if c.Archiver.TimeToForceTermination <= 0 {
		return fmt.Errorf("archiver.time_to_force_termination must be > 0")
	}
	if c.Archiver.Interval <= 0 {
		return fmt.Errorf("archiver.interval must be > 0")
	}
	if strings.TrimSpace(c.Archiver.OutputDir) == "" {
		return fmt.Errorf("archiver.output_dir is required")
	}
	for _, k := range c.Archiver.Keywords {
		if k == "" {
			return fmt.Errorf("archiver.keywords must not contain empty keywords")
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver must be %q or %q", DriverPostgres, DriverMemory)
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendNone:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// HTTPTimeout converts the transport timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
