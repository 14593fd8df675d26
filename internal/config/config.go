// Package config loads and validates trainwatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Run     RunConfig     `mapstructure:"run"`
	Hub     HubConfig     `mapstructure:"hub"`
	DB      DBConfig      `mapstructure:"db"`
	Export  ExportConfig  `mapstructure:"export"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RunConfig carries run-level aggregation constants.
type RunConfig struct {
	// MetricsWidth is the default metrics vector width for new runs that
	// do not specify one, e.g. 2 for [loss, accuracy].
	MetricsWidth int `mapstructure:"metrics_width"`
}

// HubConfig governs event buffering and batching.
type HubConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	MaxBatchEvents     int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs     int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ExportConfig sets the destination for averaged-curve artifacts.
type ExportConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for run-completion notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MonitorConfig controls the periodic aggregation pass.
type MonitorConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRAINWATCH")
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
	v.SetDefault("run.metrics_width", 2)
	v.SetDefault("hub.buffer_size", 4096)
	v.SetDefault("hub.max_batch_events", 500)
	v.SetDefault("hub.max_batch_wait_ms", 250)
	v.SetDefault("hub.sink_timeout_seconds", 10)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("export.provider", "noop")
	v.SetDefault("export.prefix", "curves")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Run.MetricsWidth <= 0 {
		return fmt.Errorf("run.metrics_width must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}
	switch c.Export.Provider {
	case "noop":
	case "gcs":
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket must be set when export.provider is gcs")
		}
	case "local":
		if c.Export.LocalDir == "" {
			return fmt.Errorf("export.local_dir must be set when export.provider is local")
		}
	default:
		return fmt.Errorf("unknown export.provider %q", c.Export.Provider)
	}
	switch c.Notify.Provider {
	case "noop":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicName == "" {
			return fmt.Errorf("notify.project_id and notify.topic_name must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	if c.Monitor.Enabled && c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be > 0 when the monitor is enabled")
	}
	return nil
}

// MaxBatchWait converts the hub wait knob into a duration.
func (c HubConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMs) * time.Millisecond
}

// SinkTimeout converts the hub sink timeout knob into a duration.
func (c HubConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSeconds) * time.Second
}

// Interval converts the monitor interval knob into a duration.
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
