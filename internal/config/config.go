package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Data        DataConfig        `mapstructure:"data"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	View        ViewConfig        `mapstructure:"view"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Chart       ChartConfig       `mapstructure:"chart"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// DataConfig holds the four recording locations (file paths or http(s) URLs)
// and fetch behaviour
type DataConfig struct {
	MaleTemperature      string        `mapstructure:"male_temperature"`
	MaleActivity         string        `mapstructure:"male_activity"`
	FemaleTemperature    string        `mapstructure:"female_temperature"`
	FemaleActivity       string        `mapstructure:"female_activity"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryDelayBase       time.Duration `mapstructure:"retry_delay_base"`
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches"`
}

// AggregationConfig holds the recording length and estrus schedule
type AggregationConfig struct {
	ExpectedDays      int `mapstructure:"expected_days"`
	EstrusCycleLength int `mapstructure:"estrus_cycle_length"`
	EstrusCycleOffset int `mapstructure:"estrus_cycle_offset"`
}

// ViewConfig holds view defaults
type ViewConfig struct {
	Padding       float64 `mapstructure:"padding"`
	DefaultMetric string  `mapstructure:"default_metric"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	MaxSessions        int           `mapstructure:"max_sessions"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
}

// StorageConfig holds profile cache configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	Enabled bool   `mapstructure:"enabled"`
}

// ChartConfig holds rendered chart dimensions in pixels
type ChartConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty
// path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// CIRCADIA_DATA_MALE_TEMPERATURE overrides data.male_temperature, etc.
	v.SetEnvPrefix("CIRCADIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.male_temperature", "data/male_temp.csv")
	v.SetDefault("data.male_activity", "data/male_act.csv")
	v.SetDefault("data.female_temperature", "data/fem_temp.csv")
	v.SetDefault("data.female_activity", "data/fem_act.csv")
	v.SetDefault("data.timeout", "30s")
	v.SetDefault("data.max_retries", 3)
	v.SetDefault("data.retry_delay_base", "1s")
	v.SetDefault("data.max_concurrent_fetches", 4)

	// Aggregation defaults
	v.SetDefault("aggregation.expected_days", 14)
	v.SetDefault("aggregation.estrus_cycle_length", 4)
	v.SetDefault("aggregation.estrus_cycle_offset", 2)

	// View defaults
	v.SetDefault("view.padding", 0.02)
	v.SetDefault("view.default_metric", "temperature")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_sessions", 256)
	v.SetDefault("server.session_idle_timeout", "30m")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/circadia.db")
	v.SetDefault("storage.enabled", true)

	// Chart defaults
	v.SetDefault("chart.width", 800)
	v.SetDefault("chart.height", 400)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Data config
	sources := map[string]string{
		"data.male_temperature":   c.Data.MaleTemperature,
		"data.male_activity":      c.Data.MaleActivity,
		"data.female_temperature": c.Data.FemaleTemperature,
		"data.female_activity":    c.Data.FemaleActivity,
	}
	for _, key := range []string{"data.male_temperature", "data.male_activity", "data.female_temperature", "data.female_activity"} {
		if sources[key] == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	if c.Data.Timeout <= 0 {
		return fmt.Errorf("data.timeout must be positive")
	}
	if c.Data.MaxRetries < 1 {
		return fmt.Errorf("data.max_retries must be at least 1")
	}
	if c.Data.RetryDelayBase < 0 {
		return fmt.Errorf("data.retry_delay_base must not be negative")
	}
	if c.Data.MaxConcurrentFetches < 1 {
		return fmt.Errorf("data.max_concurrent_fetches must be at least 1")
	}

	// Validate Aggregation config
	if c.Aggregation.ExpectedDays < 0 {
		return fmt.Errorf("aggregation.expected_days must not be negative")
	}
	if c.Aggregation.EstrusCycleLength < 1 {
		return fmt.Errorf("aggregation.estrus_cycle_length must be at least 1")
	}

	// Validate View config
	if c.View.Padding < 0.0 || c.View.Padding >= 1.0 {
		return fmt.Errorf("view.padding must be in [0.0, 1.0)")
	}
	validMetrics := map[string]bool{"temperature": true, "activity": true}
	if !validMetrics[c.View.DefaultMetric] {
		return fmt.Errorf("view.default_metric must be one of: temperature, activity")
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxSessions < 1 {
		return fmt.Errorf("server.max_sessions must be at least 1")
	}
	if c.Server.SessionIdleTimeout < 1*time.Minute {
		return fmt.Errorf("server.session_idle_timeout must be at least 1 minute")
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}

	// Validate Chart config
	if c.Chart.Width < 200 || c.Chart.Height < 100 {
		return fmt.Errorf("chart must be at least 200x100 pixels")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
