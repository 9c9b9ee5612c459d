package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	content := `
data:
  male_temperature: "https://example.org/data/male_temp.csv"
  male_activity: "data/male_act.csv"
  female_temperature: "data/fem_temp.csv"
  female_activity: "data/fem_act.csv"
  timeout: 10s
  max_retries: 5

aggregation:
  expected_days: 14
  estrus_cycle_length: 4
  estrus_cycle_offset: 2

view:
  padding: 0.05
  default_metric: "activity"

server:
  addr: ":9090"
  max_sessions: 10
  session_idle_timeout: 5m

storage:
  db_path: "./data/test.db"
  enabled: true

logging:
  level: "debug"
  format: "json"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Data.MaleTemperature != "https://example.org/data/male_temp.csv" {
		t.Errorf("Unexpected male temperature source: %s", cfg.Data.MaleTemperature)
	}
	if cfg.Data.Timeout != 10*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.Data.Timeout)
	}
	if cfg.Data.MaxRetries != 5 {
		t.Errorf("Unexpected max retries: %d", cfg.Data.MaxRetries)
	}
	// Not set in file: falls back to default
	if cfg.Data.MaxConcurrentFetches != 4 {
		t.Errorf("Expected default max_concurrent_fetches 4, got %d", cfg.Data.MaxConcurrentFetches)
	}
	if cfg.View.Padding != 0.05 {
		t.Errorf("Unexpected padding: %f", cfg.View.Padding)
	}
	if cfg.Server.SessionIdleTimeout != 5*time.Minute {
		t.Errorf("Unexpected idle timeout: %v", cfg.Server.SessionIdleTimeout)
	}
	if cfg.Chart.Width != 800 || cfg.Chart.Height != 400 {
		t.Errorf("Unexpected chart size: %dx%d", cfg.Chart.Width, cfg.Chart.Height)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Aggregation.ExpectedDays != 14 || cfg.Aggregation.EstrusCycleLength != 4 || cfg.Aggregation.EstrusCycleOffset != 2 {
		t.Errorf("Unexpected aggregation defaults: %+v", cfg.Aggregation)
	}
	if cfg.View.DefaultMetric != "temperature" {
		t.Errorf("Unexpected default metric: %s", cfg.View.DefaultMetric)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CIRCADIA_SERVER_ADDR", ":7000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Expected env override :7000, got %s", cfg.Server.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing female activity", func(c *Config) { c.Data.FemaleActivity = "" }},
		{"zero timeout", func(c *Config) { c.Data.Timeout = 0 }},
		{"zero retries", func(c *Config) { c.Data.MaxRetries = 0 }},
		{"zero fetch workers", func(c *Config) { c.Data.MaxConcurrentFetches = 0 }},
		{"negative days", func(c *Config) { c.Aggregation.ExpectedDays = -1 }},
		{"zero cycle", func(c *Config) { c.Aggregation.EstrusCycleLength = 0 }},
		{"padding too large", func(c *Config) { c.View.Padding = 1.5 }},
		{"unknown metric", func(c *Config) { c.View.DefaultMetric = "weight" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"short idle timeout", func(c *Config) { c.Server.SessionIdleTimeout = time.Second }},
		{"storage without path", func(c *Config) { c.Storage.DBPath = "" }},
		{"tiny chart", func(c *Config) { c.Chart.Width = 10 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}
