package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-layout"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "rail"
automation:
  workers: 2
  queue_size: 8
  default_timeout: 30s
  rules:
    - name: "night lights"
      trigger: time
      pattern: "20:00"
      guard: "not is_on('co_lights')"
      command:
        kind: co
        id: co_lights
        command: "on"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-layout" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-layout")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.TopicPrefix != "rail" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "rail")
	}
	if cfg.Automation.Workers != 2 || cfg.Automation.QueueSize != 8 {
		t.Errorf("Automation = %+v, want workers 2 queue 8", cfg.Automation)
	}
	if cfg.Automation.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.Automation.DefaultTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Automation.ShutdownGrace != 10*time.Second {
		t.Errorf("ShutdownGrace = %v, want 10s default", cfg.Automation.ShutdownGrace)
	}
	if len(cfg.Automation.Rules) != 1 {
		t.Fatalf("len(Rules) = %d, want 1", len(cfg.Automation.Rules))
	}
	rule := cfg.Automation.Rules[0]
	if rule.Trigger != "time" || rule.Pattern != "20:00" || rule.Command.ID != "co_lights" {
		t.Errorf("Rules[0] = %+v", rule)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Automation.Rules = []RuleConfig{{
		Name:    "lights",
		Trigger: "event",
		Pattern: "fb_*",
		Command: CommandConfig{Kind: "co", ID: "co_1", Command: "on"},
	}}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "wildcard prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "rail/#" }, wantErr: "topic_prefix"},
		{name: "zero workers", mutate: func(c *Config) { c.Automation.Workers = 0 }, wantErr: "automation.workers"},
		{name: "zero queue", mutate: func(c *Config) { c.Automation.QueueSize = 0 }, wantErr: "automation.queue_size"},
		{name: "zero default timeout", mutate: func(c *Config) { c.Automation.DefaultTimeout = 0 }, wantErr: "default_timeout"},
		{name: "negative grace", mutate: func(c *Config) { c.Automation.ShutdownGrace = -time.Second }, wantErr: "shutdown_grace"},
		{name: "rule without name", mutate: func(c *Config) { c.Automation.Rules[0].Name = " " }, wantErr: "rules[0].name"},
		{name: "rule bad trigger", mutate: func(c *Config) { c.Automation.Rules[0].Trigger = "cron" }, wantErr: "rules[0].trigger"},
		{name: "rule without command", mutate: func(c *Config) { c.Automation.Rules[0].Command = CommandConfig{} }, wantErr: "rules[0].command"},
		{name: "negative retention", mutate: func(c *Config) { c.Recovery.SnapshotRetention = -1 }, wantErr: "snapshot_retention"},
		{
			name: "metrics without listen",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = ""
			},
			wantErr: "metrics.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.Automation.Workers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "automation.workers") {
		t.Errorf("Validate() error = %v, want both problems reported", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TRACKSIDE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("TRACKSIDE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("TRACKSIDE_MQTT_USERNAME", "testuser")
	t.Setenv("TRACKSIDE_MQTT_PASSWORD", "testpass")
	t.Setenv("TRACKSIDE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("TRACKSIDE_AUTOMATION_WORKERS", "8")
	t.Setenv("TRACKSIDE_AUTOMATION_VERBOSE", "true")
	t.Setenv("TRACKSIDE_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Automation.Workers != 8 {
		t.Errorf("Automation.Workers = %d, want 8", cfg.Automation.Workers)
	}
	if !cfg.Automation.Verbose {
		t.Error("Automation.Verbose = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("TRACKSIDE_AUTOMATION_WORKERS", "many")

	applyEnvOverrides(cfg)

	if cfg.Automation.Workers != 4 {
		t.Errorf("Automation.Workers = %d, want default 4", cfg.Automation.Workers)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.TopicPrefix != "trackside" {
		t.Errorf("defaultConfig MQTT.TopicPrefix = %q, want trackside", cfg.MQTT.TopicPrefix)
	}
	if cfg.Automation.Workers != 4 || cfg.Automation.QueueSize != 64 {
		t.Errorf("defaultConfig Automation = %+v, want 4 workers and queue 64", cfg.Automation)
	}
	if cfg.Automation.DefaultTimeout != 60*time.Second {
		t.Errorf("defaultConfig DefaultTimeout = %v, want 60s", cfg.Automation.DefaultTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
