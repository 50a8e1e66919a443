package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Trackside Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Automation AutomationConfig `yaml:"automation"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SiteConfig identifies the layout this instance automates.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of every feed, command and status topic.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AutomationConfig controls the trigger engine and its worker pool.
type AutomationConfig struct {
	// Workers is the number of scripts allowed to run concurrently.
	// Default: 4
	Workers int `yaml:"workers"`

	// QueueSize bounds the number of matched runs waiting for a worker.
	// When full, event processing waits for a free slot rather than dropping.
	// Default: 64
	QueueSize int `yaml:"queue_size"`

	// DefaultTimeout is the watchdog deadline for registrations that don't set one.
	// Default: 60s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// ShutdownGrace is how long teardown waits for in-flight scripts.
	// Default: 10s
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// Verbose logs every fired and skipped decision and every guard failure at info.
	Verbose bool `yaml:"verbose"`

	// Rules are declarative automations whose action publishes a command.
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig describes an automation defined in config.yaml.
type RuleConfig struct {
	Name    string        `yaml:"name"`
	Trigger string        `yaml:"trigger"` // "time" or "event"
	Pattern string        `yaml:"pattern"`
	Guard   string        `yaml:"guard"`
	Timeout time.Duration `yaml:"timeout"`
	Command CommandConfig `yaml:"command"`
}

// CommandConfig is the outbound command a declarative rule publishes.
type CommandConfig struct {
	Kind       string         `yaml:"kind"`
	ID         string         `yaml:"id"`
	Command    string         `yaml:"command"`
	Parameters map[string]any `yaml:"parameters"`
}

// RecoveryConfig controls the response to an unexpected loss of the state feed.
type RecoveryConfig struct {
	// StateFile is where the last known layout state is written as JSON.
	// Empty disables the file.
	StateFile string `yaml:"state_file"`

	// EmergencyStop publishes an emergency notice on the core emergency topic.
	EmergencyStop bool `yaml:"emergency_stop"`

	// SnapshotRetention is how many stored snapshots to keep in SQLite.
	// Default: 20
	SnapshotRetention int `yaml:"snapshot_retention"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TRACKSIDE_SECTION_KEY
// For example: TRACKSIDE_DATABASE_PATH, TRACKSIDE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "layout-001",
			Name: "Trackside",
		},
		Database: DatabaseConfig{
			Path:        "./data/trackside.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "trackside-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "trackside",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Automation: AutomationConfig{
			Workers:        4,
			QueueSize:      64,
			DefaultTimeout: 60 * time.Second,
			ShutdownGrace:  10 * time.Second,
		},
		Recovery: RecoveryConfig{
			StateFile:         "./data/emergency_state.json",
			EmergencyStop:     true,
			SnapshotRetention: 20,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9108",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TRACKSIDE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("TRACKSIDE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TRACKSIDE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TRACKSIDE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TRACKSIDE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TRACKSIDE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Automation
	if v := os.Getenv("TRACKSIDE_AUTOMATION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Automation.Workers = n
		}
	}
	if v := os.Getenv("TRACKSIDE_AUTOMATION_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Automation.Verbose = b
		}
	}

	// Logging
	if v := os.Getenv("TRACKSIDE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must be non-empty and contain no wildcards")
	}

	if c.Automation.Workers < 1 {
		errs = append(errs, "automation.workers must be at least 1")
	}
	if c.Automation.QueueSize < 1 {
		errs = append(errs, "automation.queue_size must be at least 1")
	}
	if c.Automation.DefaultTimeout <= 0 {
		errs = append(errs, "automation.default_timeout must be positive")
	}
	if c.Automation.ShutdownGrace < 0 {
		errs = append(errs, "automation.shutdown_grace cannot be negative")
	}

	for i, rule := range c.Automation.Rules {
		errs = append(errs, rule.validate(i)...)
	}

	if c.Recovery.SnapshotRetention < 0 {
		errs = append(errs, "recovery.snapshot_retention cannot be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks the structural fields of a declarative rule.
// Pattern and guard syntax are checked when the rule is registered.
func (r RuleConfig) validate(idx int) []string {
	var errs []string
	prefix := fmt.Sprintf("automation.rules[%d]", idx)

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, prefix+".name is required")
	}
	switch r.Trigger {
	case "time", "event":
	default:
		errs = append(errs, prefix+".trigger must be \"time\" or \"event\"")
	}
	if r.Timeout < 0 {
		errs = append(errs, prefix+".timeout cannot be negative")
	}
	if r.Command.Kind == "" || r.Command.ID == "" || r.Command.Command == "" {
		errs = append(errs, prefix+".command requires kind, id and command")
	}
	return errs
}
