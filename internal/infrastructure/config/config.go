package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document for the agent.
// Records are grouped by category: entities, warehouses and process-wide settings.
type Config struct {
	Settings   SettingsConfig `yaml:"settings"`
	Entities   []Record       `yaml:"entities"`
	Warehouses []Record       `yaml:"warehouses"`
}

// SettingsConfig contains process-wide settings shared by every plugin.
type SettingsConfig struct {
	// AppName is the first segment of every published topic.
	AppName string `yaml:"app_name"`

	// ClientName identifies this host on the bus. Defaults to the hostname.
	ClientName string `yaml:"client_name"`

	// UpdateInterval is the default entity poll interval.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// WarehouseInterval is the default warehouse loop interval.
	WarehouseInterval time.Duration `yaml:"warehouse_interval"`

	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
// Warehouses that talk to a broker embed it in their own record.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GLAGENT_KEY
// For example: GLAGENT_CLIENT_NAME, GLAGENT_LOG_LEVEL
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
		Settings: SettingsConfig{
			AppName:           "graylogic-agent",
			ClientName:        defaultClientName(),
			UpdateInterval:    10 * time.Second,
			WarehouseInterval: 10 * time.Second,
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// defaultClientName returns the hostname, or a fixed fallback when it cannot be read.
func defaultClientName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "agent"
	}
	return host
}

// DefaultMQTT returns broker settings used when a warehouse record omits them.
func DefaultMQTT() MQTTConfig {
	return MQTTConfig{
		Broker: MQTTBrokerConfig{
			Host: "localhost",
			Port: 1883,
		},
		QoS: 1,
		Reconnect: MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

// ApplyEnvOverrides applies GLAGENT_MQTT_* credentials to broker settings.
func (c *MQTTConfig) ApplyEnvOverrides() {
	if v := os.Getenv("GLAGENT_MQTT_HOST"); v != "" {
		c.Broker.Host = v
	}
	if v := os.Getenv("GLAGENT_MQTT_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv("GLAGENT_MQTT_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
}

// Validate checks broker settings.
func (c *MQTTConfig) Validate() error {
	var errs []string
	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.QoS < 0 || c.QoS > 2 {
		errs = append(errs, "qos must be 0, 1, or 2")
	}
	if len(errs) > 0 {
		return fmt.Errorf("mqtt configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLAGENT_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GLAGENT_APP_NAME"); v != "" {
		cfg.Settings.AppName = v
	}
	if v := os.Getenv("GLAGENT_CLIENT_NAME"); v != "" {
		cfg.Settings.ClientName = v
	}
	if v := os.Getenv("GLAGENT_UPDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Settings.UpdateInterval = d
		}
	}
	if v := os.Getenv("GLAGENT_LOG_LEVEL"); v != "" {
		cfg.Settings.Logging.Level = v
	}
	if v := os.Getenv("GLAGENT_LOG_FORMAT"); v != "" {
		cfg.Settings.Logging.Format = v
	}
}

// Validate checks the configuration for errors.
//
// Besides required settings it rejects records that share the same type and
// tag within a category, because such records would resolve to the same
// identity on the bus.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Settings.AppName == "" {
		errs = append(errs, "settings.app_name is required")
	}
	if c.Settings.ClientName == "" {
		errs = append(errs, "settings.client_name is required")
	}
	if c.Settings.UpdateInterval <= 0 {
		errs = append(errs, "settings.update_interval must be positive")
	}
	if c.Settings.WarehouseInterval <= 0 {
		errs = append(errs, "settings.warehouse_interval must be positive")
	}

	errs = append(errs, validateRecords("entities", c.Entities)...)
	errs = append(errs, validateRecords("warehouses", c.Warehouses)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateRecords checks a record category for missing types and duplicate identities.
func validateRecords(category string, records []Record) []string {
	var errs []string
	seen := make(map[string]int, len(records))

	for i, r := range records {
		if r.Type == "" {
			errs = append(errs, fmt.Sprintf("%s[%d].type is required", category, i))
			continue
		}
		id := r.Identity()
		if first, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("%s[%d] duplicates %s[%d] (%s): set a distinct tag",
				category, i, category, first, id))
			continue
		}
		seen[id] = i

		if _, err := r.Interval(time.Second); err != nil {
			errs = append(errs, fmt.Sprintf("%s[%d].interval: %v", category, i, err))
		}
	}

	return errs
}
