package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollIntervalMs is the hard lower bound for hub polling. Harmony hubs
// reject requests sent faster than roughly 100ms apart, so a smaller value
// is clamped rather than honoured.
const minPollIntervalMs = 100

// Config is the root configuration structure for the Harmony microservice.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig     `yaml:"mqtt"`
	TopicRoot string         `yaml:"topic_root"`
	Poll      PollConfig     `yaml:"poll"`
	Hubs      []HubConfig    `yaml:"hubs"`
	API       APIConfig      `yaml:"api"`
	InfluxDB  InfluxDBConfig `yaml:"influxdb"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// HubConfig describes one Harmony hub to bridge.
type HubConfig struct {
	// ID is the hub identifier used in MQTT topics (e.g., "harmony-livingroom").
	ID string `yaml:"id"`

	// Host is the hub's network address (IP or hostname).
	Host string `yaml:"host"`

	// MAC is the hub's hardware address, used for identification only.
	MAC string `yaml:"mac"`

	// Name is the human-readable display name.
	Name string `yaml:"name"`
}

// PollConfig contains hub state polling settings.
type PollConfig struct {
	// IntervalMs is the delay between poll ticks in milliseconds.
	// Values below 100 are clamped to 100 (the hub rejects faster polling).
	IntervalMs int `yaml:"interval_ms"`

	// TickTimeoutMs bounds a single poll tick. A hung hub call is cancelled
	// after this long instead of blocking the loop indefinitely.
	TickTimeoutMs int `yaml:"tick_timeout_ms"`
}

// MQTTConfig contains MQTT broker connection settings.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP status API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for history telemetry.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HARMONY_SECTION_KEY
// For example: HARMONY_MQTT_HOST, HARMONY_TOPIC_ROOT
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
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "harmony-microservice",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		TopicRoot: "harmony",
		Poll: PollConfig{
			IntervalMs:    1000,
			TickTimeoutMs: 5000,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HARMONY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("HARMONY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HARMONY_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("HARMONY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HARMONY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Topics
	if v := os.Getenv("HARMONY_TOPIC_ROOT"); v != "" {
		cfg.TopicRoot = v
	}

	// API
	if v := os.Getenv("HARMONY_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("HARMONY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.TopicRoot == "" {
		errs = append(errs, "topic_root is required")
	} else if strings.ContainsAny(c.TopicRoot, "#+") {
		errs = append(errs, "topic_root must not contain MQTT wildcards")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(c.Hubs) == 0 {
		errs = append(errs, "at least one hub must be configured")
	}
	seen := make(map[string]bool, len(c.Hubs))
	for i, hub := range c.Hubs {
		if hub.ID == "" {
			errs = append(errs, fmt.Sprintf("hubs[%d].id is required", i))
		}
		if hub.Host == "" {
			errs = append(errs, fmt.Sprintf("hubs[%d].host is required", i))
		}
		if seen[hub.ID] {
			errs = append(errs, fmt.Sprintf("hubs[%d].id %q is duplicated", i, hub.ID))
		}
		seen[hub.ID] = true
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the poll interval as a Duration, clamped to the hub's
// minimum accepted request spacing.
func (c *Config) PollInterval() time.Duration {
	ms := c.Poll.IntervalMs
	if ms < minPollIntervalMs {
		ms = minPollIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// TickTimeout returns the per-tick RPC timeout as a Duration.
func (c *Config) TickTimeout() time.Duration {
	ms := c.Poll.TickTimeoutMs
	if ms <= 0 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}

// ReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
