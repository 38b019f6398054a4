package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the PHD2 MQTT bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	PHD2     PHD2Config     `yaml:"phd2"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PHD2Config contains PHD2 event-server connection settings.
type PHD2Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ConnectTimeout is the maximum time to wait for a connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReconnectDelay is the fixed delay between reconnection attempts (seconds).
	// PHD2 is a long-lived local process that may restart at any time, so the
	// bridge retries indefinitely with no backoff growth.
	ReconnectDelay int `yaml:"reconnect_delay"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	KeepAlive int              `yaml:"keepalive"`
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

// BridgeConfig contains topic namespace and Home Assistant identity settings.
type BridgeConfig struct {
	// BaseTopic is the namespace for all state topics (e.g. "phd2/guiding").
	BaseTopic string `yaml:"base_topic"`

	// DiscoveryPrefix is the Home Assistant MQTT discovery prefix.
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	Device DeviceConfig `yaml:"device"`
}

// DeviceConfig contains the Home Assistant device-identity block shared by
// all discovered entities.
type DeviceConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

// APIConfig contains status HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// guiding sample sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig contains settings for the optional SQLite session event log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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
// Environment variables follow the pattern: PHD2BRIDGE_SECTION_KEY
// For example: PHD2BRIDGE_MQTT_HOST, PHD2BRIDGE_HISTORY_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
//
// The defaults assume PHD2 and the MQTT broker run on the local machine,
// matching a typical single-box observatory setup.
func Default() *Config {
	return &Config{
		PHD2: PHD2Config{
			Host:           "127.0.0.1",
			Port:           4400,
			ConnectTimeout: 10,
			ReconnectDelay: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "127.0.0.1",
				Port:     1883,
				ClientID: "phd2_guiding_bridge",
			},
			QoS:       1,
			KeepAlive: 60,
		},
		Bridge: BridgeConfig{
			BaseTopic:       "phd2/guiding",
			DiscoveryPrefix: "homeassistant",
			Device: DeviceConfig{
				ID:           "phd2_guiding_server",
				Name:         "PHD2 Guiding",
				Manufacturer: "Open PHD Guiding",
				Model:        "PHD2 Server",
			},
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8093,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "./data/phd2bridge.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PHD2BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// PHD2
	if v := os.Getenv("PHD2BRIDGE_PHD2_HOST"); v != "" {
		cfg.PHD2.Host = v
	}

	// MQTT
	if v := os.Getenv("PHD2BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PHD2BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PHD2BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PHD2BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// History
	if v := os.Getenv("PHD2BRIDGE_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.PHD2.Host == "" {
		errs = append(errs, "phd2.host is required")
	}
	if c.PHD2.Port < 1 || c.PHD2.Port > 65535 {
		errs = append(errs, "phd2.port must be between 1 and 65535")
	}
	if c.PHD2.ReconnectDelay < 1 {
		errs = append(errs, "phd2.reconnect_delay must be at least 1 second")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}

	if c.Bridge.BaseTopic == "" {
		errs = append(errs, "bridge.base_topic is required")
	}
	if strings.HasSuffix(c.Bridge.BaseTopic, "/") {
		errs = append(errs, "bridge.base_topic must not end with '/'")
	}
	if c.Bridge.Device.ID == "" {
		errs = append(errs, "bridge.device.id is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the PHD2 connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.PHD2.ConnectTimeout) * time.Second
}

// GetReconnectDelay returns the PHD2 reconnect delay as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.PHD2.ReconnectDelay) * time.Second
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}
