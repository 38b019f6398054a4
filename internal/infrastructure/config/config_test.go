package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
phd2:
  host: "astro-pi.local"
  port: 4400
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-bridge"
  qos: 0
bridge:
  base_topic: "observatory/phd2"
  device:
    id: "test_device"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.PHD2.Host != "astro-pi.local" {
		t.Errorf("PHD2.Host = %q, want %q", cfg.PHD2.Host, "astro-pi.local")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT.QoS = %d, want 0", cfg.MQTT.QoS)
	}
	if cfg.Bridge.BaseTopic != "observatory/phd2" {
		t.Errorf("Bridge.BaseTopic = %q, want %q", cfg.Bridge.BaseTopic, "observatory/phd2")
	}

	// Unset fields keep their defaults.
	if cfg.PHD2.ReconnectDelay != 5 {
		t.Errorf("PHD2.ReconnectDelay = %d, want default 5", cfg.PHD2.ReconnectDelay)
	}
	if cfg.Bridge.DiscoveryPrefix != "homeassistant" {
		t.Errorf("Bridge.DiscoveryPrefix = %q, want default %q", cfg.Bridge.DiscoveryPrefix, "homeassistant")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "from-file"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("PHD2BRIDGE_MQTT_HOST", "from-env")
	t.Setenv("PHD2BRIDGE_MQTT_USERNAME", "guider")
	t.Setenv("PHD2BRIDGE_MQTT_PASSWORD", "secret")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("MQTT.Broker.Host = %q, want env override %q", cfg.MQTT.Broker.Host, "from-env")
	}
	if cfg.MQTT.Auth.Username != "guider" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "guider")
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "secret")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty phd2 host",
			mutate:  func(c *Config) { c.PHD2.Host = "" },
			wantErr: "phd2.host",
		},
		{
			name:    "phd2 port out of range",
			mutate:  func(c *Config) { c.PHD2.Port = 70000 },
			wantErr: "phd2.port",
		},
		{
			name:    "zero reconnect delay",
			mutate:  func(c *Config) { c.PHD2.ReconnectDelay = 0 },
			wantErr: "phd2.reconnect_delay",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "empty client id",
			mutate:  func(c *Config) { c.MQTT.Broker.ClientID = "" },
			wantErr: "mqtt.broker.client_id",
		},
		{
			name:    "base topic trailing slash",
			mutate:  func(c *Config) { c.Bridge.BaseTopic = "phd2/guiding/" },
			wantErr: "base_topic",
		},
		{
			name:    "empty device id",
			mutate:  func(c *Config) { c.Bridge.Device.ID = "" },
			wantErr: "bridge.device.id",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "history enabled without path",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.History.Path = ""
			},
			wantErr: "history.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetDurations(t *testing.T) {
	cfg := Default()

	if got := cfg.GetReconnectDelay().Seconds(); got != 5 {
		t.Errorf("GetReconnectDelay() = %vs, want 5s", got)
	}
	if got := cfg.GetConnectTimeout().Seconds(); got != 10 {
		t.Errorf("GetConnectTimeout() = %vs, want 10s", got)
	}
	if got := cfg.GetKeepAlive().Seconds(); got != 60 {
		t.Errorf("GetKeepAlive() = %vs, want 60s", got)
	}
}
