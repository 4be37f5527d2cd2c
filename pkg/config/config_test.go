package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.SensorType, cfg.SensorType)
	assert.Equal(t, 0x40, cfg.I2CAddress)
	assert.Equal(t, 3, cfg.ReadTryCount)
	assert.Equal(t, "ina219", cfg.Namespace)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.Equal(t, ":9100", cfg.ListenAddress)
	assert.Equal(t, 1024, cfg.MaxBodyBytes)
	assert.Equal(t, []OutputConfig{{Type: OutputConsole}}, cfg.Outputs)
	assert.False(t, cfg.PrintConfig)
	assert.False(t, cfg.Probe)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "exporter.yaml", `
sensor_type: simulation
i2c_address: 0x41
read_try_count: 4
namespace: battery
metrics_path: /prom
identity:
  version: "1.2.0"
  board: esp_x
outputs:
  - type: mqtt
    mqtt:
      server: tcp://broker:1883
      topic: exporters/bench
`)
	t.Setenv("INA219_EXPORTER_NAMESPACE", "batt")
	t.Setenv("INA219_EXPORTER_IDENTITY_SENSOR", "ina219b")

	cfg, err := Load([]string{"--config", path, "--read-try-count", "5", "--i2c-address", "0x44"})
	require.NoError(t, err)

	assert.Equal(t, SensorSimulation, cfg.SensorType, "file value")
	assert.Equal(t, "/prom", cfg.MetricsPath, "file value")
	assert.Equal(t, "batt", cfg.Namespace, "env overrides file")
	assert.Equal(t, 5, cfg.ReadTryCount, "flag overrides file")
	assert.Equal(t, 0x44, cfg.I2CAddress, "hex flag")
	assert.Equal(t, IdentityConfig{Version: "1.2.0", Board: "esp_x", Sensor: "ina219b"}, cfg.Identity)
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, OutputMQTT, cfg.Outputs[0].Type)
	require.NotNil(t, cfg.Outputs[0].MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[0].MQTT.Server)
	assert.Equal(t, "exporters/bench", cfg.Outputs[0].MQTT.Topic)
}

func TestLoadOutputFlags(t *testing.T) {
	cfg, err := Load([]string{"--outputs", "console, MQTT", "--mqtt-server", "tcp://b:1883", "--mqtt-client-id", "bench"})
	require.NoError(t, err)

	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, OutputConsole, cfg.Outputs[0].Type)
	assert.Equal(t, OutputMQTT, cfg.Outputs[1].Type)
	assert.Equal(t, "tcp://b:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "bench", cfg.Outputs[1].MQTT.ClientID)
}

func TestLoadMQTTFlagsCreateOutput(t *testing.T) {
	cfg, err := Load([]string{"--mqtt-server", "tcp://b:1883"})
	require.NoError(t, err)

	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, OutputMQTT, cfg.Outputs[1].Type)
	assert.Equal(t, "tcp://b:1883", cfg.Outputs[1].MQTT.Server)
}

func TestLoadCommandFlags(t *testing.T) {
	cfg, err := Load([]string{"--print-config", "--probe"})
	require.NoError(t, err)
	assert.True(t, cfg.PrintConfig)
	assert.True(t, cfg.Probe)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.New(errors.ErrReadConfig)))
}

func TestLoadInvalidConfigFile(t *testing.T) {
	path := writeConfig(t, "exporter.toml", "This is not a valid TOML file\n")
	_, err := Load([]string{"--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"sensor type", func(c *Config) { c.SensorType = "fake" }, "sensor_type"},
		{"calibration", func(c *Config) { c.Calibration = "5V_1A" }, "calibration"},
		{"address", func(c *Config) { c.I2CAddress = 0x80 }, "i2c_address"},
		{"fault rate", func(c *Config) { c.FaultRate = 1 }, "simulation_fault_rate"},
		{"try count", func(c *Config) { c.ReadTryCount = 0 }, "read_try_count"},
		{"namespace", func(c *Config) { c.Namespace = "9volt" }, "namespace"},
		{"empty namespace", func(c *Config) { c.Namespace = "" }, "namespace"},
		{"metrics path relative", func(c *Config) { c.MetricsPath = "metrics" }, "metrics_path"},
		{"metrics path root", func(c *Config) { c.MetricsPath = "/" }, "metrics_path"},
		{"telemetry clash", func(c *Config) { c.TelemetryPath = "/metrics" }, "telemetry_path"},
		{"listen", func(c *Config) { c.ListenAddress = "" }, "listen_address"},
		{"body", func(c *Config) { c.MaxBodyBytes = 10 }, "max_body_bytes"},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"output type", func(c *Config) { c.Outputs = []OutputConfig{{Type: "kafka"}} }, "unknown type"},
		{"mqtt server", func(c *Config) { c.Outputs = []OutputConfig{{Type: OutputMQTT}} }, "requires a server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, errors.New(errors.ErrInvalidConfig)))
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}

func TestYAMLMasksPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{Server: "tcp://b:1883", Password: "hunter2"}})

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Equal(t, "hunter2", cfg.Outputs[1].MQTT.Password, "original untouched")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, cfg.Namespace, back.Namespace)
	assert.Equal(t, cfg.MetricsPath, back.MetricsPath)
	assert.Equal(t, "********", back.Outputs[1].MQTT.Password)
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"console", "mqtt"}, parseCSV(" console, ,mqtt "))
	assert.Empty(t, parseCSV(""))
}
