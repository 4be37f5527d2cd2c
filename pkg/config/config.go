package config

import (
	"fmt"
	"strings"

	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/ericogr/ina219-exporter/pkg/logger"
	"github.com/prometheus/common/model"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Version is the firmware version reported in the info metric. Set at
// build time with -ldflags "-X .../pkg/config.Version=1.2.0".
var Version = "dev"

const (
	EnvPrefix = "INA219_EXPORTER"

	SensorReal       = "real"
	SensorSimulation = "simulation"

	Calibration32V2A    = "32V_2A"
	Calibration32V1A    = "32V_1A"
	Calibration16V400mA = "16V_400mA"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
)

type MQTTConfig struct {
	Server   string `mapstructure:"server" yaml:"server"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
}

type OutputConfig struct {
	Type string      `mapstructure:"type" yaml:"type"`
	MQTT *MQTTConfig `mapstructure:"mqtt" yaml:"mqtt,omitempty"`
}

// IdentityConfig holds the static device metadata exposed by the info metric.
type IdentityConfig struct {
	Version string `mapstructure:"version" yaml:"version"`
	Board   string `mapstructure:"board" yaml:"board"`
	Sensor  string `mapstructure:"sensor" yaml:"sensor"`
}

type Config struct {
	SensorType    string         `mapstructure:"sensor_type" yaml:"sensor_type"`
	I2CBus        string         `mapstructure:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress    int            `mapstructure:"i2c_address" yaml:"i2c_address"`
	Calibration   string         `mapstructure:"calibration" yaml:"calibration"`
	FaultRate     float64        `mapstructure:"simulation_fault_rate" yaml:"simulation_fault_rate"`
	ReadTryCount  int            `mapstructure:"read_try_count" yaml:"read_try_count"`
	Namespace     string         `mapstructure:"namespace" yaml:"namespace"`
	MetricsPath   string         `mapstructure:"metrics_path" yaml:"metrics_path"`
	TelemetryPath string         `mapstructure:"telemetry_path" yaml:"telemetry_path"`
	ListenAddress string         `mapstructure:"listen_address" yaml:"listen_address"`
	MaxBodyBytes  int            `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	LogLevel      string         `mapstructure:"log_level" yaml:"log_level"`
	Identity      IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Outputs       []OutputConfig `mapstructure:"outputs" yaml:"outputs"`

	// Command-line only.
	PrintConfig bool `mapstructure:"-" yaml:"-"`
	Probe       bool `mapstructure:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		SensorType:    SensorReal,
		I2CBus:        "1",
		I2CAddress:    0x40,
		Calibration:   Calibration32V2A,
		ReadTryCount:  3,
		Namespace:     "ina219",
		MetricsPath:   "/metrics",
		ListenAddress: ":9100",
		MaxBodyBytes:  1024,
		LogLevel:      logger.LevelInfo,
		Identity: IdentityConfig{
			Version: Version,
			Board:   "generic",
			Sensor:  "ina219",
		},
		Outputs: []OutputConfig{{Type: OutputConsole}},
	}
}

// flag name -> config key
var flagKeys = map[string]string{
	"sensor-type":           "sensor_type",
	"i2c-bus":               "i2c_bus",
	"i2c-address":           "i2c_address",
	"calibration":           "calibration",
	"simulation-fault-rate": "simulation_fault_rate",
	"read-try-count":        "read_try_count",
	"namespace":             "namespace",
	"metrics-path":          "metrics_path",
	"telemetry-path":        "telemetry_path",
	"listen-address":        "listen_address",
	"max-body-bytes":        "max_body_bytes",
	"log-level":             "log_level",
	"version-label":         "identity.version",
	"board":                 "identity.board",
	"sensor-name":           "identity.sensor",
}

// Load builds the configuration from defaults, an optional config file
// (YAML, TOML or JSON by extension), INA219_EXPORTER_* environment
// variables and command-line flags, in increasing order of precedence.
func Load(args []string) (Config, error) {
	def := DefaultConfig()

	fs := pflag.NewFlagSet("ina219-exporter", pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to config file (yaml, toml or json)")
	fs.String("sensor-type", def.SensorType, "sensor type: real|simulation")
	fs.String("i2c-bus", def.I2CBus, "I2C bus (e.g., '1' -> /dev/i2c-1)")
	fs.String("i2c-address", fmt.Sprintf("0x%02x", def.I2CAddress), "I2C address (decimal or 0x hex)")
	fs.String("calibration", def.Calibration, "INA219 calibration: 32V_2A|32V_1A|16V_400mA")
	fs.Float64("simulation-fault-rate", def.FaultRate, "Probability of an invalid reading in simulation mode")
	fs.Int("read-try-count", def.ReadTryCount, "Read attempts per channel before reporting a sensor error")
	fs.String("namespace", def.Namespace, "Prometheus metric namespace")
	fs.String("metrics-path", def.MetricsPath, "HTTP path serving the metrics document")
	fs.String("telemetry-path", def.TelemetryPath, "HTTP path serving exporter self-metrics (empty disables)")
	fs.String("listen-address", def.ListenAddress, "HTTP listen address")
	fs.Int("max-body-bytes", def.MaxBodyBytes, "Maximum size of the metrics document")
	fs.String("log-level", def.LogLevel, "Log level: debug|info|warn|error")
	fs.String("version-label", def.Identity.Version, "Version reported in the info metric")
	fs.String("board", def.Identity.Board, "Board name reported in the info metric")
	fs.String("sensor-name", def.Identity.Sensor, "Sensor name reported in the info metric")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT availability topic base")
	printConfig := fs.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	probe := fs.Bool("probe", false, "Read the sensor once, print the readings and exit")

	if err := fs.Parse(args); err != nil {
		return def, err
	}

	v := viper.New()
	setDefaults(v, def)

	if *cfgPath != "" {
		v.SetConfigFile(*cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return def, errors.Wrap(errors.ErrReadConfig, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return def, errors.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := def
	if v.IsSet("outputs") {
		cfg.Outputs = nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return def, errors.Wrap(errors.ErrReadConfig, err)
	}

	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	applyMQTTFlags(&cfg, MQTTConfig{
		Server:   *flagMQTTServer,
		Username: *flagMQTTUser,
		Password: *flagMQTTPass,
		ClientID: *flagClientID,
		Topic:    *flagTopic,
	})

	cfg.PrintConfig = *printConfig
	cfg.Probe = *probe

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("sensor_type", def.SensorType)
	v.SetDefault("i2c_bus", def.I2CBus)
	v.SetDefault("i2c_address", def.I2CAddress)
	v.SetDefault("calibration", def.Calibration)
	v.SetDefault("simulation_fault_rate", def.FaultRate)
	v.SetDefault("read_try_count", def.ReadTryCount)
	v.SetDefault("namespace", def.Namespace)
	v.SetDefault("metrics_path", def.MetricsPath)
	v.SetDefault("telemetry_path", def.TelemetryPath)
	v.SetDefault("listen_address", def.ListenAddress)
	v.SetDefault("max_body_bytes", def.MaxBodyBytes)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("identity.version", def.Identity.Version)
	v.SetDefault("identity.board", def.Identity.Board)
	v.SetDefault("identity.sensor", def.Identity.Sensor)
}

// applyMQTTFlags maps mqtt flags onto every mqtt output, creating one when
// none is configured.
func applyMQTTFlags(cfg *Config, flags MQTTConfig) {
	if flags == (MQTTConfig{}) {
		return
	}

	merge := func(dst *MQTTConfig) {
		if flags.Server != "" {
			dst.Server = flags.Server
		}
		if flags.Username != "" {
			dst.Username = flags.Username
		}
		if flags.Password != "" {
			dst.Password = flags.Password
		}
		if flags.ClientID != "" {
			dst.ClientID = flags.ClientID
		}
		if flags.Topic != "" {
			dst.Topic = flags.Topic
		}
	}

	applied := false
	for i := range cfg.Outputs {
		if strings.ToLower(cfg.Outputs[i].Type) != OutputMQTT {
			continue
		}
		if cfg.Outputs[i].MQTT == nil {
			cfg.Outputs[i].MQTT = &MQTTConfig{}
		}
		merge(cfg.Outputs[i].MQTT)
		applied = true
	}
	if !applied {
		out := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
		merge(out.MQTT)
		cfg.Outputs = append(cfg.Outputs, out)
	}
}

// Validate checks every field and reports all violations at once.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, errors.WithData(errors.ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		invalid("sensor_type %q must be %q or %q", c.SensorType, SensorReal, SensorSimulation)
	}
	switch c.Calibration {
	case Calibration32V2A, Calibration32V1A, Calibration16V400mA:
	default:
		invalid("calibration %q is not supported", c.Calibration)
	}
	if c.I2CAddress < 0x03 || c.I2CAddress > 0x77 {
		invalid("i2c_address 0x%02x is outside 0x03..0x77", c.I2CAddress)
	}
	if c.FaultRate < 0 || c.FaultRate >= 1 {
		invalid("simulation_fault_rate %v must be in [0, 1)", c.FaultRate)
	}
	if c.ReadTryCount < 1 {
		invalid("read_try_count must be >= 1, got %d", c.ReadTryCount)
	}
	if !model.IsValidLegacyMetricName(model.LabelValue(c.Namespace)) {
		invalid("namespace %q is not a valid metric name prefix", c.Namespace)
	}
	if err := validatePath(c.MetricsPath); err != nil {
		invalid("metrics_path: %v", err)
	}
	if c.TelemetryPath != "" {
		if err := validatePath(c.TelemetryPath); err != nil {
			invalid("telemetry_path: %v", err)
		} else if c.TelemetryPath == c.MetricsPath {
			invalid("telemetry_path must differ from metrics_path")
		}
	}
	if c.ListenAddress == "" {
		invalid("listen_address is required")
	}
	if c.MaxBodyBytes < 64 {
		invalid("max_body_bytes must be >= 64, got %d", c.MaxBodyBytes)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		invalid("log_level: %v", err)
	}
	for i, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case OutputConsole:
		case OutputMQTT:
			if o.MQTT == nil || o.MQTT.Server == "" {
				invalid("outputs[%d]: mqtt output requires a server", i)
			}
		default:
			invalid("outputs[%d]: unknown type %q", i, o.Type)
		}
	}

	return errors.Join(errs...)
}

func validatePath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%q must start with /", p)
	}
	if p == "/" {
		return fmt.Errorf("%q is reserved for the help page", p)
	}
	return nil
}

// YAML renders the configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	masked := c
	masked.Outputs = make([]OutputConfig, len(c.Outputs))
	for i, o := range c.Outputs {
		if o.MQTT != nil {
			m := *o.MQTT
			if m.Password != "" {
				m.Password = "********"
			}
			o.MQTT = &m
		}
		masked.Outputs[i] = o
	}
	return yaml.Marshal(masked)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
