// Package config loads and validates the switchsentry configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML config file,
// then environment variable overrides, then command-line flag overrides.
// Each layer only overrides keys it actually sets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for switchsentry.
type Config struct {
	Scanner    ScannerConfig    `yaml:"scanner"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging"`
	Devices    []DeviceAlias    `yaml:"devices"`
	Automations []AutomationRule `yaml:"automations"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Debug      DebugConfig      `yaml:"debug"`
	DeviceController DeviceControllerConfig `yaml:"device_controller"`
}

// ScannerConfig controls the BLE advertisement scan duty cycle.
type ScannerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cycle     int    `yaml:"cycle"`    // seconds between scan cycles
	Duration  int    `yaml:"duration"` // seconds active per cycle
	Interface string `yaml:"interface"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	ClientID           string `yaml:"client_id"`
	ReconnectInterval  int    `yaml:"reconnect_interval"` // seconds
}

// PrometheusConfig controls the metrics scrape endpoint.
type PrometheusConfig struct {
	Enabled bool           `yaml:"enabled"`
	Port    int            `yaml:"port"`
	Target  PrometheusTarget `yaml:"target"`
}

// PrometheusTarget restricts which entities/metrics are published.
type PrometheusTarget struct {
	Addresses []string `yaml:"addresses"` // allow-list, empty = all
	Metrics   []string `yaml:"metrics"`   // allow-list, empty = all
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// DeviceAlias binds a friendly name to an entity key plus construction
// parameters for the device controller.
type DeviceAlias struct {
	Name    string         `yaml:"name"`
	Address string         `yaml:"address"`
	Params  map[string]any `yaml:"params"`
}

// AutomationRule is the YAML shape of one rule (spec.md §3 Rule).
type AutomationRule struct {
	Name       string            `yaml:"name"`
	Cooldown   string            `yaml:"cooldown"`
	If         AutomationIf      `yaml:"if"`
	Then       []AutomationAction `yaml:"then"`
}

// AutomationIf is the trigger half of a rule.
type AutomationIf struct {
	Source     string            `yaml:"source"` // ble-event | mqtt-event
	Topic      string            `yaml:"topic"`
	Device     string            `yaml:"device"`
	Duration   string            `yaml:"duration"`
	Conditions map[string]string `yaml:"conditions"`
}

// AutomationAction is one action-executor configuration.
type AutomationAction struct {
	Type    string         `yaml:"type"` // log | shell | webhook | mqtt-publish | device-command
	Raw     map[string]any `yaml:",inline"`
}

// DatabaseConfig contains optional SQLite cooldown-persistence settings.
// Disabled by default; spec.md's Non-goals exclude persistence across
// restarts unless an operator opts in explicitly.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains optional history-writer settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DebugConfig controls the debug HTTP/WS surface.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DeviceControllerConfig points device-command actions at the bridge
// process that actually talks to hardware, and carries the secret used to
// sign outgoing commands so the bridge can verify switchsentry issued them.
type DeviceControllerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BaseURL       string `yaml:"base_url"`
	SigningSecret string `yaml:"signing_secret"`
}

// Overrides carries command-line flag overrides. A nil pointer field means
// "flag not set, leave config file/env value alone".
type Overrides struct {
	Debug                    *bool
	ScannerCycle             *int
	ScannerDuration          *int
	ScannerInterface         *string
	MQTTEnabled              *bool
	MQTTHost                 *string
	MQTTPort                 *int
	MQTTUsername             *string
	MQTTPassword             *string
	MQTTReconnectInterval    *int
	PrometheusEnabled        *bool
	PrometheusPort           *int
	LogLevel                 *string
}

// Load reads configuration from a YAML file, applies environment variable
// and CLI overrides, and validates the result.
//
// Precedence (lowest to highest): defaults, config file, environment
// variables, CLI overrides.
func Load(path string, ov Overrides) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyFlagOverrides(cfg, ov)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Scanner: ScannerConfig{
			Enabled:  true,
			Cycle:    10,
			Duration: 3,
		},
		MQTT: MQTTConfig{
			Enabled:           true,
			Host:              "localhost",
			Port:              1883,
			ClientID:          "switchsentry",
			ReconnectInterval: 5,
		},
		Prometheus: PrometheusConfig{
			Enabled: true,
			Port:    9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:        "./data/switchsentry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Debug: DebugConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
		},
	}
}

// applyEnvOverrides applies SWITCHSENTRY_SECTION_KEY environment overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWITCHSENTRY_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("SWITCHSENTRY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("SWITCHSENTRY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("SWITCHSENTRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SWITCHSENTRY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// applyFlagOverrides applies CLI flag overrides; these take precedence over
// both the config file and environment variables.
func applyFlagOverrides(cfg *Config, ov Overrides) {
	if ov.Debug != nil && *ov.Debug {
		cfg.Logging.Level = "debug"
	}
	if ov.ScannerCycle != nil {
		cfg.Scanner.Cycle = *ov.ScannerCycle
	}
	if ov.ScannerDuration != nil {
		cfg.Scanner.Duration = *ov.ScannerDuration
	}
	if ov.ScannerInterface != nil {
		cfg.Scanner.Interface = *ov.ScannerInterface
	}
	if ov.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *ov.MQTTEnabled
	}
	if ov.MQTTHost != nil {
		cfg.MQTT.Host = *ov.MQTTHost
	}
	if ov.MQTTPort != nil {
		cfg.MQTT.Port = *ov.MQTTPort
	}
	if ov.MQTTUsername != nil {
		cfg.MQTT.Username = *ov.MQTTUsername
	}
	if ov.MQTTPassword != nil {
		cfg.MQTT.Password = *ov.MQTTPassword
	}
	if ov.MQTTReconnectInterval != nil {
		cfg.MQTT.ReconnectInterval = *ov.MQTTReconnectInterval
	}
	if ov.PrometheusEnabled != nil {
		cfg.Prometheus.Enabled = *ov.PrometheusEnabled
	}
	if ov.PrometheusPort != nil {
		cfg.Prometheus.Port = *ov.PrometheusPort
	}
	if ov.LogLevel != nil {
		cfg.Logging.Level = *ov.LogLevel
	}
}

// Validate checks the configuration for structural and semantic errors.
// Per-rule validation (source/topic/duration/alias consistency) happens in
// the automation package when rules are compiled, since it needs the
// resolved alias table; this only validates infrastructure-level settings.
func (c *Config) Validate() error {
	var errs []string

	if c.Scanner.Enabled && c.Scanner.Cycle < c.Scanner.Duration {
		errs = append(errs, "scanner.cycle must be >= scanner.duration")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			errs = append(errs, "mqtt.host is required when mqtt.enabled")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			errs = append(errs, "mqtt.port must be between 1 and 65535")
		}
	}
	if c.Prometheus.Enabled && (c.Prometheus.Port < 1 || c.Prometheus.Port > 65535) {
		errs = append(errs, "prometheus.port must be between 1 and 65535")
	}
	if c.DeviceController.Enabled {
		if c.DeviceController.BaseURL == "" {
			errs = append(errs, "device_controller.base_url is required when device_controller.enabled")
		}
		if c.DeviceController.SigningSecret == "" {
			errs = append(errs, "device_controller.signing_secret is required when device_controller.enabled")
		}
	}

	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.Name == "" {
			errs = append(errs, "devices entry missing name")
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Sprintf("duplicate device alias %q", d.Name))
		}
		seen[d.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ReconnectInterval returns the MQTT reconnect interval as a Duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.MQTT.ReconnectInterval) * time.Second
}
