package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
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
scanner:
  enabled: true
  cycle: 10
  duration: 3
mqtt:
  enabled: true
  host: "localhost"
  port: 1883
prometheus:
  enabled: true
  port: 9090
devices:
  - name: meter
    address: "aa:bb:cc:dd:ee:ff"
`
	cfg, err := Load(writeTempConfig(t, content), Overrides{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Host != "localhost" {
		t.Errorf("MQTT.Host = %q, want %q", cfg.MQTT.Host, "localhost")
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Name != "meter" {
		t.Errorf("Devices = %+v, want one alias named meter", cfg.Devices)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml", Overrides{}); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "invalid: [yaml: content")
	if _, err := Load(path, Overrides{}); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
mqtt:
  enabled: true
  host: ""
  port: 1883
`
	path := writeTempConfig(t, content)
	if _, err := Load(path, Overrides{}); err == nil {
		t.Error("Load() expected validation error for empty mqtt.host, got nil")
	}
}

func TestLoad_DuplicateAliasRejected(t *testing.T) {
	content := `
devices:
  - name: meter
    address: "aa:bb:cc:dd:ee:ff"
  - name: meter
    address: "11:22:33:44:55:66"
`
	path := writeTempConfig(t, content)
	if _, err := Load(path, Overrides{}); err == nil {
		t.Error("Load() expected validation error for duplicate alias, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Scanner:    ScannerConfig{Enabled: true, Cycle: 10, Duration: 3},
				MQTT:       MQTTConfig{Enabled: true, Host: "localhost", Port: 1883},
				Prometheus: PrometheusConfig{Enabled: true, Port: 9090},
			},
			wantErr: false,
		},
		{
			name: "scanner duration exceeds cycle",
			config: &Config{
				Scanner: ScannerConfig{Enabled: true, Cycle: 2, Duration: 5},
			},
			wantErr: true,
		},
		{
			name: "mqtt enabled without host",
			config: &Config{
				MQTT: MQTTConfig{Enabled: true, Host: "", Port: 1883},
			},
			wantErr: true,
		},
		{
			name: "invalid mqtt port",
			config: &Config{
				MQTT: MQTTConfig{Enabled: true, Host: "localhost", Port: 70000},
			},
			wantErr: true,
		},
		{
			name: "invalid prometheus port",
			config: &Config{
				Prometheus: PrometheusConfig{Enabled: true, Port: 0},
			},
			wantErr: true,
		},
		{
			name: "device controller enabled without base url",
			config: &Config{
				DeviceController: DeviceControllerConfig{Enabled: true, SigningSecret: "s"},
			},
			wantErr: true,
		},
		{
			name: "device controller enabled without signing secret",
			config: &Config{
				DeviceController: DeviceControllerConfig{Enabled: true, BaseURL: "http://localhost:9100"},
			},
			wantErr: true,
		},
		{
			name: "device controller fully configured",
			config: &Config{
				DeviceController: DeviceControllerConfig{Enabled: true, BaseURL: "http://localhost:9100", SigningSecret: "s"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SWITCHSENTRY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SWITCHSENTRY_MQTT_USERNAME", "testuser")
	t.Setenv("SWITCHSENTRY_MQTT_PASSWORD", "testpass")
	t.Setenv("SWITCHSENTRY_LOG_LEVEL", "debug")
	t.Setenv("SWITCHSENTRY_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Host = %q, want %q", cfg.MQTT.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Username != "testuser" {
		t.Errorf("MQTT.Username = %q, want %q", cfg.MQTT.Username, "testuser")
	}
	if cfg.MQTT.Password != "testpass" {
		t.Errorf("MQTT.Password = %q, want %q", cfg.MQTT.Password, "testpass")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := defaultConfig()
	debugTrue := true
	port := 9999
	host := "eth1"

	applyFlagOverrides(cfg, Overrides{
		Debug:            &debugTrue,
		ScannerInterface: &host,
		PrometheusPort:   &port,
	})

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Scanner.Interface != "eth1" {
		t.Errorf("Scanner.Interface = %q, want eth1", cfg.Scanner.Interface)
	}
	if cfg.Prometheus.Port != 9999 {
		t.Errorf("Prometheus.Port = %d, want 9999", cfg.Prometheus.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Port = %d, want 1883", cfg.MQTT.Port)
	}
	if cfg.Prometheus.Port != 9090 {
		t.Errorf("defaultConfig Prometheus.Port = %d, want 9090", cfg.Prometheus.Port)
	}
	if cfg.Scanner.Cycle < cfg.Scanner.Duration {
		t.Error("defaultConfig scanner.cycle must be >= scanner.duration")
	}
}
