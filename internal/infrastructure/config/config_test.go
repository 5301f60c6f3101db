package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9090
matter:
  dynamic_endpoint_count: 8
  lock_timeout: 250ms
  fixed_endpoints:
    - id: 0
      name: root
      device_types: [0x16]
    - id: 1
      name: aggregator
      device_types: [0x0e]
    - id: 2
      name: placeholder
      placeholder: true
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.Matter.DynamicEndpointCount != 8 {
		t.Errorf("DynamicEndpointCount = %d, want 8", cfg.Matter.DynamicEndpointCount)
	}
	if cfg.Matter.LockTimeout != 250*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 250ms", cfg.Matter.LockTimeout)
	}
	if len(cfg.Matter.FixedEndpoints) != 3 || !cfg.Matter.FixedEndpoints[2].Placeholder {
		t.Errorf("FixedEndpoints = %+v", cfg.Matter.FixedEndpoints)
	}
	// Unset fields keep their defaults.
	if cfg.Matter.MaxEndpointID != 0xFFFE {
		t.Errorf("MaxEndpointID = %d, want default", cfg.Matter.MaxEndpointID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
matter:
  dynamic_endpoint_count: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id", "dynamic_endpoint_count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// TestLoad_ShippedConfig keeps configs/config.yaml in step with the
// built-in defaults.
func TestLoad_ShippedConfig(t *testing.T) {
	for _, key := range []string{"DATABASE_PATH", "MQTT_HOST", "API_HOST", "API_PORT", "JWT_SECRET"} {
		t.Setenv(envPrefix+key, "")
	}

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := defaultConfig()

	if !reflect.DeepEqual(cfg.Matter, def.Matter) {
		t.Errorf("matter section = %+v, want %+v", cfg.Matter, def.Matter)
	}
	if cfg.Database != def.Database || cfg.WebSocket != def.WebSocket || cfg.Security != def.Security {
		t.Error("database, websocket or security section differs from defaults")
	}
	if cfg.MQTT != def.MQTT {
		t.Errorf("mqtt section = %+v, want %+v", cfg.MQTT, def.MQTT)
	}
	if cfg.API.Port != def.API.Port || cfg.API.Timeouts != def.API.Timeouts {
		t.Errorf("api section = %+v", cfg.API)
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.Matter.DynamicEndpointCount != 16 || cfg.Matter.AggregatorEndpoint != 1 {
		t.Errorf("Matter = %+v", cfg.Matter)
	}
	last := cfg.Matter.FixedEndpoints[len(cfg.Matter.FixedEndpoints)-1]
	if !last.Placeholder {
		t.Error("default layout should end with the placeholder endpoint")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"too many slots", func(c *Config) { c.Matter.DynamicEndpointCount = 1000 }, "dynamic_endpoint_count"},
		{"negative lock timeout", func(c *Config) { c.Matter.LockTimeout = -time.Second }, "lock_timeout"},
		{"no fixed endpoints", func(c *Config) { c.Matter.FixedEndpoints = nil }, "fixed_endpoints"},
		{"gap in fixed ids", func(c *Config) { c.Matter.FixedEndpoints[2].ID = 5 }, "contiguous"},
		{"placeholder not last", func(c *Config) { c.Matter.FixedEndpoints[0].Placeholder = true }, "placeholder"},
		{"max id below fixed", func(c *Config) { c.Matter.MaxEndpointID = 2 }, "max_endpoint_id"},
		{"max id too large", func(c *Config) { c.Matter.MaxEndpointID = 0xFFFF }, "max_endpoint_id"},
		{"unknown aggregator", func(c *Config) { c.Matter.AggregatorEndpoint = 9 }, "aggregator_endpoint"},
		{"aggregator is placeholder", func(c *Config) {
			c.Matter.FixedEndpoints = []FixedEndpointConfig{{ID: 0, Name: "root"}, {ID: 1, Name: "aggregator", Placeholder: true}}
			c.Matter.AggregatorEndpoint = 1
		}, "must not be the placeholder"},
		{"last not placeholder", func(c *Config) { c.Matter.FixedEndpoints[len(c.Matter.FixedEndpoints)-1].Placeholder = false }, "marked placeholder"},
		{"negative audit retention", func(c *Config) { c.Database.AuditRetentionDays = -1 }, "audit_retention_days"},
		{"audit kept forever", func(c *Config) { c.Database.AuditRetentionDays = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GRAYLOGIC_MATTER_DATABASE_PATH", "/env/bridge.db")
	t.Setenv("GRAYLOGIC_MATTER_MQTT_HOST", "mqtt.env")
	t.Setenv("GRAYLOGIC_MATTER_API_PORT", "9999")
	t.Setenv("GRAYLOGIC_MATTER_DYNAMIC_ENDPOINT_COUNT", "32")
	t.Setenv("GRAYLOGIC_MATTER_LOCK_TIMEOUT", "2s")
	t.Setenv("GRAYLOGIC_MATTER_LOG_LEVEL", "debug")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/env/bridge.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "mqtt.env" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d", cfg.API.Port)
	}
	if cfg.Matter.DynamicEndpointCount != 32 {
		t.Errorf("DynamicEndpointCount = %d", cfg.Matter.DynamicEndpointCount)
	}
	if cfg.Matter.LockTimeout != 2*time.Second {
		t.Errorf("LockTimeout = %v", cfg.Matter.LockTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestApplyEnvOverrides_IgnoresGarbage(t *testing.T) {
	t.Setenv("GRAYLOGIC_MATTER_API_PORT", "not-a-port")
	t.Setenv("GRAYLOGIC_MATTER_LOCK_TIMEOUT", "soon")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.API.Port != 8081 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
	if cfg.Matter.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want default", cfg.Matter.LockTimeout)
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()
	if cfg.API.GetReadTimeout() != 30*time.Second || cfg.API.GetWriteTimeout() != 30*time.Second || cfg.API.GetIdleTimeout() != time.Minute {
		t.Error("API timeout helpers do not match defaults")
	}
	if cfg.Matter.GetHealthInterval() != 30*time.Second {
		t.Errorf("GetHealthInterval() = %v", cfg.Matter.GetHealthInterval())
	}
}
