package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Matter identifier limits.
const (
	maxEndpointID      = 0xFFFE
	maxDynamicSlots    = 254
	envPrefix          = "GRAYLOGIC_MATTER_"
	defaultLockTimeout = 5 * time.Second
	minJWTSecretLength = 32
)

// Config is the root configuration structure for the Gray Logic Matter bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Matter    MatterConfig    `yaml:"matter"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// AuditRetentionDays is how long audit entries are kept; 0 keeps them
	// forever.
	AuditRetentionDays int `yaml:"audit_retention_days"`
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

// APIConfig contains HTTP API server settings.
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

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// WebSocketConfig contains settings for the endpoint event stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT bearer token settings.
// When Enabled, every API route except /health requires a valid token.
type JWTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
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

// MatterConfig contains the Matter node's endpoint layout.
type MatterConfig struct {
	// DynamicEndpointCount is the number of dynamic endpoint slots.
	// Default: 16
	DynamicEndpointCount int `yaml:"dynamic_endpoint_count"`

	// MaxEndpointID is the highest identifier the registry may assign.
	// Default: 65534
	MaxEndpointID int `yaml:"max_endpoint_id"`

	// LockTimeout bounds how long an add or remove waits for the stack lock.
	// Default: 5s
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// AggregatorEndpoint is the parent endpoint of every bridged device.
	// Default: 1
	AggregatorEndpoint int `yaml:"aggregator_endpoint"`

	// HealthInterval is the bridge health publish interval in seconds.
	// Default: 30
	HealthInterval int `yaml:"health_interval"`

	// FixedEndpoints lists the node's static endpoints in ascending id order.
	// The last entry is the placeholder that is disabled at startup.
	FixedEndpoints []FixedEndpointConfig `yaml:"fixed_endpoints"`
}

// FixedEndpointConfig describes one static endpoint.
type FixedEndpointConfig struct {
	ID          int      `yaml:"id"`
	Name        string   `yaml:"name"`
	DeviceTypes []uint32 `yaml:"device_types"`
	Placeholder bool     `yaml:"placeholder"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_MATTER_SECTION_KEY
// For example: GRAYLOGIC_MATTER_DATABASE_PATH, GRAYLOGIC_MATTER_API_PORT
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

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file is given.
func Default() (*Config, error) {
	cfg := defaultConfig()
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
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:               "./data/matterbridge.db",
			WALMode:            true,
			BusyTimeout:        5,
			AuditRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-matter",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Matter: MatterConfig{
			DynamicEndpointCount: 16,
			MaxEndpointID:        maxEndpointID,
			LockTimeout:          defaultLockTimeout,
			AggregatorEndpoint:   1,
			HealthInterval:       30,
			FixedEndpoints: []FixedEndpointConfig{
				{ID: 0, Name: "root", DeviceTypes: []uint32{0x0016}},
				{ID: 1, Name: "aggregator", DeviceTypes: []uint32{0x000E}},
				{ID: 2, Name: "placeholder", DeviceTypes: []uint32{0x0013}, Placeholder: true},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_MATTER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv(envPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv(envPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt(envPrefix + "API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv(envPrefix + "JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Logging
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Matter
	if v, ok := envInt(envPrefix + "DYNAMIC_ENDPOINT_COUNT"); ok {
		cfg.Matter.DynamicEndpointCount = v
	}
	if v := os.Getenv(envPrefix + "LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Matter.LockTimeout = d
		}
	}
}

// envInt reads an integer environment variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
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
	if c.Database.AuditRetentionDays < 0 {
		errs = append(errs, "database.audit_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Security.JWT.Enabled && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("security.jwt.secret must be at least %d characters when jwt is enabled", minJWTSecretLength))
	}

	if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be at least 1")
	}

	errs = append(errs, c.Matter.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (m *MatterConfig) validate() []string {
	var errs []string

	if m.DynamicEndpointCount < 1 || m.DynamicEndpointCount > maxDynamicSlots {
		errs = append(errs, fmt.Sprintf("matter.dynamic_endpoint_count must be between 1 and %d", maxDynamicSlots))
	}
	if m.LockTimeout < 0 {
		errs = append(errs, "matter.lock_timeout must not be negative")
	}
	if m.HealthInterval < 1 {
		errs = append(errs, "matter.health_interval must be at least 1")
	}

	if len(m.FixedEndpoints) == 0 {
		errs = append(errs, "matter.fixed_endpoints must list at least one endpoint")
		return errs
	}

	last := m.FixedEndpoints[len(m.FixedEndpoints)-1]
	for i, ep := range m.FixedEndpoints {
		if i > 0 && ep.ID != m.FixedEndpoints[i-1].ID+1 {
			errs = append(errs, "matter.fixed_endpoints ids must be contiguous and ascending")
			break
		}
		if ep.Placeholder && i != len(m.FixedEndpoints)-1 {
			errs = append(errs, "matter.fixed_endpoints: only the last endpoint may be the placeholder")
			break
		}
	}
	if m.FixedEndpoints[0].ID < 0 {
		errs = append(errs, "matter.fixed_endpoints ids must not be negative")
	}
	if !last.Placeholder {
		errs = append(errs, "matter.fixed_endpoints: the last endpoint must be marked placeholder")
	}

	// The first dynamic id is one past the last fixed id and must fit the range.
	if m.MaxEndpointID <= last.ID || m.MaxEndpointID > maxEndpointID {
		errs = append(errs, fmt.Sprintf("matter.max_endpoint_id must be greater than the last fixed id and at most %d", maxEndpointID))
	}

	aggregatorFound := false
	for _, ep := range m.FixedEndpoints {
		if ep.ID == m.AggregatorEndpoint {
			aggregatorFound = true
			break
		}
	}
	switch {
	case !aggregatorFound:
		errs = append(errs, "matter.aggregator_endpoint must be one of the fixed endpoints")
	case m.AggregatorEndpoint == last.ID:
		// The placeholder is disabled at startup, so it cannot parent devices.
		errs = append(errs, "matter.aggregator_endpoint must not be the placeholder endpoint")
	}

	return errs
}

// GetAuditRetention returns the audit retention period, or 0 to keep
// entries forever.
func (d DatabaseConfig) GetAuditRetention() time.Duration {
	return time.Duration(d.AuditRetentionDays) * 24 * time.Hour
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// GetAccessTokenTTL returns the access token lifetime as a Duration.
func (j JWTConfig) GetAccessTokenTTL() time.Duration {
	return time.Duration(j.AccessTokenTTL) * time.Minute
}

// GetHealthInterval returns the bridge health publish interval as a Duration.
func (m *MatterConfig) GetHealthInterval() time.Duration {
	return time.Duration(m.HealthInterval) * time.Second
}
