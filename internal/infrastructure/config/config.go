package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxReadings is the per-channel history capacity used when the
// store section does not set one.
const DefaultMaxReadings = 100

// Config is the root configuration structure for the telemetry bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Brokers   []BrokerConfig  `yaml:"brokers"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Topics    TopicsConfig    `yaml:"topics"`
	Store     StoreConfig     `yaml:"store"`
	Ingest    IngestConfig    `yaml:"ingest"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	Name string `yaml:"name"`
	// Profile is informational: "smartlight" or "weatherstation".
	Profile string `yaml:"profile"`
}

// BrokerConfig is one broker connection profile. The order of the
// brokers list is the failover order.
type BrokerConfig struct {
	Name               string `yaml:"name"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	TLS                bool   `yaml:"tls"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Address returns host:port for logging and status output.
func (b BrokerConfig) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// Label returns the profile name, falling back to the address.
func (b BrokerConfig) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Address()
}

// MQTTConfig contains settings shared by every broker profile.
type MQTTConfig struct {
	ClientIDPrefix string `yaml:"client_id_prefix"`
	QoS            int    `yaml:"qos"`
	// Timeouts in seconds.
	ConnectTimeout int  `yaml:"connect_timeout"`
	PublishTimeout int  `yaml:"publish_timeout"`
	KeepAlive      int  `yaml:"keep_alive"`
	AutoReconnect  bool `yaml:"auto_reconnect"`
	ReconnectDelay int  `yaml:"reconnect_delay"`
}

// TopicsConfig maps each message kind to its MQTT topic. Empty topics are
// neither subscribed nor published.
type TopicsConfig struct {
	State       string `yaml:"state"`
	Data        string `yaml:"data"`
	Command     string `yaml:"command"`
	Brightness  string `yaml:"brightness"`
	Color       string `yaml:"color"`
	Ambient     string `yaml:"ambient"`
	Motion      string `yaml:"motion"`
	Temperature string `yaml:"temperature"`
	Humidity    string `yaml:"humidity"`
	Status      string `yaml:"status"`
}

// All returns the non-empty topics in a stable order.
func (t TopicsConfig) All() []string {
	candidates := []string{
		t.State, t.Data, t.Command, t.Brightness, t.Color,
		t.Ambient, t.Motion, t.Temperature, t.Humidity, t.Status,
	}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, topic := range candidates {
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		out = append(out, topic)
	}
	return out
}

// StoreConfig contains state store settings.
type StoreConfig struct {
	MaxReadings int `yaml:"max_readings"`
}

// IngestConfig contains message ingestion settings.
type IngestConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains WebSocket live feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// InfluxDBConfig contains settings for the optional telemetry mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// AuditConfig contains settings for the optional SQLite command log.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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
// Environment variables follow the pattern: BRIDGE_SECTION_KEY
// For example: BRIDGE_MQTT_HOST, BRIDGE_API_PORT
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
// applied. Used when no config file is given.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns the smart light profile on a local broker.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Name:    "telemetry-bridge",
			Profile: "smartlight",
		},
		Brokers: []BrokerConfig{
			{Name: "local", Host: "localhost", Port: 1883},
		},
		MQTT: MQTTConfig{
			ClientIDPrefix: "telemetry_bridge",
			QoS:            1,
			ConnectTimeout: 10,
			PublishTimeout: 5,
			KeepAlive:      60,
			AutoReconnect:  true,
			ReconnectDelay: 5,
		},
		Topics: TopicsConfig{
			State:      "home/smartlight/state",
			Command:    "home/smartlight/command",
			Brightness: "home/smartlight/brightness",
			Color:      "home/smartlight/color",
			Ambient:    "home/smartlight/ambient",
			Motion:     "home/smartlight/motion",
			Status:     "home/smartlight/status",
		},
		Store: StoreConfig{
			MaxReadings: DefaultMaxReadings,
		},
		Ingest: IngestConfig{
			QueueSize: 256,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Audit: AuditConfig{
			Path:        "./data/audit.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// The BRIDGE_MQTT_* variables override the first (highest priority) broker.
func applyEnvOverrides(cfg *Config) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = append(cfg.Brokers, BrokerConfig{Name: "env"})
	}
	primary := &cfg.Brokers[0]

	// MQTT
	if v := os.Getenv("BRIDGE_MQTT_HOST"); v != "" {
		primary.Host = v
	}
	if v := os.Getenv("BRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			primary.Port = port
		}
	}
	if v := os.Getenv("BRIDGE_MQTT_USERNAME"); v != "" {
		primary.Username = v
	}
	if v := os.Getenv("BRIDGE_MQTT_PASSWORD"); v != "" {
		primary.Password = v
	}
	if v := os.Getenv("BRIDGE_MQTT_USE_TLS"); v != "" {
		primary.TLS = strings.EqualFold(v, "true") || v == "1"
	}

	// API
	if v := os.Getenv("BRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Audit
	if v := os.Getenv("BRIDGE_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	// Logging
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Broker registry validation
	if len(c.Brokers) == 0 {
		errs = append(errs, "at least one broker profile is required")
	}
	for i, b := range c.Brokers {
		if b.Host == "" {
			errs = append(errs, fmt.Sprintf("brokers[%d].host is required", i))
		}
		if b.Port < 1 || b.Port > 65535 {
			errs = append(errs, fmt.Sprintf("brokers[%d].port must be between 1 and 65535", i))
		}
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.PublishTimeout <= 0 {
		errs = append(errs, "mqtt.publish_timeout must be positive")
	}

	// Topics validation
	if len(c.Topics.All()) == 0 {
		errs = append(errs, "at least one topic is required")
	}

	// Store validation
	if c.Store.MaxReadings < 1 {
		errs = append(errs, "store.max_readings must be at least 1")
	}
	if c.Ingest.QueueSize < 1 {
		errs = append(errs, "ingest.queue_size must be at least 1")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, "audit.path is required when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetConnectTimeout returns the per-broker connect timeout.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetPublishTimeout returns the publish acknowledgement timeout.
func (c *Config) GetPublishTimeout() time.Duration {
	return time.Duration(c.MQTT.PublishTimeout) * time.Second
}

// GetReconnectDelay returns the pause before an automatic reconnect.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.MQTT.ReconnectDelay) * time.Second
}
