package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-fcserver/internal/jsonvalue"
)

// Config is the root configuration structure for the lighting server.
//
// The first four fields form the public server configuration that is echoed
// back to clients by server_info. The remaining sections configure the
// process around it and are never sent over the wire.
type Config struct {
	Listen  ListenAddress  `yaml:"listen"`
	Verbose bool           `yaml:"verbose"`
	Color   any            `yaml:"color"`
	Devices []DeviceConfig `yaml:"devices"`

	// BroadcastInterval is the service loop period in milliseconds.
	BroadcastInterval int `yaml:"broadcast_interval"`

	Logging    LoggingConfig   `yaml:"logging"`
	HTTP       HTTPConfig      `yaml:"http"`
	WebSocket  WebSocketConfig `yaml:"websocket"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig  `yaml:"influxdb"`
	Database   DatabaseConfig  `yaml:"database"`
	Discovery  DiscoveryConfig `yaml:"discovery"`
	Capture    CaptureConfig   `yaml:"capture"`
	Security   SecurityConfig  `yaml:"security"`
	Transports TransportConfig `yaml:"transports"`
}

// DeviceConfig is one entry of the devices list.
//
// Type and Serial stay loosely typed: a non-string value is legal in the
// file and simply never matches a device.
type DeviceConfig struct {
	Type        any   `yaml:"type,omitempty" json:"type,omitempty"`
	Serial      any   `yaml:"serial,omitempty" json:"serial,omitempty"`
	Map         any   `yaml:"map,omitempty" json:"map,omitempty"`
	LED         *bool `yaml:"led,omitempty" json:"led,omitempty"`
	Dither      *bool `yaml:"dither,omitempty" json:"dither,omitempty"`
	Interpolate *bool `yaml:"interpolate,omitempty" json:"interpolate,omitempty"`
}

// ListenAddress is written as a two element list: [host, port].
// A null host listens on all interfaces.
type ListenAddress struct {
	Host string
	Port int
}

// UnmarshalYAML decodes [host, port].
func (l *ListenAddress) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 2 {
		return errors.New("listen must be a list of [host, port]")
	}

	hostNode, portNode := node.Content[0], node.Content[1]
	switch {
	case hostNode.Tag == "!!null":
		l.Host = ""
	case hostNode.Kind == yaml.ScalarNode:
		l.Host = hostNode.Value
	default:
		return errors.New("listen host must be a string or null")
	}

	port, err := strconv.Atoi(portNode.Value)
	if err != nil || portNode.Kind != yaml.ScalarNode {
		return fmt.Errorf("listen port must be an integer: %q", portNode.Value)
	}
	l.Port = port
	return nil
}

// Value returns the [host, port] form used in server_info replies.
func (l ListenAddress) Value() []any {
	var host any
	if l.Host != "" {
		host = l.Host
	}
	return []any{host, l.Port}
}

// Addr returns the address in host:port form for net.Listen.
func (l ListenAddress) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HTTPConfig contains settings for the built-in document server.
type HTTPConfig struct {
	// WriteChunkSize bounds each body write in bytes.
	WriteChunkSize int `yaml:"write_chunk_size"`
	// WriteTimeout is in seconds; a stalled client is dropped after it.
	WriteTimeout int `yaml:"write_timeout"`
}

// WebSocketConfig contains WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
	// StatsInterval is how often device counters are written, in seconds.
	StatsInterval int `yaml:"stats_interval"`
}

// DatabaseConfig contains SQLite settings for device session history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DiscoveryConfig controls mDNS advertisement of the OPC port.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// CaptureConfig controls recording of received pixel messages.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// WebSocketSecret enables HS256 token checks on WebSocket upgrades when set.
	WebSocketSecret string `yaml:"websocket_secret"`
}

// TransportConfig lists the hardware ports the server watches.
type TransportConfig struct {
	// ScanInterval is the hotplug poll period in milliseconds. 0 disables polling.
	ScanInterval int                `yaml:"scan_interval"`
	Serial       []SerialPortConfig `yaml:"serial"`
	Null         []NullDeviceConfig `yaml:"null"`
}

// SerialPortConfig declares one serial port and the identity of the device
// behind it. Empty identity fields are filled from the host's port list.
type SerialPortConfig struct {
	Path         string `yaml:"path"`
	BaudRate     int    `yaml:"baud_rate"`
	VendorID     string `yaml:"vendor_id"`
	ProductID    string `yaml:"product_id"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	Serial       string `yaml:"serial"`
}

// NullDeviceConfig declares a device whose writes are discarded.
type NullDeviceConfig struct {
	VendorID     string `yaml:"vendor_id"`
	ProductID    string `yaml:"product_id"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	Serial       string `yaml:"serial"`
	BCDDevice    string `yaml:"bcd_device"`
}

// UnmarshalYAML rejects a devices key that is not a list before decoding.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "devices" && node.Content[i+1].Kind != yaml.SequenceNode {
				return errors.New("the required 'devices' configuration key must be an array")
			}
		}
	}
	return node.Decode((*plain)(c))
}

// Load reads configuration from a YAML (or JSON) file and applies
// environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FCSERVER_SECTION_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.Devices = nil

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Color = jsonvalue.Normalize(cfg.Color)
	for i := range cfg.Devices {
		cfg.Devices[i].Map = jsonvalue.Normalize(cfg.Devices[i].Map)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration used when no file is given:
// listen on 127.0.0.1:7890 with a single Fadecandy mapped from channel 0.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Listen:  ListenAddress{Host: "127.0.0.1", Port: 7890},
		Verbose: true,
		Color: map[string]any{
			"gamma":      2.5,
			"whitepoint": []any{1.0, 1.0, 1.0},
		},
		Devices: []DeviceConfig{
			{
				Type: "fadecandy",
				Map:  []any{[]any{0, 0, 0, 512}},
			},
		},
		BroadcastInterval: 100,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		HTTP: HTTPConfig{
			WriteChunkSize: 4096,
			WriteTimeout:   10,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 1 << 20,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fcserver",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
			StatsInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/fcserver.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Discovery: DiscoveryConfig{
			Instance: "fcserver",
		},
		Capture: CaptureConfig{
			Path: "./data/capture.cbor",
		},
		Transports: TransportConfig{
			ScanInterval: 2000,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FCSERVER_LISTEN_HOST"); v != "" {
		cfg.Listen.Host = v
	}
	if v := os.Getenv("FCSERVER_LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Listen.Port = port
		}
	}
	if v := os.Getenv("FCSERVER_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}

	// MQTT
	if v := os.Getenv("FCSERVER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FCSERVER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FCSERVER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FCSERVER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("FCSERVER_WS_SECRET"); v != "" {
		cfg.Security.WebSocketSecret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Devices == nil {
		errs = append(errs, "the required 'devices' configuration key must be an array")
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, "listen port must be between 1 and 65535")
	}

	if c.BroadcastInterval <= 0 {
		errs = append(errs, "broadcast_interval must be positive")
	}

	if c.HTTP.WriteChunkSize <= 0 {
		errs = append(errs, "http.write_chunk_size must be positive")
	}

	if c.HTTP.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}

	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}

	if c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.Capture.Enabled && c.Capture.Path == "" {
		errs = append(errs, "capture.path is required when capture is enabled")
	}

	const minSecretLength = 32
	if s := c.Security.WebSocketSecret; s != "" && len(s) < minSecretLength {
		errs = append(errs, "security.websocket_secret must be at least 32 characters")
	}

	for i, sp := range c.Transports.Serial {
		if sp.Path == "" {
			errs = append(errs, fmt.Sprintf("transports.serial[%d].path is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Public returns the part of the configuration that server_info reports.
// Secrets and process settings are never included.
func (c *Config) Public() map[string]any {
	devices := make([]any, 0, len(c.Devices))
	for _, d := range c.Devices {
		entry := map[string]any{}
		if d.Type != nil {
			entry["type"] = d.Type
		}
		if d.Serial != nil {
			entry["serial"] = d.Serial
		}
		if d.Map != nil {
			entry["map"] = jsonvalue.Normalize(d.Map)
		}
		if d.LED != nil {
			entry["led"] = *d.LED
		}
		if d.Dither != nil {
			entry["dither"] = *d.Dither
		}
		if d.Interpolate != nil {
			entry["interpolate"] = *d.Interpolate
		}
		devices = append(devices, entry)
	}

	return map[string]any{
		"listen":  c.Listen.Value(),
		"verbose": c.Verbose,
		"color":   jsonvalue.Normalize(c.Color),
		"devices": devices,
	}
}

// GetBroadcastInterval returns the service loop period as a Duration.
func (c *Config) GetBroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastInterval) * time.Millisecond
}

// GetHTTPWriteTimeout returns the document write timeout as a Duration.
func (c *Config) GetHTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTP.WriteTimeout) * time.Second
}

// GetPingInterval returns the WebSocket keepalive period as a Duration.
func (w WebSocketConfig) GetPingInterval() time.Duration {
	return time.Duration(w.PingInterval) * time.Second
}

// GetPongTimeout returns how long a pong may lag a ping.
func (w WebSocketConfig) GetPongTimeout() time.Duration {
	return time.Duration(w.PongTimeout) * time.Second
}

// GetScanInterval returns the transport poll period, or 0 when disabled.
func (t TransportConfig) GetScanInterval() time.Duration {
	return time.Duration(t.ScanInterval) * time.Millisecond
}
