package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Temperature units accepted by bridge.temperature_unit.
const (
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
)

// Dead-device policies accepted by bridge.dead_device_policy.
const (
	// DeadDeviceRetain keeps serving the last known value for unreachable devices.
	DeadDeviceRetain = "retain"

	// DeadDeviceFail surfaces a communication failure on reads of unreachable devices.
	DeadDeviceFail = "fail"
)

// Config is the root configuration structure for the bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	HomeKit    HomeKitConfig    `yaml:"homekit"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig contains the home-automation controller connection settings.
type ControllerConfig struct {
	// URL is the controller base URL, e.g. "http://192.168.1.10".
	URL string `yaml:"url"`

	// Username for HTTP basic authentication.
	Username string `yaml:"username"`

	// Password for HTTP basic authentication.
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`

	// Timeout is the per-request timeout in seconds.
	// Default: 10
	Timeout int `yaml:"timeout"`
}

// String returns a string representation with password masked.
func (c ControllerConfig) String() string {
	password := ""
	if c.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("ControllerConfig{URL:%q, Username:%q, Password:%s, Timeout:%d}",
		c.URL, c.Username, password, c.Timeout)
}

// BridgeConfig contains synchronisation and command behaviour.
type BridgeConfig struct {
	// ID identifies this bridge instance in MQTT topics and health messages.
	ID string `yaml:"id"`

	// PollInterval is the delay between reconciliation fetches (seconds).
	// Default: 5
	PollInterval int `yaml:"poll_interval"`

	// BackoffSeconds is the fixed cool-down after a failed fetch.
	// Default: 30
	BackoffSeconds int `yaml:"backoff"`

	// TemperatureUnit is the unit the controller reports temperatures in: "C" or "F".
	TemperatureUnit string `yaml:"temperature_unit"`

	// DeadDevicePolicy is "retain" or "fail".
	DeadDevicePolicy string `yaml:"dead_device_policy"`

	// ThermostatTimeout is how long a manual zone setpoint holds (seconds).
	// Default: 7200
	ThermostatTimeout int `yaml:"thermostat_timeout"`

	// DoorLockTimeout is how long to wait for a lock to confirm a command (seconds).
	// 0 disables the check.
	DoorLockTimeout int `yaml:"door_lock_timeout"`

	// SecuritySystem exposes the controller alarm as a security-system service.
	SecuritySystem bool `yaml:"security_system"`

	// SwitchGlobals is a comma-separated list of global variables exposed as switches.
	SwitchGlobals string `yaml:"switch_globals"`

	// DimmerGlobals is a comma-separated list of global variables exposed as dimmers.
	DimmerGlobals string `yaml:"dimmer_globals"`

	// HeatingZones and ClimateZones list zone panel ids exposed as thermostats.
	HeatingZones []int `yaml:"heating_zones"`
	ClimateZones []int `yaml:"climate_zones"`

	// DoorbellID is the device whose value triggers the doorbell service. 0 disables it.
	DoorbellID int `yaml:"doorbell_id"`

	// Scenes exposes controller scenes as momentary switches.
	Scenes bool `yaml:"scenes"`

	// Devices holds manual capability overrides keyed by device id.
	Devices []DeviceOverride `yaml:"devices"`
}

// DeviceOverride forces the capability used for one device.
type DeviceOverride struct {
	ID        int    `yaml:"id"`
	DisplayAs string `yaml:"display_as"`
}

// HomeKitConfig contains accessory server settings.
type HomeKitConfig struct {
	Name        string `yaml:"name"`
	Pin         string `yaml:"pin"`
	StoragePath string `yaml:"storage_path"`
	Port        int    `yaml:"port"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds characteristic history and the command log.
	// Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
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
}

// APIConfig contains the diagnostics HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HCBRIDGE_SECTION_KEY
// For example: HCBRIDGE_CONTROLLER_URL, HCBRIDGE_CONTROLLER_PASSWORD
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Timeout: 10,
		},
		Bridge: BridgeConfig{
			ID:                "hcbridge-01",
			PollInterval:      5,
			BackoffSeconds:    30,
			TemperatureUnit:   UnitCelsius,
			DeadDevicePolicy:  DeadDeviceRetain,
			ThermostatTimeout: 7200,
			DoorLockTimeout:   15,
		},
		HomeKit: HomeKitConfig{
			Name:        "Home Center Bridge",
			Pin:         "00102003",
			StoragePath: "./data/hap",
		},
		Database: DatabaseConfig{
			Path:          "./data/hcbridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 14,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hcbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HCBRIDGE_CONTROLLER_URL"); v != "" {
		cfg.Controller.URL = v
	}
	if v := os.Getenv("HCBRIDGE_CONTROLLER_USERNAME"); v != "" {
		cfg.Controller.Username = v
	}
	if v := os.Getenv("HCBRIDGE_CONTROLLER_PASSWORD"); v != "" {
		cfg.Controller.Password = v
	}
	if v := os.Getenv("HCBRIDGE_HOMEKIT_PIN"); v != "" {
		cfg.HomeKit.Pin = v
	}
	if v := os.Getenv("HCBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HCBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("HCBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("HCBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateController()...)
	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateHomeKit()...)
	errs = append(errs, c.validateLogging()...)

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateController() []string {
	var errs []string
	if c.Controller.URL == "" {
		errs = append(errs, "controller.url is required")
	} else if !strings.HasPrefix(c.Controller.URL, "http://") && !strings.HasPrefix(c.Controller.URL, "https://") {
		errs = append(errs, fmt.Sprintf("controller.url %q must start with http:// or https://", c.Controller.URL))
	}
	if c.Controller.Timeout < 1 {
		errs = append(errs, "controller.timeout must be at least 1 second")
	}
	return errs
}

func (c *Config) validateBridge() []string {
	var errs []string
	b := c.Bridge

	if b.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if b.PollInterval < 1 {
		errs = append(errs, "bridge.poll_interval must be at least 1 second")
	}
	if b.BackoffSeconds < 1 {
		errs = append(errs, "bridge.backoff must be at least 1 second")
	}
	if b.TemperatureUnit != UnitCelsius && b.TemperatureUnit != UnitFahrenheit {
		errs = append(errs, fmt.Sprintf("bridge.temperature_unit %q is invalid (use C or F)", b.TemperatureUnit))
	}
	if b.DeadDevicePolicy != DeadDeviceRetain && b.DeadDevicePolicy != DeadDeviceFail {
		errs = append(errs, fmt.Sprintf("bridge.dead_device_policy %q is invalid (use retain or fail)", b.DeadDevicePolicy))
	}
	if b.ThermostatTimeout < 0 {
		errs = append(errs, "bridge.thermostat_timeout must not be negative")
	}
	if b.DoorLockTimeout < 0 {
		errs = append(errs, "bridge.door_lock_timeout must not be negative")
	}

	seen := make(map[int]bool)
	for i, d := range b.Devices {
		if d.ID <= 0 {
			errs = append(errs, fmt.Sprintf("bridge.devices[%d].id must be positive", i))
			continue
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("bridge.devices[%d].id %d is duplicate", i, d.ID))
		}
		seen[d.ID] = true
		if d.DisplayAs == "" {
			errs = append(errs, fmt.Sprintf("bridge.devices[%d].display_as is required", i))
		}
	}

	for _, name := range append(b.SwitchGlobalNames(), b.DimmerGlobalNames()...) {
		if strings.Contains(name, "-") {
			errs = append(errs, fmt.Sprintf("global variable %q must not contain '-'", name))
		}
	}

	return errs
}

func (c *Config) validateHomeKit() []string {
	var errs []string
	pin := strings.ReplaceAll(c.HomeKit.Pin, "-", "")
	if len(pin) != 8 {
		errs = append(errs, "homekit.pin must have 8 digits")
	} else if _, err := strconv.Atoi(pin); err != nil {
		errs = append(errs, "homekit.pin must be numeric")
	}
	if c.HomeKit.StoragePath == "" {
		errs = append(errs, "homekit.storage_path is required")
	}
	return errs
}

func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	return errs
}

// GetPollInterval returns the reconciliation interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Bridge.PollInterval) * time.Second
}

// GetBackoff returns the fetch failure cool-down as a Duration.
func (c *Config) GetBackoff() time.Duration {
	return time.Duration(c.Bridge.BackoffSeconds) * time.Second
}

// GetControllerTimeout returns the controller request timeout as a Duration.
func (c *Config) GetControllerTimeout() time.Duration {
	return time.Duration(c.Controller.Timeout) * time.Second
}

// GetThermostatTimeout returns how long a manual zone setpoint holds.
func (c *Config) GetThermostatTimeout() time.Duration {
	return time.Duration(c.Bridge.ThermostatTimeout) * time.Second
}

// GetDoorLockTimeout returns the lock confirmation window (0 when disabled).
func (c *Config) GetDoorLockTimeout() time.Duration {
	return time.Duration(c.Bridge.DoorLockTimeout) * time.Second
}

// GetHistoryRetention returns how long history rows are kept (0 keeps all).
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

// Overrides returns the manual capability table keyed by device id.
func (b BridgeConfig) Overrides() map[int]string {
	out := make(map[int]string, len(b.Devices))
	for _, d := range b.Devices {
		out[d.ID] = strings.ToLower(strings.TrimSpace(d.DisplayAs))
	}
	return out
}

// SwitchGlobalNames splits SwitchGlobals into trimmed, non-empty names.
func (b BridgeConfig) SwitchGlobalNames() []string {
	return splitList(b.SwitchGlobals)
}

// DimmerGlobalNames splits DimmerGlobals into trimmed, non-empty names.
func (b BridgeConfig) DimmerGlobalNames() []string {
	return splitList(b.DimmerGlobals)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
