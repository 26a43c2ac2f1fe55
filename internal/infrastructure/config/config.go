package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Tapowatt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Backend   BackendConfig   `yaml:"backend"`
	Devices   DevicesConfig   `yaml:"devices"`
	Poller    PollerConfig    `yaml:"poller"`
	History   HistoryConfig   `yaml:"history"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig    `yaml:"cors"`
}

// TimeoutConfig contains HTTP timeout settings in seconds.
type TimeoutConfig struct {
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

// AuthConfig contains request authentication settings.
//
// When Enabled is false all routes are open. When true, requests must
// carry the static password (header or query parameter) or a bearer
// token issued by the login endpoint.
type AuthConfig struct {
	Enabled  bool      `yaml:"enabled"`
	Password string    `yaml:"password"`
	JWT      JWTConfig `yaml:"jwt"`
}

// JWTConfig contains settings for session tokens issued from the static password.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// BackendConfig contains settings for the supervised tapo-rest process
// and the HTTP client that talks to it.
type BackendConfig struct {
	// Managed indicates whether Tapowatt should start and supervise the
	// backend binary. If false, the backend is expected to be running
	// externally at APIURL.
	Managed bool `yaml:"managed"`

	// Binary is the path to the tapo-rest executable.
	Binary string `yaml:"binary"`

	// Args are extra command-line arguments passed to the binary.
	Args []string `yaml:"args"`

	// APIURL is the base URL of the backend's HTTP interface.
	// May also be supplied via the credentials file (tapo_api_url).
	APIURL string `yaml:"api_url"`

	// CredentialsFile is the path to the JSON file holding
	// {tapo_api_url, login_password}.
	CredentialsFile string `yaml:"credentials_file"`

	// Username and Password are the device-account credentials passed to
	// the backend process environment. Normally set via TAPO_USERNAME and
	// TAPO_PASSWORD rather than the YAML file.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// RequestTimeout is the per-device fetch timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// ReadyTimeout bounds the startup readiness poll, in seconds.
	ReadyTimeout int `yaml:"ready_timeout"`

	// HealthPath is the backend endpoint polled for readiness and
	// watchdog checks.
	HealthPath string `yaml:"health_path"`

	// RestartOnFailure enables automatic restart if the backend crashes.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the base restart backoff delay.
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// HealthCheckInterval is how often the watchdog probes the backend.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// BackendCredentials is the JSON credentials file shared with tapo-rest:
//
//	{ "tapo_api_url": "http://localhost:4666", "login_password": "secret" }
type BackendCredentials struct {
	TapoAPIURL    string `json:"tapo_api_url"`
	LoginPassword string `json:"login_password"`
}

// DevicesConfig points at the device descriptor file.
type DevicesConfig struct {
	File string `yaml:"file"`
}

// PollerConfig contains background collection settings.
type PollerConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval"` // seconds
}

// HistoryConfig contains SQLite reading-history settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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
// Environment variables follow the pattern: TAPOWATT_SECTION_KEY
// For example: TAPOWATT_SERVER_PORT, TAPOWATT_AUTH_PASSWORD
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

// LoadBackendCredentials reads the JSON credentials file for the backend.
//
// A missing or malformed file is a fatal configuration error: the service
// cannot log in to the backend without it.
func LoadBackendCredentials(path string) (*BackendCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds BackendCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}

	if creds.TapoAPIURL == "" {
		return nil, fmt.Errorf("credentials file %s: tapo_api_url is required", path)
	}
	if creds.LoginPassword == "" {
		return nil, fmt.Errorf("credentials file %s: login_password is required", path)
	}

	return &creds, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: TimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Backend: BackendConfig{
			Managed:             true,
			Binary:              "/usr/local/bin/tapo-rest",
			CredentialsFile:     "configs/config.json",
			RequestTimeout:      10,
			ReadyTimeout:        30,
			HealthPath:          "/health",
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
			HealthCheckInterval: 30 * time.Second,
		},
		Devices: DevicesConfig{
			File: "configs/devices.json",
		},
		Poller: PollerConfig{
			Interval: 60,
		},
		History: HistoryConfig{
			Path:          "./data/tapowatt.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tapowatt",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		WebSocket: WebSocketConfig{
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
// Environment variables follow the pattern: TAPOWATT_SECTION_KEY.
// TAPO_USERNAME and TAPO_PASSWORD keep their conventional names because the
// backend process reads the same variables.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("TAPOWATT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TAPOWATT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Auth
	if v := os.Getenv("TAPOWATT_AUTH_PASSWORD"); v != "" {
		cfg.Auth.Password = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("TAPOWATT_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}

	// Backend
	if v := os.Getenv("TAPOWATT_BACKEND_API_URL"); v != "" {
		cfg.Backend.APIURL = v
	}
	if v := os.Getenv("TAPO_USERNAME"); v != "" {
		cfg.Backend.Username = v
	}
	if v := os.Getenv("TAPO_PASSWORD"); v != "" {
		cfg.Backend.Password = v
	}

	// Devices
	if v := os.Getenv("TAPOWATT_DEVICES_FILE"); v != "" {
		cfg.Devices.File = v
	}

	// History
	if v := os.Getenv("TAPOWATT_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// MQTT
	if v := os.Getenv("TAPOWATT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TAPOWATT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TAPOWATT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TAPOWATT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Devices.File == "" {
		errs = append(errs, "devices.file is required")
	}

	if c.Backend.Managed && c.Backend.Binary == "" {
		errs = append(errs, "backend.binary is required when backend.managed is true")
	}
	if c.Backend.CredentialsFile == "" && c.Backend.APIURL == "" {
		errs = append(errs, "backend.credentials_file or backend.api_url is required")
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, "backend.request_timeout must be positive")
	}
	if c.Backend.ReadyTimeout <= 0 {
		errs = append(errs, "backend.ready_timeout must be positive")
	}

	// Weak secrets would allow forged session tokens, so a short secret
	// is rejected outright rather than warned about.
	const minJWTSecretLength = 32
	if c.Auth.Enabled {
		if c.Auth.Password == "" {
			errs = append(errs, "auth.password is required when auth is enabled (set TAPOWATT_AUTH_PASSWORD)")
		}
		if c.Auth.JWT.Secret == "" {
			errs = append(errs, "auth.jwt.secret is required when auth is enabled (set TAPOWATT_JWT_SECRET)")
		} else if len(c.Auth.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "auth.jwt.secret must be at least 32 characters")
		}
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		errs = append(errs, "poller.interval must be positive when poller is enabled")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *ServerConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the backend per-request timeout as a Duration.
func (c *BackendConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetReadyTimeout returns the backend readiness timeout as a Duration.
func (c *BackendConfig) GetReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeout) * time.Second
}

// GetRestartDelay returns the backend restart delay as a Duration.
func (c *BackendConfig) GetRestartDelay() time.Duration {
	return time.Duration(c.RestartDelaySeconds) * time.Second
}

// GetRetention returns the history retention window as a Duration.
func (c *HistoryConfig) GetRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
