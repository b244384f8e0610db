package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for EMQX Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Security SecurityConfig `yaml:"security"`
	Push     PushConfig     `yaml:"push"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Keepalive int    `yaml:"keepalive"`
	ClientID  string `yaml:"client_id"`
	TLS       bool   `yaml:"tls"`
	// CAFile is an optional PEM bundle to trust instead of the system
	// trust store. Only used when TLS is enabled.
	CAFile string `yaml:"ca_file"`
}

// MQTTReconnectConfig bounds the initial connect retry loop and the
// reconnect backoff after an unexpected drop.
type MQTTReconnectConfig struct {
	// MaxAttempts is the number of initial connection attempts before
	// the client gives up. Total startup bound is MaxAttempts * RetryDelay.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the fixed delay between initial connection attempts (seconds).
	RetryDelay int `yaml:"retry_delay"`

	// MaxDelay caps the auto-reconnect backoff after a drop (seconds).
	MaxDelay int `yaml:"max_delay"`
}

// WebhookConfig contains settings for the EMQX webhook ingress.
type WebhookConfig struct {
	// Secret is the shared secret EMQX sends in the X-Webhook-Token header.
	// Compared byte-for-byte before the body is parsed.
	Secret string `yaml:"secret"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings for the API listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// SecurityConfig contains credential issuance settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// NodeCookie is the EMQX Erlang node cookie, only used when
	// rendering broker configuration.
	NodeCookie string `yaml:"node_cookie"`
}

// JWTConfig contains settings for the MQTT credential issuer.
// The same signing key is shared with the broker's JWT authentication
// plugin, which is how broker-side ACL enforcement trusts these tokens.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the user access token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh token lifetime in minutes.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`
}

// PushConfig selects the push notification sink.
type PushConfig struct {
	// Provider is "none" or "fcm".
	Provider string `yaml:"provider"`

	// CredentialsFile is the Firebase service account JSON (fcm only).
	CredentialsFile string `yaml:"credentials_file"`
}

// InfluxDBConfig contains the optional device event history sink settings.
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
// Environment variables follow the pattern: EMQX_BRIDGE_SECTION_KEY
// For example: EMQX_BRIDGE_MQTT_HOST, EMQX_BRIDGE_JWT_SECRET
//
// Validation is eager: a missing webhook secret or JWT secret fails here,
// at startup, rather than on first use.
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
// Port 8883 and TLS-on match the EMQX deployment this bridge ships against.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "emqx-broker",
				Port:      8883,
				Keepalive: 60,
				ClientID:  "emqx-bridge",
				TLS:       true,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				MaxAttempts: 10,
				RetryDelay:  3,
				MaxDelay:    60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/emqx-bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  60,
				RefreshTokenTTL: 20160,
			},
		},
		Push: PushConfig{
			Provider: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EMQX_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMQX_BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EMQX_BRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("EMQX_BRIDGE_MQTT_CA_FILE"); v != "" {
		cfg.MQTT.Broker.CAFile = v
	}

	if v := os.Getenv("EMQX_BRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("EMQX_BRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Secret material should always come from the environment in production.
	if v := os.Getenv("EMQX_BRIDGE_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("EMQX_BRIDGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("EMQX_BRIDGE_NODE_COOKIE"); v != "" {
		cfg.Security.NodeCookie = v
	}

	if v := os.Getenv("EMQX_BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// minJWTSecretLength is the minimum accepted signing key length.
// The broker honors ACL claims solely on signature validity, so a weak
// key lets an attacker mint arbitrary topic grants.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "mqtt.reconnect.max_attempts must be at least 1")
	}
	if c.MQTT.Reconnect.RetryDelay < 0 {
		errs = append(errs, "mqtt.reconnect.retry_delay must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Webhook.Secret == "" {
		errs = append(errs, "webhook.secret is required (set EMQX_BRIDGE_WEBHOOK_SECRET environment variable)")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set EMQX_BRIDGE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	switch c.Push.Provider {
	case "", "none":
	case "fcm":
		if c.Push.CredentialsFile == "" {
			errs = append(errs, "push.credentials_file is required when push.provider is fcm")
		}
	default:
		errs = append(errs, fmt.Sprintf("push.provider %q is not supported (none, fcm)", c.Push.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetKeepalive returns the MQTT keepalive interval as a Duration.
func (c *Config) GetKeepalive() time.Duration {
	return time.Duration(c.MQTT.Broker.Keepalive) * time.Second
}

// GetRetryDelay returns the initial-connect retry delay as a Duration.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.RetryDelay) * time.Second
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
