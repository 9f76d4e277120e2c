package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Authentication modes accepted in security.auth_mode
const (
	AuthModeNone             = "none"
	AuthModeTolerantNone     = "tolerant_none"
	AuthModeSharedSecretHash = "shared_secret_hash"
	AuthModeKeyedHMAC        = "keyed_hmac"
	AuthModeTransportTLS     = "transport_tls"
)

// Keyed digest constructions accepted in security.keyed_digest
const (
	KeyedDigestPrefixSHA256 = "prefix_sha256"
	KeyedDigestHMACSHA256   = "hmac_sha256"
)

// Dispatch strategies accepted in dispatch.strategy
const (
	StrategyPerConnection = "per_connection"
	StrategyPool          = "pool"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Corpus    CorpusConfig    `yaml:"corpus" envconfig:"CORPUS"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Dispatch  DispatchConfig  `yaml:"dispatch" envconfig:"DISPATCH"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains the query listener configuration
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`

	// ReadTimeout is the per-connection deadline for receiving the request
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`

	// WriteTimeout bounds writing the verdict back to the client
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`

	// MaxRequestBytes is the size of the single bounded read per connection
	MaxRequestBytes int `yaml:"max_request_bytes" envconfig:"MAX_REQUEST_BYTES"`

	// ShutdownTimeout bounds how long in-flight connections are awaited on shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// CorpusConfig contains the backing text file configuration
type CorpusConfig struct {
	Path          string `yaml:"corpus_path" envconfig:"CORPUS_PATH"`
	RereadOnQuery bool   `yaml:"reread_on_query" envconfig:"REREAD_ON_QUERY"` // true: live, false: snapshot
}

// SecurityConfig contains authentication and transport security configuration
type SecurityConfig struct {
	AuthMode     string `yaml:"auth_mode" envconfig:"AUTH_MODE"`
	SharedSecret string `yaml:"shared_secret" envconfig:"SHARED_SECRET"`

	// HashAlgorithm selects the digest for shared_secret_hash: sha256 or blake3
	HashAlgorithm string `yaml:"hash_algorithm" envconfig:"HASH_ALGORITHM"`

	// HMACIterations is the PBKDF2 round count deriving the keyed_hmac key
	HMACIterations int `yaml:"hmac_iterations" envconfig:"HMAC_ITERATIONS"`

	// KeyedDigest selects the keyed_hmac digest: prefix_sha256 or hmac_sha256
	KeyedDigest string `yaml:"keyed_digest" envconfig:"KEYED_DIGEST"`

	CertFile         string        `yaml:"cert_file" envconfig:"CERT_FILE"`
	KeyFile          string        `yaml:"key_file" envconfig:"KEY_FILE"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" envconfig:"HANDSHAKE_TIMEOUT"`
}

// DispatchConfig selects how accepted connections are scheduled
type DispatchConfig struct {
	Strategy string `yaml:"strategy" envconfig:"STRATEGY"`

	// MaxConnections caps concurrent handlers for per_connection (0 = unbounded)
	MaxConnections int `yaml:"max_connections" envconfig:"MAX_CONNECTIONS"`

	// PoolSize and QueueSize configure the pool strategy
	PoolSize  int `yaml:"pool_size" envconfig:"POOL_SIZE"`
	QueueSize int `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// RateLimitConfig contains per-remote-address rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	BurstSize         int  `yaml:"burst_size" envconfig:"BURST_SIZE"`
}

// SetDefaults fills zero values with usable defaults
func (c *RateLimitConfig) SetDefaults() {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 600
	}
	if c.BurstSize <= 0 {
		c.BurstSize = 50
	}
}

// AdminConfig contains the optional admin HTTP API configuration
type AdminConfig struct {
	Port           int      `yaml:"port" envconfig:"ADMIN_PORT"`   // 0 disables the admin API
	Token          string   `yaml:"token" envconfig:"ADMIN_TOKEN"` // generated at startup if empty
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Missing file: defaults and env vars only
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process("LINESEARCH", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with the reference server's defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            44445,
			ReadTimeout:     50 * time.Millisecond,
			WriteTimeout:    time.Second,
			MaxRequestBytes: 1024,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			AuthMode:         AuthModeNone,
			HashAlgorithm:    "sha256",
			HMACIterations:   100000,
			KeyedDigest:      KeyedDigestPrefixSHA256,
			HandshakeTimeout: 2 * time.Second,
		},
		Dispatch: DispatchConfig{
			Strategy:  StrategyPerConnection,
			PoolSize:  64,
			QueueSize: 128,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			BurstSize:         50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if c.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive")
	}

	if c.Corpus.Path == "" {
		return fmt.Errorf("corpus_path is required")
	}

	switch c.Security.AuthMode {
	case AuthModeNone:
	case AuthModeTolerantNone, AuthModeSharedSecretHash, AuthModeKeyedHMAC:
		if c.Security.SharedSecret == "" {
			return fmt.Errorf("shared_secret is required for auth mode %s", c.Security.AuthMode)
		}
	case AuthModeTransportTLS:
		if c.Security.CertFile == "" || c.Security.KeyFile == "" {
			return fmt.Errorf("cert_file and key_file are required for auth mode %s", c.Security.AuthMode)
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be none, tolerant_none, shared_secret_hash, keyed_hmac, or transport_tls)", c.Security.AuthMode)
	}

	if c.Security.HashAlgorithm != "sha256" && c.Security.HashAlgorithm != "blake3" {
		return fmt.Errorf("invalid hash algorithm: %s (must be sha256 or blake3)", c.Security.HashAlgorithm)
	}

	if c.Security.AuthMode == AuthModeKeyedHMAC {
		if c.Security.HMACIterations < 1 {
			return fmt.Errorf("hmac_iterations must be positive")
		}
		if c.Security.KeyedDigest != KeyedDigestPrefixSHA256 && c.Security.KeyedDigest != KeyedDigestHMACSHA256 {
			return fmt.Errorf("invalid keyed digest: %s (must be prefix_sha256 or hmac_sha256)", c.Security.KeyedDigest)
		}
	}

	switch c.Dispatch.Strategy {
	case StrategyPerConnection:
		if c.Dispatch.MaxConnections < 0 {
			return fmt.Errorf("max_connections must not be negative")
		}
	case StrategyPool:
		if c.Dispatch.PoolSize < 1 {
			return fmt.Errorf("pool_size must be positive for the pool strategy")
		}
		if c.Dispatch.QueueSize < 0 {
			return fmt.Errorf("queue_size must not be negative")
		}
	default:
		return fmt.Errorf("invalid dispatch strategy: %s (must be per_connection or pool)", c.Dispatch.Strategy)
	}

	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	if c.Admin.Port != 0 && c.Admin.Port == c.Server.Port {
		return fmt.Errorf("admin port must differ from server port")
	}

	return nil
}

// Address returns the query listener address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminAddress returns the admin API address
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Admin.Port)
}

// TLSEnabled reports whether connections are wrapped in TLS
func (c *SecurityConfig) TLSEnabled() bool {
	return c.AuthMode == AuthModeTransportTLS
}
