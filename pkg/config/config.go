package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loomcast/edgeauth/pkg/utils"
	"github.com/spf13/viper"
)

var (
	once     sync.Once
	instance *Config

	// Defaults
	environment = "development"
	listenAddr  = ":8787"
	tokenTTL    = "24h"
	jwksTTL     = "10m"
	jwksTimeout = "5s"
	storeType   = "memory"
)

// CORS holds the origin policy configuration. AllowedOrigins is the
// platform-wide allow-list; TenantOrigins optionally narrows it per
// tenant (a tenant can never widen the platform list).
type CORS struct {
	AllowedOrigins []string            `mapstructure:"allowed_origins"` // Platform allow-list (exact origin, trailing-* prefix, or "*")
	TenantOrigins  map[string][]string `mapstructure:"tenant_origins"`  // Per-tenant narrowing lists, keyed by customer ID
	MaxAge         int                 `mapstructure:"max_age"`         // Preflight cache lifetime in seconds
}

// JWKS configures the remote key store used by resource servers.
type JWKS struct {
	TTL     time.Duration `mapstructure:"ttl"`     // Freshness window for the cached key set
	Timeout time.Duration `mapstructure:"timeout"` // HTTP timeout for discovery fetches
}

// Store configures the key-value store collaborator.
type Store struct {
	Type          string `mapstructure:"type"`           // Store type ("memory", "redis", "dynamodb")
	MaxLocalSize  int    `mapstructure:"max_local_size"` // Maximum entries for the memory store
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis address (if using redis store)
	RedisPassword string `mapstructure:"redis_password"` // Redis password (if using redis store)
	RedisDB       int    `mapstructure:"redis_db"`       // Redis database number (if using redis store)
	DynamoDBTable string `mapstructure:"dynamodb_table"` // DynamoDB table name (if using dynamodb store)
}

// RateLimit configures the fixed-window request limiter.
type RateLimit struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`  // Requests allowed per window per client
	Window  time.Duration `mapstructure:"window"` // Window duration
}

type Config struct {
	Environment    string        `mapstructure:"environment"`      // Deployment environment; "production" enables fail-closed defaults
	Listen         string        `mapstructure:"listen"`           // HTTP listen address
	Issuer         string        `mapstructure:"issuer"`           // Issuer origin, emitted in iss and used for JWKS discovery
	Audience       string        `mapstructure:"audience"`         // Expected audience of session tokens
	TokenTTL       time.Duration `mapstructure:"token_ttl"`        // Lifetime of issued session tokens
	SigningKeyJWK  string        `mapstructure:"signing_key_jwk"`  // Inline RSA private key in JWK form (issuer only)
	SigningKeyFile string        `mapstructure:"signing_key_file"` // Path to a JWK file, alternative to the inline form
	ServiceToken   string        `mapstructure:"service_token"`    // Shared credential for the private token-minting endpoint
	LogLevel       string        `mapstructure:"log_level"`        // Log level (debug, info, warn, error)

	Cors      *CORS      `mapstructure:"cors"`
	Jwks      *JWKS      `mapstructure:"jwks"`
	Store     *Store     `mapstructure:"store"`
	RateLimit *RateLimit `mapstructure:"rate_limit"`
}

// NewConfig initializes and returns the configuration. It ensures that the config is loaded only once.
func NewConfig() (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		err = instance.LoadConfig()
	})
	return instance, err
}

// ResetForTesting clears the singleton so tests can load a fresh
// configuration with different environment variables.
func ResetForTesting() {
	once = sync.Once{}
	instance = nil
	viper.Reset()
}

// LoadConfig attempts to load configuration from a file or uses default values if not found.
func (c *Config) LoadConfig() error {
	configName := utils.GetEnv("CONFIG_NAME", "config") // Configuration file name without extension
	configPath := utils.GetEnv("CONFIG_PATH", ".")      // Configuration file path, default to current directory

	// Set environment variable handling first
	viper.SetEnvPrefix("lca") // Set the environment variable prefix ex: "LCA_"
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.AddConfigPath("/etc/edgeauth/")
	viper.AddConfigPath(configPath)
	viper.SetConfigName(configName)

	// Set default values
	viper.SetDefault("environment", environment)
	viper.SetDefault("listen", listenAddr)
	viper.SetDefault("token_ttl", tokenTTL)
	viper.SetDefault("cors.max_age", 86400)
	viper.SetDefault("jwks.ttl", jwksTTL)
	viper.SetDefault("jwks.timeout", jwksTimeout)
	viper.SetDefault("store.type", storeType)
	viper.SetDefault("store.max_local_size", 100)
	viper.SetDefault("rate_limit.enabled", false)
	viper.SetDefault("rate_limit.limit", 120)
	viper.SetDefault("rate_limit.window", "1m")

	// Explicitly bind all config keys to environment variables
	// Core settings
	_ = viper.BindEnv("environment")      // LCA_ENVIRONMENT
	_ = viper.BindEnv("listen")           // LCA_LISTEN
	_ = viper.BindEnv("issuer")           // LCA_ISSUER
	_ = viper.BindEnv("audience")         // LCA_AUDIENCE
	_ = viper.BindEnv("token_ttl")        // LCA_TOKEN_TTL
	_ = viper.BindEnv("signing_key_jwk")  // LCA_SIGNING_KEY_JWK
	_ = viper.BindEnv("signing_key_file") // LCA_SIGNING_KEY_FILE
	_ = viper.BindEnv("service_token")    // LCA_SERVICE_TOKEN
	_ = viper.BindEnv("log_level")        // LCA_LOG_LEVEL

	// CORS settings
	_ = viper.BindEnv("cors.allowed_origins") // LCA_CORS_ALLOWED_ORIGINS
	_ = viper.BindEnv("cors.max_age")         // LCA_CORS_MAX_AGE

	// JWKS settings
	_ = viper.BindEnv("jwks.ttl")     // LCA_JWKS_TTL
	_ = viper.BindEnv("jwks.timeout") // LCA_JWKS_TIMEOUT

	// Store settings
	_ = viper.BindEnv("store.type")           // LCA_STORE_TYPE
	_ = viper.BindEnv("store.max_local_size") // LCA_STORE_MAX_LOCAL_SIZE
	_ = viper.BindEnv("store.redis_addr")     // LCA_STORE_REDIS_ADDR
	_ = viper.BindEnv("store.redis_password") // LCA_STORE_REDIS_PASSWORD
	_ = viper.BindEnv("store.redis_db")       // LCA_STORE_REDIS_DB
	_ = viper.BindEnv("store.dynamodb_table") // LCA_STORE_DYNAMODB_TABLE

	// Rate limit settings
	_ = viper.BindEnv("rate_limit.enabled") // LCA_RATE_LIMIT_ENABLED
	_ = viper.BindEnv("rate_limit.limit")   // LCA_RATE_LIMIT_LIMIT
	_ = viper.BindEnv("rate_limit.window")  // LCA_RATE_LIMIT_WINDOW

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; rely on defaults and environment
		} else {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return c.Validate()
}

// Validate checks the loaded configuration for inconsistencies that
// would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("issuer is required")
	}

	if c.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}

	if c.Jwks != nil && c.Jwks.TTL < 0 {
		return errors.New("jwks.ttl must not be negative")
	}

	if c.Store != nil {
		switch c.Store.Type {
		case "", "memory", "redis", "dynamodb":
		default:
			return fmt.Errorf("unsupported store type: %s", c.Store.Type)
		}
	}

	if c.RateLimit != nil && c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return errors.New("rate_limit.limit must be positive when enabled")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("rate_limit.window must be positive when enabled")
		}
	}

	return nil
}

// IsProduction reports whether the environment is exactly "production".
// Any other string, including typos, is treated as non-production; the
// CORS resolver logs when it relies on that permissive fallback.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// TenantOriginsFor returns the narrowing origin list for a tenant, or
// nil when the tenant has no specific configuration.
func (c *Config) TenantOriginsFor(tenantID string) []string {
	if c.Cors == nil || tenantID == "" {
		return nil
	}
	return c.Cors.TenantOrigins[tenantID]
}

// PlatformOrigins returns the platform-wide allow-list, nil when no
// explicit configuration exists.
func (c *Config) PlatformOrigins() []string {
	if c.Cors == nil {
		return nil
	}
	return c.Cors.AllowedOrigins
}
