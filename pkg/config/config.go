package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for siteiq-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys, webhook secret) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Logging configuration
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (optional, used for webhook rate limiting)
	Redis RedisConfig `yaml:"redis"`

	// Upstream LLM provider credentials
	Providers ProviderConfig `yaml:"providers"`

	// Credit ledger settings
	Credits CreditConfig `yaml:"credits"`

	// Webhook verification
	Webhook WebhookConfig `yaml:"webhook"`

	// InternalToken authorizes service-to-service calls (crawler pipeline
	// posting profile status updates). Secret - env only.
	InternalToken string `yaml:"-" env:"INTERNAL_TOKEN"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.siteiq.ai=https://auth.siteiq.ai/.well-known/jwks.json"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string        `yaml:"user" env:"PGUSER" env-default:"siteiq"`
	Password        string        `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string        `yaml:"database" env:"PGDATABASE" env-default:"siteiq_engine"`
	MaxConnections  int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
	SSLMode         string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath  string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis connection configuration.
// Leave Host empty to disable Redis-backed features.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ProviderConfig holds API keys for the upstream LLM providers.
// All keys are secrets and come from environment variables only.
type ProviderConfig struct {
	GeminiAPIKey     string `yaml:"-" env:"GEMINI_API_KEY"`
	OpenAIAPIKey     string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	PerplexityAPIKey string `yaml:"-" env:"PERPLEXITY_API_KEY"`

	// Base URL overrides, primarily for tests and proxies.
	GeminiBaseURL     string `yaml:"gemini_base_url" env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com/v1beta"`
	OpenAIBaseURL     string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	AnthropicBaseURL  string `yaml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL" env-default:""`
	PerplexityBaseURL string `yaml:"perplexity_base_url" env:"PERPLEXITY_BASE_URL" env-default:"https://api.perplexity.ai"`
}

// CreditConfig holds credit ledger defaults.
type CreditConfig struct {
	// FreeDailyLimit is the daily credit allowance for free accounts.
	FreeDailyLimit int `yaml:"free_daily_limit" env:"CREDITS_FREE_DAILY_LIMIT" env-default:"10"`
	// PremiumDailyLimit is the daily credit allowance for premium accounts.
	PremiumDailyLimit int `yaml:"premium_daily_limit" env:"CREDITS_PREMIUM_DAILY_LIMIT" env-default:"100"`
}

// WebhookConfig holds payment webhook settings.
type WebhookConfig struct {
	// Secret is the shared HMAC-SHA256 key for signature verification.
	Secret string `yaml:"-" env:"WEBHOOK_SECRET"`
	// RateLimitPerMinute caps webhook deliveries per source IP per minute.
	// Only enforced when Redis is configured. Zero disables the limit.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"WEBHOOK_RATE_LIMIT_PER_MINUTE" env-default:"60"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, provider keys, WEBHOOK_SECRET) must come from
// environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	return cfg, nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// KeyFor returns the configured API key for a provider name.
// Returns empty string for unknown providers.
func (p *ProviderConfig) KeyFor(provider string) string {
	switch provider {
	case "gemini":
		return p.GeminiAPIKey
	case "openai":
		return p.OpenAIAPIKey
	case "anthropic":
		return p.AnthropicAPIKey
	case "perplexity":
		return p.PerplexityAPIKey
	default:
		return ""
	}
}
