// Package config provides environment configuration for the chat client and
// the reference conversation store.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment ("development" enables placeholder identities)
	Env string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Message log: "memory" or "nats"
	MessageLog string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	TitleModel      string

	// Seed data
	ClientsFile string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Client settings
	APIURL                  string
	Token                   string
	DevUserID               string
	RequestTimeout          time.Duration
	RefreshTitleAfterUpload bool

	// Logging
	LogLevel string
	LogFile  string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Env: getEnv("ENV", "production"),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		MessageLog: getEnv("MESSAGE_LOG", "memory"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		TitleModel:      getEnv("TITLE_MODEL", ""),

		ClientsFile: getEnv("CLIENTS_FILE", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Client
		APIURL:                  getEnv("QUORRA_API_URL", "http://localhost:8080"),
		Token:                   getEnv("QUORRA_TOKEN", ""),
		DevUserID:               getEnv("DEV_USER_ID", ""),
		RequestTimeout:          getDurationEnv("QUORRA_REQUEST_TIMEOUT", 2*time.Minute),
		RefreshTitleAfterUpload: getBoolEnv("REFRESH_TITLE_AFTER_UPLOAD", false),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// DefaultJWTSecret is the signing secret used when JWT_SECRET is unset.
const DefaultJWTSecret = "development-secret-change-in-production"

// Validate checks the server settings. The default signing secret is only
// accepted in development.
func (c *Config) Validate() error {
	var errs []error
	switch c.MessageLog {
	case "memory", "nats":
	default:
		errs = append(errs, fmt.Errorf("MESSAGE_LOG must be memory or nats, got %q", c.MessageLog))
	}
	if c.JWTSecret == "" || (c.JWTSecret == DefaultJWTSecret && !c.Development()) {
		errs = append(errs, errors.New("JWT_SECRET must be set outside development"))
	}
	if c.RateLimitRequests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must not be negative"))
	}
	return errors.Join(errs...)
}

// Development reports whether placeholder identities are allowed.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
