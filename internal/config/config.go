package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL must be set")
	ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY must be set")
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	App           AppConfig
	Events        EventsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL           string
	RunMigrations bool
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	BaseURL          string // Base URL for generating short links
	EncryptionKey    string // base64 of a 32-byte AES key
	ShortCodeRetries int
}

// EventsConfig holds click event publishing configuration.
// An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// ObservabilityConfig holds logging and telemetry configuration
type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first if present; real environment variables
// take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var parseErrs []error
	retries, err := getEnvInt("SHORT_CODE_MAX_RETRIES", 3)
	if err != nil {
		parseErrs = append(parseErrs, err)
	}
	runMigrations, err := getEnvBool("RUN_MIGRATIONS", true)
	if err != nil {
		parseErrs = append(parseErrs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL:           getEnv("DATABASE_URL", ""),
			RunMigrations: runMigrations,
		},
		App: AppConfig{
			BaseURL:          strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
			EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
			ShortCodeRetries: retries,
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "url.clicks"),
		},
		Observability: ObservabilityConfig{
			ServiceName:  getEnv("SERVICE_NAME", "cipherlink"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
		},
	}

	if err := errors.Join(append(parseErrs, cfg.Validate())...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or out-of-range settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.App.EncryptionKey == "" {
		errs = append(errs, ErrMissingEncryptionKey)
	}
	if c.App.ShortCodeRetries < 1 {
		errs = append(errs, fmt.Errorf("SHORT_CODE_MAX_RETRIES must be positive, got %d", c.App.ShortCodeRetries))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be an integer, got %q", key, val)
	}
	return i, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a boolean, got %q", key, val)
	}
	return b, nil
}
