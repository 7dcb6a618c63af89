package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"minebot/database"
)

const (
	minFlushInterval = 60 * time.Second
	maxFlushInterval = 300 * time.Second
)

// Config holds all application configuration
type Config struct {
	// Discord configuration
	DiscordToken    string
	OrgMemberRoleID string // Members with this role are counted as org members

	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables publishing

	// Tracking configuration
	MinParticipation     time.Duration // Shortest stay that earns credit
	FlushInterval        time.Duration // How often open intervals are snapshotted
	DurabilityMaxRetries int

	// Display
	CurrencyLabel string

	// Logging
	LogLevel string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
				instance.DiscordToken = "test-token"
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// NATSEnabled reports whether domain events go to NATS
func (c *Config) NATSEnabled() bool {
	return strings.TrimSpace(c.NATSServers) != ""
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		OrgMemberRoleID: os.Getenv("ORG_MEMBER_ROLE_ID"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		NATSServers: os.Getenv("NATS_SERVERS"),

		MinParticipation:     30 * time.Second,
		FlushInterval:        2 * time.Minute,
		DurabilityMaxRetries: 3,

		CurrencyLabel: getEnvWithDefault("CURRENCY_LABEL", "aUEC"),
		LogLevel:      getEnvWithDefault("LOG_LEVEL", "info"),

		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "minebot"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "localhost:4317"),
		OTelExportIntervalMillis: 30000,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if v := os.Getenv("MIN_PARTICIPATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid MIN_PARTICIPATION %q", v)
		}
		config.MinParticipation = d
	}
	if v := os.Getenv("FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FLUSH_INTERVAL %q", v)
		}
		config.FlushInterval = clampFlushInterval(d)
	}
	if v := os.Getenv("DURABILITY_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			config.DurabilityMaxRetries = parsed
		}
	}
	if v := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			config.OTelExportIntervalMillis = parsed
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DiscordToken == "" {
			return nil, fmt.Errorf("DISCORD_TOKEN is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}

// clampFlushInterval keeps the snapshot cadence between one and five minutes
func clampFlushInterval(d time.Duration) time.Duration {
	if d < minFlushInterval {
		return minFlushInterval
	}
	if d > maxFlushInterval {
		return maxFlushInterval
	}
	return d
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:              "test",
		MinParticipation:         30 * time.Second,
		FlushInterval:            2 * time.Minute,
		DurabilityMaxRetries:     3,
		CurrencyLabel:            "aUEC",
		LogLevel:                 "info",
		OTelServiceName:          "minebot",
		OTelExporterType:         "none",
		OTelExportIntervalMillis: 30000,
	}
}
