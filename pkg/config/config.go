package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load environment variables from .env files when present.
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration. It is loaded once at startup
// and passed to the components that need it; nothing reads the environment
// after Load returns.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Queue         QueueConfig
	Auth          AuthConfig
	Import        ImportConfig
	Rules         RulesConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// QueueConfig configures the Redis-backed task queue used for import jobs.
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JobTimeout    time.Duration
}

// AuthConfig controls user scoping. Identity verification happens upstream;
// the API only consumes the forwarded user id. AdminUserIDs is an immutable
// set parsed once from a comma-separated env value.
type AuthConfig struct {
	Enabled      bool
	AdminUserIDs map[string]struct{}
}

type ImportConfig struct {
	StaleAfter time.Duration
	SweepEvery string // cron spec for the worker's stale-import sweep
}

type RulesConfig struct {
	ConfigPath string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	staleMinutes := getEnvAsInt("IMPORT_STALE_MINUTES", 15)
	if staleMinutes < 1 {
		staleMinutes = 1
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "spendlens-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Queue: QueueConfig{
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			JobTimeout:    time.Duration(getEnvAsInt("IMPORT_JOB_TIMEOUT_SECONDS", 600)) * time.Second,
		},
		Auth: AuthConfig{
			Enabled:      getEnvAsBool("AUTH_ENABLED", false),
			AdminUserIDs: parseIDSet(getEnv("ADMIN_USER_IDS", "")),
		},
		Import: ImportConfig{
			StaleAfter: time.Duration(staleMinutes) * time.Minute,
			SweepEvery: getEnv("IMPORT_SWEEP_CRON", "*/5 * * * *"),
		},
		Rules: RulesConfig{
			ConfigPath: getEnv("RULES_CONFIG_PATH", "config/classification_rules.json"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	return cfg, nil
}

// IsAdmin reports whether the given user id is in the configured admin set.
// With auth disabled every caller is an admin.
func (c *AuthConfig) IsAdmin(userID string) bool {
	if !c.Enabled {
		return true
	}
	_, ok := c.AdminUserIDs[userID]
	return ok
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func parseIDSet(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
