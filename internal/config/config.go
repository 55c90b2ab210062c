package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// defaultScopes covers reading and creating property schemas of the standard objects
const defaultScopes = "oauth crm.schemas.contacts.read crm.schemas.contacts.write crm.schemas.companies.read " +
	"crm.schemas.companies.write crm.schemas.deals.read crm.schemas.deals.write"

type Config struct {
	// Server settings
	Port     string
	AppURL   string
	LogLevel string

	// Profile store
	MongoURI      string
	MongoDatabase string

	// Shared catalog cache (in-memory when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CRM API and OAuth
	CRMAPIBaseURL     string
	CRMAuthURL        string
	CRMTokenURL       string
	CRMClientID       string
	CRMClientSecret   string
	CRMRedirectURI    string
	CRMScopes         []string
	CRMRequestTimeout time.Duration

	// Catalog
	CatalogCacheTTL time.Duration

	// Migration pacing
	MigrationPropertyDelay time.Duration
	MigrationMaxRetries    int
	MigrationBackoffBase   time.Duration
	MigrationBackoffMax    time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	appURL := getEnv("APP_URL", "http://localhost:8080")

	return &Config{
		Port:     getEnv("PORT", "8080"),
		AppURL:   appURL,
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "crm_schema_migrator"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CRMAPIBaseURL:     strings.TrimRight(getEnv("CRM_API_BASE_URL", "https://api.hubapi.com/crm/v3"), "/"),
		CRMAuthURL:        getEnv("CRM_AUTH_URL", "https://app.hubspot.com/oauth/authorize"),
		CRMTokenURL:       getEnv("CRM_TOKEN_URL", "https://api.hubapi.com/oauth/v1/token"),
		CRMClientID:       getEnv("CRM_CLIENT_ID", ""),
		CRMClientSecret:   getEnv("CRM_CLIENT_SECRET", ""),
		CRMRedirectURI:    getEnv("CRM_REDIRECT_URI", appURL+"/auth/crm/callback"),
		CRMScopes:         strings.Fields(getEnv("CRM_SCOPES", defaultScopes)),
		CRMRequestTimeout: getEnvDuration("CRM_REQUEST_TIMEOUT", 30*time.Second),

		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),

		MigrationPropertyDelay: getEnvDuration("MIGRATION_PROPERTY_DELAY", 500*time.Millisecond),
		MigrationMaxRetries:    getEnvInt("MIGRATION_MAX_RETRIES", 4),
		MigrationBackoffBase:   getEnvDuration("MIGRATION_BACKOFF_BASE", time.Second),
		MigrationBackoffMax:    getEnvDuration("MIGRATION_BACKOFF_MAX", 30*time.Second),
	}
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.CRMClientID == "" || c.CRMClientSecret == "" {
		return fmt.Errorf("CRM_CLIENT_ID and CRM_CLIENT_SECRET are required")
	}
	if c.CRMRequestTimeout <= 0 {
		return fmt.Errorf("CRM_REQUEST_TIMEOUT must be positive, got %s", c.CRMRequestTimeout)
	}
	if c.MigrationMaxRetries < 0 {
		return fmt.Errorf("MIGRATION_MAX_RETRIES must not be negative, got %d", c.MigrationMaxRetries)
	}
	if c.MigrationBackoffMax < c.MigrationBackoffBase {
		return fmt.Errorf("MIGRATION_BACKOFF_MAX (%s) must not be below MIGRATION_BACKOFF_BASE (%s)",
			c.MigrationBackoffMax, c.MigrationBackoffBase)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
