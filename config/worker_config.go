package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Database drivers accepted in DATABASE_DRIVER.
const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	Release     string

	// Database
	DatabaseURL    string
	DatabaseDriver string
	DBMaxConns     int
	MongoDBURL     string
	MongoDBName    string
	RedisURL       string

	// JWT
	JWTSecret string

	// Error reporting
	SentryDSN string

	// Mail providers
	GraphBaseURL    string
	GmailEndpoint   string
	DefaultProvider string

	// Worker
	WorkerID         string
	WorkerMax        int
	WorkerQueueSize  int
	WorkerRatePerSec int
	JobTimeout       time.Duration
	JobMaxRetries    int

	// Consumer (Redis Stream)
	ConsumerGroup           string
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerPendingIdleSec  int

	// Rules engine
	RulesBatchLimit       int
	RulesLeadDedupWindow  time.Duration
	RulesCacheTTL         time.Duration
	RulesLockTTL          time.Duration
	RulesPostSyncInterval time.Duration
	RulesSeedPath         string
	RuleRunRetention      time.Duration

	// HTTP
	AllowedOrigins      []string
	TriggerRateLimit    int
	MaxRequestBodyBytes int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Release:     getEnv("RELEASE", ""),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverPgx)),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 25),
		MongoDBURL:     getEnv("MONGODB_URL", ""),
		MongoDBName:    getEnv("MONGODB_DATABASE", "crm"),
		RedisURL:       getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		// Mail providers
		GraphBaseURL:    getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		GmailEndpoint:   getEnv("GMAIL_ENDPOINT", ""),
		DefaultProvider: getEnv("DEFAULT_MAIL_PROVIDER", "outlook"),

		// Worker
		WorkerID:         getEnv("WORKER_ID", generateWorkerID()),
		WorkerMax:        getEnvInt("WORKER_MAX", 4),
		WorkerQueueSize:  getEnvInt("WORKER_QUEUE_SIZE", 100),
		WorkerRatePerSec: getEnvInt("WORKER_RATE_PER_SEC", 20),
		JobTimeout:       time.Duration(getEnvInt("WORKER_JOB_TIMEOUT_SEC", 600)) * time.Second,
		JobMaxRetries:    getEnvInt("WORKER_JOB_MAX_RETRIES", 3),

		// Consumer
		ConsumerGroup:           getEnv("CONSUMER_GROUP", "rules-workers"),
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),
		ConsumerPendingIdleSec:  getEnvInt("CONSUMER_PENDING_IDLE_SEC", 120),

		// Rules engine
		RulesBatchLimit:       getEnvInt("RULES_BATCH_LIMIT", 500),
		RulesLeadDedupWindow:  time.Duration(getEnvInt("RULES_LEAD_DEDUP_WINDOW_HOURS", 168)) * time.Hour,
		RulesCacheTTL:         time.Duration(getEnvInt("RULES_CACHE_TTL_SEC", 300)) * time.Second,
		RulesLockTTL:          time.Duration(getEnvInt("RULES_LOCK_TTL_SEC", 120)) * time.Second,
		RulesPostSyncInterval: time.Duration(getEnvInt("RULES_POST_SYNC_INTERVAL_SEC", 0)) * time.Second,
		RulesSeedPath:         getEnv("RULES_SEED_PATH", ""),
		RuleRunRetention:      time.Duration(getEnvInt("RULE_RUN_RETENTION_DAYS", 30)) * 24 * time.Hour,

		// HTTP
		AllowedOrigins:      getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		TriggerRateLimit:    getEnvInt("TRIGGER_RATE_LIMIT_PER_MIN", 30),
		MaxRequestBodyBytes: getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseDriver != DriverPgx && c.DatabaseDriver != DriverPq {
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPgx, DriverPq, c.DatabaseDriver)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.RulesBatchLimit <= 0 {
		return fmt.Errorf("RULES_BATCH_LIMIT must be positive")
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
