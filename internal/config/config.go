package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full application configuration.
// Populated from environment variables at startup.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	PaymentLimits PaymentLimitsConfig
	Payment       PaymentConfig
	Locks         LockConfig
	Retry         RetryConfig
	Audit         AuditConfig
	Acquirer      AcquirerConfig
	Webhook       WebhookConfig
	SMTP          SMTPConfig
	Jobs          JobConfig
	FeatureFlags  FeatureFlagsConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	BaseURL     string // public base URL, used for hosted payment form links
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry int // minutes
}

// PaymentLimitsConfig carries the global limits evaluated by the rule engine.
// All amounts are integer minor units.
type PaymentLimitsConfig struct {
	GlobalMinPaymentAmount  int64
	GlobalMaxPaymentAmount  int64
	GlobalDailyPaymentLimit int64
}

type PaymentConfig struct {
	// Default hosted-form lifetime when the merchant does not send
	// PaymentExpiry, in minutes.
	DefaultExpiryMinutes int
	MaxAuthAttempts      int
	// High-value threshold that switches retry policy selection to
	// "conservative", in minor units.
	HighValueThreshold int64
}

type LockConfig struct {
	// Default lease expiry for payment-mutating operations.
	DefaultExpiry time.Duration
	// Acquire retry budget.
	MaxAttempts  int
	RetryBackoff time.Duration
	// "memory" or "redis"
	Backend string
}

type RetryConfig struct {
	// Payments older than this are never retried.
	MaxPaymentAge time.Duration
}

type AuditConfig struct {
	MaxHistoryRecords      int
	MaxQueryResults        int
	AlertSeverityThreshold string
	RetentionDays          int
	// How long a correlation context stays resident after completion.
	CorrelationTimeWindow time.Duration
}

type AcquirerConfig struct {
	// "simulator" or "http"
	Backend string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Artificial latency for the simulator backend.
	SimulatorLatency time.Duration
}

type SMTPConfig struct {
	Host         string
	Port         string
	OperatorAddr string
}

type WebhookConfig struct {
	// Per-delivery HTTP timeout.
	Timeout time.Duration
	// Delivery retry budget follows the default payment retry policy.
	MaxAttempts int
}

type JobConfig struct {
	ExpirySweepBatch    int
	ReconcileBatch      int
	NotificationBatch   int
	AuditCleanupBatch   int
	FailedAuthLockLimit int
	FailedAuthLockMins  int
}

type FeatureFlagsConfig struct {
	EnableConfigurationHotReload bool
	EnableFraudChecks            bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Paygate API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "paygate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenExpiry: getEnvInt("JWT_ACCESS_EXPIRY", 60),
		},
		PaymentLimits: PaymentLimitsConfig{
			GlobalMinPaymentAmount:  getEnvInt64("PAYMENT_GLOBAL_MIN_AMOUNT", 100),          // 1.00
			GlobalMaxPaymentAmount:  getEnvInt64("PAYMENT_GLOBAL_MAX_AMOUNT", 100_000_000),  // 1,000,000.00
			GlobalDailyPaymentLimit: getEnvInt64("PAYMENT_GLOBAL_DAILY_LIMIT", 500_000_000), // per team per day
		},
		Payment: PaymentConfig{
			DefaultExpiryMinutes: getEnvInt("PAYMENT_DEFAULT_EXPIRY_MINUTES", 15),
			MaxAuthAttempts:      getEnvInt("PAYMENT_MAX_AUTH_ATTEMPTS", 3),
			HighValueThreshold:   getEnvInt64("PAYMENT_HIGH_VALUE_THRESHOLD", 10_000_000),
		},
		Locks: LockConfig{
			DefaultExpiry: getEnvDuration("LOCK_DEFAULT_EXPIRY", 30*time.Second),
			MaxAttempts:   getEnvInt("LOCK_MAX_ATTEMPTS", 5),
			RetryBackoff:  getEnvDuration("LOCK_RETRY_BACKOFF", 100*time.Millisecond),
			Backend:       getEnv("LOCK_BACKEND", "memory"),
		},
		Retry: RetryConfig{
			MaxPaymentAge: getEnvDuration("RETRY_MAX_PAYMENT_AGE", 24*time.Hour),
		},
		Audit: AuditConfig{
			MaxHistoryRecords:      getEnvInt("AUDIT_MAX_HISTORY_RECORDS", 10000),
			MaxQueryResults:        getEnvInt("AUDIT_MAX_QUERY_RESULTS", 500),
			AlertSeverityThreshold: getEnv("AUDIT_ALERT_SEVERITY", "error"),
			RetentionDays:          getEnvInt("AUDIT_RETENTION_DAYS", 90),
			CorrelationTimeWindow:  getEnvDuration("AUDIT_CORRELATION_WINDOW", 5*time.Minute),
		},
		Acquirer: AcquirerConfig{
			Backend:          getEnv("ACQUIRER_BACKEND", "simulator"),
			BaseURL:          getEnv("ACQUIRER_BASE_URL", ""),
			APIKey:           getEnv("ACQUIRER_API_KEY", ""),
			Timeout:          getEnvDuration("ACQUIRER_TIMEOUT", 15*time.Second),
			SimulatorLatency: getEnvDuration("ACQUIRER_SIMULATOR_LATENCY", 50*time.Millisecond),
		},
		SMTP: SMTPConfig{
			Host:         getEnv("SMTP_HOST", "localhost"),
			Port:         getEnv("SMTP_PORT", "1025"),
			OperatorAddr: getEnv("SMTP_OPERATOR_ADDR", "ops@paygate.dev"),
		},
		Webhook: WebhookConfig{
			Timeout:     getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts: getEnvInt("WEBHOOK_MAX_ATTEMPTS", 3),
		},
		Jobs: JobConfig{
			ExpirySweepBatch:    getEnvInt("JOB_EXPIRY_SWEEP_BATCH", 100),
			ReconcileBatch:      getEnvInt("JOB_RECONCILE_BATCH", 50),
			NotificationBatch:   getEnvInt("JOB_NOTIFICATION_BATCH", 100),
			AuditCleanupBatch:   getEnvInt("JOB_AUDIT_CLEANUP_BATCH", 1000),
			FailedAuthLockLimit: getEnvInt("AUTH_FAILED_LOCK_LIMIT", 5),
			FailedAuthLockMins:  getEnvInt("AUTH_FAILED_LOCK_MINUTES", 30),
		},
		FeatureFlags: FeatureFlagsConfig{
			EnableConfigurationHotReload: getEnvBool("FEATURE_CONFIG_HOT_RELOAD", false),
			EnableFraudChecks:            getEnvBool("FEATURE_FRAUD_CHECKS", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks critical configuration before startup.
func (c *Config) Validate() error {
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
	}

	if c.PaymentLimits.GlobalMinPaymentAmount <= 0 {
		return fmt.Errorf("PAYMENT_GLOBAL_MIN_AMOUNT must be positive")
	}
	if c.PaymentLimits.GlobalMaxPaymentAmount < c.PaymentLimits.GlobalMinPaymentAmount {
		return fmt.Errorf("PAYMENT_GLOBAL_MAX_AMOUNT must be >= PAYMENT_GLOBAL_MIN_AMOUNT")
	}
	if c.Locks.Backend != "memory" && c.Locks.Backend != "redis" {
		return fmt.Errorf("LOCK_BACKEND must be 'memory' or 'redis', got %q", c.Locks.Backend)
	}
	if c.Acquirer.Backend != "simulator" && c.Acquirer.Backend != "http" {
		return fmt.Errorf("ACQUIRER_BACKEND must be 'simulator' or 'http', got %q", c.Acquirer.Backend)
	}
	if c.Acquirer.Backend == "http" && c.Acquirer.BaseURL == "" {
		return fmt.Errorf("ACQUIRER_BASE_URL must be set when ACQUIRER_BACKEND is 'http'")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "1" || valueStr == "true" || valueStr == "yes"
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
