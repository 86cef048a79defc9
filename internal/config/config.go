package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration
type Config struct {
	// Server configuration
	ServerPort      string
	ServerHost      string
	ShutdownTimeout time.Duration

	// API key for mutating endpoints; empty disables authentication
	APIKey string

	// Rule store configuration
	RulesPath string

	// Run history configuration
	HistoryDBPath  string
	HistoryMaxRuns int

	// Gmail credentials
	GmailClientID       string
	GmailClientSecret   string
	GmailRefreshToken   string
	GmailAccessToken    string
	GmailTokenFile      string
	GmailUserEmail      string
	GmailRequestTimeout time.Duration

	// Rate limiting
	RateLimitBaseDelay     time.Duration
	RateLimitMaxRetries    int
	RateLimitBackoffFactor float64

	// Executor tuning
	ExecutorScanLimit          int
	ExecutorPageSize           int
	ExecutorFlushChunkSize     int
	ExecutorFetchConcurrency   int
	ExecutorDryRun             bool
	ExecutorIncludeDetailedIDs bool
	ExecutorUserQuery          string
	AllowPermanentDelete       bool

	// Job manager
	JobsMaxCompleted         int
	SnapshotInterval         time.Duration
	MaxSnapshotsPerOperation int

	// Message details cache
	CacheDetailsTTL time.Duration

	// Logging
	LogLevel string

	// Development/testing flags
	DisableRateLimit bool
	DisableCache     bool
}

// Load loads configuration from environment variables with defaults
// If a .env file exists, it will be loaded first
func Load() (*Config, error) {
	if err := loadDefaultEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{
		// Server defaults
		ServerPort:      getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:      getEnvOrDefault("SERVER_HOST", "localhost"),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", "30s"),
		APIKey:          os.Getenv("API_KEY"),

		// Rule store default
		RulesPath: getEnvOrDefault("RULES_PATH", "./rules.json"),

		// Run history defaults
		HistoryDBPath:  getEnvOrDefault("HISTORY_DB_PATH", "./automation-runs.db"),
		HistoryMaxRuns: getEnvIntOrDefault("HISTORY_MAX_RUNS", 500),

		// Gmail credentials (validated when the client is built at startup)
		GmailClientID:       os.Getenv("GMAIL_CLIENT_ID"),
		GmailClientSecret:   os.Getenv("GMAIL_CLIENT_SECRET"),
		GmailRefreshToken:   os.Getenv("GMAIL_REFRESH_TOKEN"),
		GmailAccessToken:    os.Getenv("GMAIL_ACCESS_TOKEN"),
		GmailTokenFile:      getEnvOrDefault("GMAIL_TOKEN_FILE", "./gmail-token.json"),
		GmailUserEmail:      os.Getenv("GMAIL_USER_EMAIL"),
		GmailRequestTimeout: getEnvDurationOrDefault("GMAIL_REQUEST_TIMEOUT", "30s"),

		// Rate limiting defaults
		RateLimitBaseDelay:     time.Duration(getEnvIntOrDefault("RATE_LIMIT_BASE_DELAY_MS", 100)) * time.Millisecond,
		RateLimitMaxRetries:    getEnvIntOrDefault("RATE_LIMIT_MAX_RETRIES", 3),
		RateLimitBackoffFactor: getEnvFloatOrDefault("RATE_LIMIT_BACKOFF_FACTOR", 2.0),

		// Executor defaults
		ExecutorScanLimit:          getEnvIntOrDefault("EXECUTOR_SCAN_LIMIT", 0),
		ExecutorPageSize:           getEnvIntOrDefault("EXECUTOR_PAGE_SIZE", 50),
		ExecutorFlushChunkSize:     getEnvIntOrDefault("EXECUTOR_FLUSH_CHUNK_SIZE", 500),
		ExecutorFetchConcurrency:   getEnvIntOrDefault("EXECUTOR_FETCH_CONCURRENCY", 4),
		ExecutorDryRun:             getEnvBoolOrDefault("EXECUTOR_DRY_RUN", false),
		ExecutorIncludeDetailedIDs: getEnvBoolOrDefault("EXECUTOR_INCLUDE_DETAILED_IDS", false),
		ExecutorUserQuery:          os.Getenv("EXECUTOR_USER_QUERY"),
		AllowPermanentDelete:       getEnvBoolOrDefault("ALLOW_PERMANENT_DELETE", false),

		// Job manager defaults
		JobsMaxCompleted:         getEnvIntOrDefault("JOBS_MAX_COMPLETED", 1000),
		SnapshotInterval:         time.Duration(getEnvIntOrDefault("JOBS_SNAPSHOT_INTERVAL_MS", 1000)) * time.Millisecond,
		MaxSnapshotsPerOperation: getEnvIntOrDefault("JOBS_MAX_SNAPSHOTS_PER_OPERATION", 1000),

		// Cache defaults
		CacheDetailsTTL: getEnvDurationOrDefault("CACHE_DETAILS_TTL", "5m"),

		// Logging
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		// Development/testing flags
		DisableRateLimit: getEnvBoolOrDefault("DISABLE_RATE_LIMIT", false),
		DisableCache:     getEnvBoolOrDefault("DISABLE_CACHE", false),
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	// Validate server port
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	// Check if port is a valid number
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	// Validate rule store path
	if c.RulesPath == "" {
		return fmt.Errorf("rules path cannot be empty")
	}

	// Validate run history configuration
	if c.HistoryDBPath == "" {
		return fmt.Errorf("history database path cannot be empty")
	}
	if c.HistoryMaxRuns < 0 {
		return fmt.Errorf("history max runs must be non-negative")
	}

	if c.GmailRequestTimeout <= 0 {
		return fmt.Errorf("gmail request timeout must be positive")
	}

	// Validate rate limiting configuration
	if c.RateLimitBaseDelay <= 0 {
		return fmt.Errorf("rate limit base delay must be positive")
	}
	if c.RateLimitMaxRetries < 0 {
		return fmt.Errorf("rate limit max retries must be non-negative")
	}
	if c.RateLimitBackoffFactor < 1.0 {
		return fmt.Errorf("rate limit backoff factor must be at least 1.0")
	}

	// Validate executor configuration
	if c.ExecutorScanLimit < 0 {
		return fmt.Errorf("executor scan limit must be non-negative")
	}
	if c.ExecutorPageSize < 1 || c.ExecutorPageSize > 500 {
		return fmt.Errorf("executor page size must be between 1 and 500")
	}
	if c.ExecutorFlushChunkSize < 1 || c.ExecutorFlushChunkSize > 1000 {
		return fmt.Errorf("executor flush chunk size must be between 1 and 1000")
	}
	if c.ExecutorFetchConcurrency < 1 {
		return fmt.Errorf("executor fetch concurrency must be at least 1")
	}

	// Validate job manager configuration
	if c.JobsMaxCompleted < 1 {
		return fmt.Errorf("jobs max completed must be at least 1")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("jobs snapshot interval must be positive")
	}
	if c.MaxSnapshotsPerOperation < 1 {
		return fmt.Errorf("jobs max snapshots per operation must be at least 1")
	}

	// Validate cache configuration
	if c.CacheDetailsTTL <= 0 {
		return fmt.Errorf("cache details TTL must be positive")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLogLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValidLogLevel = true
			break
		}
	}
	if !isValidLogLevel {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// GetBaseDelay returns the rate limit base delay
func (c *Config) GetBaseDelay() time.Duration {
	return c.RateLimitBaseDelay
}

// GetMaxRetries returns the rate limit retry budget
func (c *Config) GetMaxRetries() int {
	return c.RateLimitMaxRetries
}

// GetBackoffFactor returns the rate limit backoff factor
func (c *Config) GetBackoffFactor() float64 {
	return c.RateLimitBackoffFactor
}

// GetDisableRateLimit returns the rate limit disable flag
func (c *Config) GetDisableRateLimit() bool {
	return c.DisableRateLimit
}

// GetDisableCache returns the cache disable flag
func (c *Config) GetDisableCache() bool {
	return c.DisableCache
}
