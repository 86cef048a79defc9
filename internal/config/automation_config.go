package config

import (
	"fmt"
	"time"
)

// AutomationConfig holds all autopilot daemon configuration
type AutomationConfig struct {
	// Gmail API Configuration
	Gmail GmailConfig `json:"gmail"`

	// Rule store
	Store StoreConfig `json:"store"`

	// Sweep scheduling
	Automation SweepConfig `json:"automation"`

	// Executor tuning
	Executor ExecutorConfig `json:"executor"`

	// Provider rate limiting
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Run history persistence
	History HistoryConfig `json:"history"`

	// Message details cache
	Cache CacheConfig `json:"cache"`

	// Logging
	Log LogConfig `json:"log"`
}

// GmailConfig holds Gmail-specific configuration
type GmailConfig struct {
	// OAuth2 Settings
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	TokenFile    string `json:"token_file"`

	// Mailbox Settings
	UserEmail string `json:"user_email"`

	// Request Settings
	RequestTimeout time.Duration `json:"request_timeout"`
}

// StoreConfig holds rule store configuration
type StoreConfig struct {
	Path string `json:"path"`
}

// SweepConfig holds sweep scheduling configuration
type SweepConfig struct {
	SweepInterval time.Duration `json:"sweep_interval"`
	InitialDelay  time.Duration `json:"initial_delay"`
	DryRun        bool          `json:"dry_run"`

	// AdminAddr is the listen address of the embedded admin server used to
	// pause/resume sweeps. Empty disables it.
	AdminAddr string `json:"admin_addr"`
}

// ExecutorConfig holds pipeline executor configuration
type ExecutorConfig struct {
	ScanLimit            int    `json:"scan_limit"`
	PageSize             int    `json:"page_size"`
	FlushChunkSize       int    `json:"flush_chunk_size"`
	FetchConcurrency     int    `json:"fetch_concurrency"`
	IncludeDetailedIDs   bool   `json:"include_detailed_ids"`
	UserQuery            string `json:"user_query"`
	AllowPermanentDelete bool   `json:"allow_permanent_delete"`
}

// RateLimitConfig holds provider pacing configuration
type RateLimitConfig struct {
	BaseDelay     time.Duration `json:"base_delay"`
	MaxRetries    int           `json:"max_retries"`
	BackoffFactor float64       `json:"backoff_factor"`
	Disabled      bool          `json:"disabled"`
}

// GetBaseDelay returns the rate limit base delay
func (c RateLimitConfig) GetBaseDelay() time.Duration {
	return c.BaseDelay
}

// GetMaxRetries returns the rate limit retry budget
func (c RateLimitConfig) GetMaxRetries() int {
	return c.MaxRetries
}

// GetBackoffFactor returns the rate limit backoff factor
func (c RateLimitConfig) GetBackoffFactor() float64 {
	return c.BackoffFactor
}

// HistoryConfig holds run history persistence configuration
type HistoryConfig struct {
	DBPath  string `json:"db_path"`
	MaxRuns int    `json:"max_runs"`
}

// CacheConfig holds message details cache configuration
type CacheConfig struct {
	DetailsTTL time.Duration `json:"details_ttl"`
	Disabled   bool          `json:"disabled"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level"`
}

// LoadAutomationConfig loads autopilot configuration from environment variables
func LoadAutomationConfig() (*AutomationConfig, error) {
	return LoadAutomationConfigWithEnvFile("")
}

// LoadAutomationConfigWithEnvFile loads autopilot configuration from
// environment variables and optionally loads a .env file first
func LoadAutomationConfigWithEnvFile(envFile string) (*AutomationConfig, error) {
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := loadDefaultEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &AutomationConfig{
		Gmail: GmailConfig{
			ClientID:       getEnvOrDefault("GMAIL_CLIENT_ID", ""),
			ClientSecret:   getEnvOrDefault("GMAIL_CLIENT_SECRET", ""),
			RefreshToken:   getEnvOrDefault("GMAIL_REFRESH_TOKEN", ""),
			AccessToken:    getEnvOrDefault("GMAIL_ACCESS_TOKEN", ""),
			TokenFile:      getEnvOrDefault("GMAIL_TOKEN_FILE", "./gmail-token.json"),
			UserEmail:      getEnvOrDefault("GMAIL_USER_EMAIL", ""),
			RequestTimeout: getEnvDurationOrDefault("GMAIL_REQUEST_TIMEOUT", "30s"),
		},

		Store: StoreConfig{
			Path: getEnvOrDefault("RULES_PATH", "./rules.json"),
		},

		Automation: SweepConfig{
			SweepInterval: getEnvDurationOrDefault("AUTOMATION_SWEEP_INTERVAL", "1h"),
			InitialDelay:  getEnvDurationOrDefault("AUTOMATION_INITIAL_DELAY", "30s"),
			DryRun:        getEnvBoolOrDefault("AUTOMATION_DRY_RUN", false),
			AdminAddr:     getEnvOrDefault("AUTOMATION_ADMIN_ADDR", ""),
		},

		Executor: ExecutorConfig{
			ScanLimit:            getEnvIntOrDefault("EXECUTOR_SCAN_LIMIT", 0),
			PageSize:             getEnvIntOrDefault("EXECUTOR_PAGE_SIZE", 50),
			FlushChunkSize:       getEnvIntOrDefault("EXECUTOR_FLUSH_CHUNK_SIZE", 500),
			FetchConcurrency:     getEnvIntOrDefault("EXECUTOR_FETCH_CONCURRENCY", 4),
			IncludeDetailedIDs:   getEnvBoolOrDefault("EXECUTOR_INCLUDE_DETAILED_IDS", false),
			UserQuery:            getEnvOrDefault("EXECUTOR_USER_QUERY", ""),
			AllowPermanentDelete: getEnvBoolOrDefault("ALLOW_PERMANENT_DELETE", false),
		},

		RateLimit: RateLimitConfig{
			BaseDelay:     time.Duration(getEnvIntOrDefault("RATE_LIMIT_BASE_DELAY_MS", 100)) * time.Millisecond,
			MaxRetries:    getEnvIntOrDefault("RATE_LIMIT_MAX_RETRIES", 3),
			BackoffFactor: getEnvFloatOrDefault("RATE_LIMIT_BACKOFF_FACTOR", 2.0),
			Disabled:      getEnvBoolOrDefault("DISABLE_RATE_LIMIT", false),
		},

		History: HistoryConfig{
			DBPath:  getEnvOrDefault("HISTORY_DB_PATH", "./automation-runs.db"),
			MaxRuns: getEnvIntOrDefault("HISTORY_MAX_RUNS", 500),
		},

		Cache: CacheConfig{
			DetailsTTL: getEnvDurationOrDefault("CACHE_DETAILS_TTL", "5m"),
			Disabled:   getEnvBoolOrDefault("DISABLE_CACHE", false),
		},

		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid automation configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *AutomationConfig) validate() error {
	// Validate Gmail configuration. The daemon runs unattended, so OAuth2
	// credentials must be present up front rather than discovered missing
	// mid-sweep.
	if c.Gmail.ClientID == "" {
		return fmt.Errorf("gmail client_id must be provided")
	}
	if c.Gmail.ClientSecret == "" {
		return fmt.Errorf("gmail client_secret must be provided")
	}

	// Validate rule store
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}

	// Validate sweep scheduling
	if c.Automation.SweepInterval < time.Minute {
		return fmt.Errorf("sweep_interval must be at least 1 minute")
	}
	if c.Automation.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be non-negative")
	}

	// Validate executor configuration
	if c.Executor.ScanLimit < 0 {
		return fmt.Errorf("executor scan_limit must be non-negative")
	}
	if c.Executor.PageSize < 1 || c.Executor.PageSize > 500 {
		return fmt.Errorf("executor page_size must be between 1 and 500")
	}
	if c.Executor.FlushChunkSize < 1 || c.Executor.FlushChunkSize > 1000 {
		return fmt.Errorf("executor flush_chunk_size must be between 1 and 1000")
	}
	if c.Executor.FetchConcurrency < 1 {
		return fmt.Errorf("executor fetch_concurrency must be at least 1")
	}

	// Validate rate limiting
	if c.RateLimit.BaseDelay <= 0 {
		return fmt.Errorf("rate limit base delay must be positive")
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("rate limit max_retries must be non-negative")
	}
	if c.RateLimit.BackoffFactor < 1.0 {
		return fmt.Errorf("rate limit backoff_factor must be at least 1.0")
	}

	// Validate run history
	if c.History.DBPath == "" {
		return fmt.Errorf("history db_path cannot be empty")
	}
	if c.History.MaxRuns < 0 {
		return fmt.Errorf("history max_runs must be non-negative")
	}

	// Validate cache
	if c.Cache.DetailsTTL <= 0 {
		return fmt.Errorf("cache details_ttl must be positive")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLogLevel := false
	for _, level := range validLogLevels {
		if c.Log.Level == level {
			isValidLogLevel = true
			break
		}
	}
	if !isValidLogLevel {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.Log.Level)
	}

	return nil
}
