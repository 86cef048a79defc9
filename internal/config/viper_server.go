package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadServerConfigWithViper loads server configuration using Viper
func LoadServerConfigWithViper(v *viper.Viper) (*Config, error) {
	// Set defaults
	setServerDefaults(v)

	// Set up environment variable binding
	setupServerEnvBinding(v)

	// Load configuration file if specified
	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Unmarshal configuration
	config := &Config{}
	if err := unmarshalServerConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setServerDefaults sets default values for server configuration
func setServerDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_key", "")

	// Rule store defaults
	v.SetDefault("store.path", "./rules.json")

	// Run history defaults
	v.SetDefault("history.db_path", "./automation-runs.db")
	v.SetDefault("history.max_runs", 500)

	// Gmail defaults
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.refresh_token", "")
	v.SetDefault("gmail.access_token", "")
	v.SetDefault("gmail.token_file", "./gmail-token.json")
	v.SetDefault("gmail.user_email", "")
	v.SetDefault("gmail.request_timeout", "30s")

	// Rate limiting defaults
	v.SetDefault("rate_limit.base_delay_ms", 100)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.backoff_factor", 2.0)
	v.SetDefault("rate_limit.disabled", false)

	// Executor defaults
	v.SetDefault("executor.scan_limit", 0)
	v.SetDefault("executor.page_size", 50)
	v.SetDefault("executor.flush_chunk_size", 500)
	v.SetDefault("executor.fetch_concurrency", 4)
	v.SetDefault("executor.dry_run", false)
	v.SetDefault("executor.include_detailed_ids", false)
	v.SetDefault("executor.user_query", "")
	v.SetDefault("executor.allow_permanent_delete", false)

	// Job manager defaults
	v.SetDefault("jobs.max_completed", 1000)
	v.SetDefault("jobs.snapshot_interval_ms", 1000)
	v.SetDefault("jobs.max_snapshots_per_operation", 1000)

	// Cache defaults
	v.SetDefault("cache.details_ttl", "5m")
	v.SetDefault("cache.disabled", false)

	// Logging defaults
	v.SetDefault("log.level", "info")
}

// setupServerEnvBinding sets up environment variable binding for server configuration
func setupServerEnvBinding(v *viper.Viper) {
	// Set environment variable prefix
	v.SetEnvPrefix("EMAIL_AUTOMATION")
	v.AutomaticEnv()

	// Bind new format environment variables
	envBindings := map[string]string{
		"server.host":             "SERVER_HOST",
		"server.port":             "SERVER_PORT",
		"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
		"server.api_key":          "SERVER_API_KEY",

		"store.path": "STORE_PATH",

		"history.db_path":  "HISTORY_DB_PATH",
		"history.max_runs": "HISTORY_MAX_RUNS",

		"gmail.client_id":       "GMAIL_CLIENT_ID",
		"gmail.client_secret":   "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":   "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":    "GMAIL_ACCESS_TOKEN",
		"gmail.token_file":      "GMAIL_TOKEN_FILE",
		"gmail.user_email":      "GMAIL_USER_EMAIL",
		"gmail.request_timeout": "GMAIL_REQUEST_TIMEOUT",

		"rate_limit.base_delay_ms":  "RATE_LIMIT_BASE_DELAY_MS",
		"rate_limit.max_retries":    "RATE_LIMIT_MAX_RETRIES",
		"rate_limit.backoff_factor": "RATE_LIMIT_BACKOFF_FACTOR",
		"rate_limit.disabled":       "RATE_LIMIT_DISABLED",

		"executor.scan_limit":             "EXECUTOR_SCAN_LIMIT",
		"executor.page_size":              "EXECUTOR_PAGE_SIZE",
		"executor.flush_chunk_size":       "EXECUTOR_FLUSH_CHUNK_SIZE",
		"executor.fetch_concurrency":      "EXECUTOR_FETCH_CONCURRENCY",
		"executor.dry_run":                "EXECUTOR_DRY_RUN",
		"executor.include_detailed_ids":   "EXECUTOR_INCLUDE_DETAILED_IDS",
		"executor.user_query":             "EXECUTOR_USER_QUERY",
		"executor.allow_permanent_delete": "EXECUTOR_ALLOW_PERMANENT_DELETE",

		"jobs.max_completed":               "JOBS_MAX_COMPLETED",
		"jobs.snapshot_interval_ms":        "JOBS_SNAPSHOT_INTERVAL_MS",
		"jobs.max_snapshots_per_operation": "JOBS_MAX_SNAPSHOTS_PER_OPERATION",

		"cache.details_ttl": "CACHE_DETAILS_TTL",
		"cache.disabled":    "CACHE_DISABLED",

		"log.level": "LOG_LEVEL",
	}

	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, "EMAIL_AUTOMATION_"+envSuffix)
	}

	// Bind bare environment variables for backward compatibility
	oldEnvBindings := map[string]string{
		"server.host":             "SERVER_HOST",
		"server.port":             "SERVER_PORT",
		"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
		"server.api_key":          "API_KEY",

		"store.path": "RULES_PATH",

		"history.db_path":  "HISTORY_DB_PATH",
		"history.max_runs": "HISTORY_MAX_RUNS",

		"gmail.client_id":       "GMAIL_CLIENT_ID",
		"gmail.client_secret":   "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":   "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":    "GMAIL_ACCESS_TOKEN",
		"gmail.token_file":      "GMAIL_TOKEN_FILE",
		"gmail.user_email":      "GMAIL_USER_EMAIL",
		"gmail.request_timeout": "GMAIL_REQUEST_TIMEOUT",

		"rate_limit.base_delay_ms":  "RATE_LIMIT_BASE_DELAY_MS",
		"rate_limit.max_retries":    "RATE_LIMIT_MAX_RETRIES",
		"rate_limit.backoff_factor": "RATE_LIMIT_BACKOFF_FACTOR",
		"rate_limit.disabled":       "DISABLE_RATE_LIMIT",

		"executor.scan_limit":             "EXECUTOR_SCAN_LIMIT",
		"executor.page_size":              "EXECUTOR_PAGE_SIZE",
		"executor.flush_chunk_size":       "EXECUTOR_FLUSH_CHUNK_SIZE",
		"executor.fetch_concurrency":      "EXECUTOR_FETCH_CONCURRENCY",
		"executor.dry_run":                "EXECUTOR_DRY_RUN",
		"executor.include_detailed_ids":   "EXECUTOR_INCLUDE_DETAILED_IDS",
		"executor.user_query":             "EXECUTOR_USER_QUERY",
		"executor.allow_permanent_delete": "ALLOW_PERMANENT_DELETE",

		"jobs.max_completed":               "JOBS_MAX_COMPLETED",
		"jobs.snapshot_interval_ms":        "JOBS_SNAPSHOT_INTERVAL_MS",
		"jobs.max_snapshots_per_operation": "JOBS_MAX_SNAPSHOTS_PER_OPERATION",

		"cache.details_ttl": "CACHE_DETAILS_TTL",
		"cache.disabled":    "DISABLE_CACHE",

		"log.level": "LOG_LEVEL",
	}

	for configKey, envVar := range oldEnvBindings {
		v.BindEnv(configKey, envVar)
	}
}

// loadConfigFile loads configuration file if it exists
func loadConfigFile(v *viper.Viper) error {
	// Check if a specific config file was set
	if v.ConfigFileUsed() == "" {
		// Add configuration search paths
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.email-automation")

		// Set configuration file name (without extension)
		v.SetConfigName("email-automation")
	}

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, only return error if it's not a "not found" error
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return nil
}

// unmarshalServerConfig unmarshals Viper configuration into the server Config struct
func unmarshalServerConfig(v *viper.Viper, config *Config) error {
	config.ServerHost = v.GetString("server.host")
	config.ServerPort = v.GetString("server.port")
	config.APIKey = v.GetString("server.api_key")

	var err error
	config.ShutdownTimeout, err = time.ParseDuration(v.GetString("server.shutdown_timeout"))
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	config.RulesPath = v.GetString("store.path")

	config.HistoryDBPath = v.GetString("history.db_path")
	config.HistoryMaxRuns = v.GetInt("history.max_runs")

	config.GmailClientID = v.GetString("gmail.client_id")
	config.GmailClientSecret = v.GetString("gmail.client_secret")
	config.GmailRefreshToken = v.GetString("gmail.refresh_token")
	config.GmailAccessToken = v.GetString("gmail.access_token")
	config.GmailTokenFile = v.GetString("gmail.token_file")
	config.GmailUserEmail = v.GetString("gmail.user_email")

	config.GmailRequestTimeout, err = time.ParseDuration(v.GetString("gmail.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid gmail request timeout: %w", err)
	}

	config.RateLimitBaseDelay = time.Duration(v.GetInt("rate_limit.base_delay_ms")) * time.Millisecond
	config.RateLimitMaxRetries = v.GetInt("rate_limit.max_retries")
	config.RateLimitBackoffFactor = v.GetFloat64("rate_limit.backoff_factor")
	config.DisableRateLimit = v.GetBool("rate_limit.disabled")

	config.ExecutorScanLimit = v.GetInt("executor.scan_limit")
	config.ExecutorPageSize = v.GetInt("executor.page_size")
	config.ExecutorFlushChunkSize = v.GetInt("executor.flush_chunk_size")
	config.ExecutorFetchConcurrency = v.GetInt("executor.fetch_concurrency")
	config.ExecutorDryRun = v.GetBool("executor.dry_run")
	config.ExecutorIncludeDetailedIDs = v.GetBool("executor.include_detailed_ids")
	config.ExecutorUserQuery = v.GetString("executor.user_query")
	config.AllowPermanentDelete = v.GetBool("executor.allow_permanent_delete")

	config.JobsMaxCompleted = v.GetInt("jobs.max_completed")
	config.SnapshotInterval = time.Duration(v.GetInt("jobs.snapshot_interval_ms")) * time.Millisecond
	config.MaxSnapshotsPerOperation = v.GetInt("jobs.max_snapshots_per_operation")

	config.CacheDetailsTTL, err = time.ParseDuration(v.GetString("cache.details_ttl"))
	if err != nil {
		return fmt.Errorf("invalid cache details TTL: %w", err)
	}
	config.DisableCache = v.GetBool("cache.disabled")

	config.LogLevel = v.GetString("log.level")

	return nil
}

// LoadServerConfig loads server configuration using default Viper instance
func LoadServerConfig() (*Config, error) {
	v := viper.New()
	return LoadServerConfigWithViper(v)
}

// LoadServerConfigWithFile loads server configuration from a specific file
func LoadServerConfigWithFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadServerConfigWithViper(v)
}

// LoadServerConfigWithEnvFile loads server configuration after applying a .env file
func LoadServerConfigWithEnvFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := loadDefaultEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	return LoadServerConfigWithViper(v)
}
