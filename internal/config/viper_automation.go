package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadAutomationConfigWithViper loads autopilot configuration using Viper
func LoadAutomationConfigWithViper(v *viper.Viper) (*AutomationConfig, error) {
	// Set defaults
	setAutomationDefaults(v)

	// Set up environment variable binding
	setupAutomationEnvBinding(v)

	// Load configuration file if specified
	if err := loadAutomationConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Unmarshal configuration
	config := &AutomationConfig{}
	if err := unmarshalAutomationConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setAutomationDefaults sets default values for autopilot configuration
func setAutomationDefaults(v *viper.Viper) {
	// Gmail defaults
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.refresh_token", "")
	v.SetDefault("gmail.access_token", "")
	v.SetDefault("gmail.token_file", "./gmail-token.json")
	v.SetDefault("gmail.user_email", "")
	v.SetDefault("gmail.request_timeout", "30s")

	// Rule store defaults
	v.SetDefault("store.path", "./rules.json")

	// Sweep defaults
	v.SetDefault("automation.sweep_interval", "1h")
	v.SetDefault("automation.initial_delay", "30s")
	v.SetDefault("automation.dry_run", false)
	v.SetDefault("automation.admin_addr", "")

	// Executor defaults
	v.SetDefault("executor.scan_limit", 0)
	v.SetDefault("executor.page_size", 50)
	v.SetDefault("executor.flush_chunk_size", 500)
	v.SetDefault("executor.fetch_concurrency", 4)
	v.SetDefault("executor.include_detailed_ids", false)
	v.SetDefault("executor.user_query", "")
	v.SetDefault("executor.allow_permanent_delete", false)

	// Rate limiting defaults
	v.SetDefault("rate_limit.base_delay_ms", 100)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.backoff_factor", 2.0)
	v.SetDefault("rate_limit.disabled", false)

	// Run history defaults
	v.SetDefault("history.db_path", "./automation-runs.db")
	v.SetDefault("history.max_runs", 500)

	// Cache defaults
	v.SetDefault("cache.details_ttl", "5m")
	v.SetDefault("cache.disabled", false)

	// Logging defaults
	v.SetDefault("log.level", "info")
}

// setupAutomationEnvBinding sets up environment variable binding for autopilot configuration
func setupAutomationEnvBinding(v *viper.Viper) {
	// Set environment variable prefix
	v.SetEnvPrefix("EMAIL_AUTOMATION")
	v.AutomaticEnv()

	// Bind new format environment variables
	envBindings := map[string]string{
		// Gmail
		"gmail.client_id":       "GMAIL_CLIENT_ID",
		"gmail.client_secret":   "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":   "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":    "GMAIL_ACCESS_TOKEN",
		"gmail.token_file":      "GMAIL_TOKEN_FILE",
		"gmail.user_email":      "GMAIL_USER_EMAIL",
		"gmail.request_timeout": "GMAIL_REQUEST_TIMEOUT",

		// Rule store
		"store.path": "STORE_PATH",

		// Sweep
		"automation.sweep_interval": "AUTOMATION_SWEEP_INTERVAL",
		"automation.initial_delay":  "AUTOMATION_INITIAL_DELAY",
		"automation.dry_run":        "AUTOMATION_DRY_RUN",
		"automation.admin_addr":     "AUTOMATION_ADMIN_ADDR",

		// Executor
		"executor.scan_limit":             "EXECUTOR_SCAN_LIMIT",
		"executor.page_size":              "EXECUTOR_PAGE_SIZE",
		"executor.flush_chunk_size":       "EXECUTOR_FLUSH_CHUNK_SIZE",
		"executor.fetch_concurrency":      "EXECUTOR_FETCH_CONCURRENCY",
		"executor.include_detailed_ids":   "EXECUTOR_INCLUDE_DETAILED_IDS",
		"executor.user_query":             "EXECUTOR_USER_QUERY",
		"executor.allow_permanent_delete": "EXECUTOR_ALLOW_PERMANENT_DELETE",

		// Rate limiting
		"rate_limit.base_delay_ms":  "RATE_LIMIT_BASE_DELAY_MS",
		"rate_limit.max_retries":    "RATE_LIMIT_MAX_RETRIES",
		"rate_limit.backoff_factor": "RATE_LIMIT_BACKOFF_FACTOR",
		"rate_limit.disabled":       "RATE_LIMIT_DISABLED",

		// Run history
		"history.db_path":  "HISTORY_DB_PATH",
		"history.max_runs": "HISTORY_MAX_RUNS",

		// Cache
		"cache.details_ttl": "CACHE_DETAILS_TTL",
		"cache.disabled":    "CACHE_DISABLED",

		// Logging
		"log.level": "LOG_LEVEL",
	}

	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, "EMAIL_AUTOMATION_"+envSuffix)
	}

	// Bind bare environment variables for backward compatibility
	oldEnvBindings := map[string]string{
		// Gmail
		"gmail.client_id":       "GMAIL_CLIENT_ID",
		"gmail.client_secret":   "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":   "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":    "GMAIL_ACCESS_TOKEN",
		"gmail.token_file":      "GMAIL_TOKEN_FILE",
		"gmail.user_email":      "GMAIL_USER_EMAIL",
		"gmail.request_timeout": "GMAIL_REQUEST_TIMEOUT",

		// Rule store
		"store.path": "RULES_PATH",

		// Sweep
		"automation.sweep_interval": "AUTOMATION_SWEEP_INTERVAL",
		"automation.initial_delay":  "AUTOMATION_INITIAL_DELAY",
		"automation.dry_run":        "AUTOMATION_DRY_RUN",
		"automation.admin_addr":     "AUTOMATION_ADMIN_ADDR",

		// Executor
		"executor.scan_limit":             "EXECUTOR_SCAN_LIMIT",
		"executor.page_size":              "EXECUTOR_PAGE_SIZE",
		"executor.flush_chunk_size":       "EXECUTOR_FLUSH_CHUNK_SIZE",
		"executor.fetch_concurrency":      "EXECUTOR_FETCH_CONCURRENCY",
		"executor.include_detailed_ids":   "EXECUTOR_INCLUDE_DETAILED_IDS",
		"executor.user_query":             "EXECUTOR_USER_QUERY",
		"executor.allow_permanent_delete": "ALLOW_PERMANENT_DELETE",

		// Rate limiting
		"rate_limit.base_delay_ms":  "RATE_LIMIT_BASE_DELAY_MS",
		"rate_limit.max_retries":    "RATE_LIMIT_MAX_RETRIES",
		"rate_limit.backoff_factor": "RATE_LIMIT_BACKOFF_FACTOR",
		"rate_limit.disabled":       "DISABLE_RATE_LIMIT",

		// Run history
		"history.db_path":  "HISTORY_DB_PATH",
		"history.max_runs": "HISTORY_MAX_RUNS",

		// Cache
		"cache.details_ttl": "CACHE_DETAILS_TTL",
		"cache.disabled":    "DISABLE_CACHE",

		// Logging
		"log.level": "LOG_LEVEL",
	}

	for configKey, envVar := range oldEnvBindings {
		v.BindEnv(configKey, envVar)
	}
}

// loadAutomationConfigFile loads configuration file if it exists
func loadAutomationConfigFile(v *viper.Viper) error {
	// Check if a specific config file was set
	if v.ConfigFileUsed() == "" {
		// Add configuration search paths
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.email-automation")

		// Set configuration file name (without extension)
		v.SetConfigName("autopilot")
	}

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, only return error if it's not a "not found" error
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}

	return nil
}

// unmarshalAutomationConfig unmarshals Viper configuration into AutomationConfig struct
func unmarshalAutomationConfig(v *viper.Viper, config *AutomationConfig) error {
	// Gmail configuration
	config.Gmail.ClientID = v.GetString("gmail.client_id")
	config.Gmail.ClientSecret = v.GetString("gmail.client_secret")
	config.Gmail.RefreshToken = v.GetString("gmail.refresh_token")
	config.Gmail.AccessToken = v.GetString("gmail.access_token")
	config.Gmail.TokenFile = v.GetString("gmail.token_file")
	config.Gmail.UserEmail = v.GetString("gmail.user_email")

	var err error
	config.Gmail.RequestTimeout, err = time.ParseDuration(v.GetString("gmail.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid gmail request timeout: %w", err)
	}

	// Rule store configuration
	config.Store.Path = v.GetString("store.path")

	// Sweep configuration
	config.Automation.SweepInterval, err = time.ParseDuration(v.GetString("automation.sweep_interval"))
	if err != nil {
		return fmt.Errorf("invalid sweep interval: %w", err)
	}

	config.Automation.InitialDelay, err = time.ParseDuration(v.GetString("automation.initial_delay"))
	if err != nil {
		return fmt.Errorf("invalid initial delay: %w", err)
	}

	config.Automation.DryRun = v.GetBool("automation.dry_run")
	config.Automation.AdminAddr = v.GetString("automation.admin_addr")

	// Executor configuration
	config.Executor.ScanLimit = v.GetInt("executor.scan_limit")
	config.Executor.PageSize = v.GetInt("executor.page_size")
	config.Executor.FlushChunkSize = v.GetInt("executor.flush_chunk_size")
	config.Executor.FetchConcurrency = v.GetInt("executor.fetch_concurrency")
	config.Executor.IncludeDetailedIDs = v.GetBool("executor.include_detailed_ids")
	config.Executor.UserQuery = v.GetString("executor.user_query")
	config.Executor.AllowPermanentDelete = v.GetBool("executor.allow_permanent_delete")

	// Rate limiting configuration
	config.RateLimit.BaseDelay = time.Duration(v.GetInt("rate_limit.base_delay_ms")) * time.Millisecond
	config.RateLimit.MaxRetries = v.GetInt("rate_limit.max_retries")
	config.RateLimit.BackoffFactor = v.GetFloat64("rate_limit.backoff_factor")
	config.RateLimit.Disabled = v.GetBool("rate_limit.disabled")

	// Run history configuration
	config.History.DBPath = v.GetString("history.db_path")
	config.History.MaxRuns = v.GetInt("history.max_runs")

	// Cache configuration
	config.Cache.DetailsTTL, err = time.ParseDuration(v.GetString("cache.details_ttl"))
	if err != nil {
		return fmt.Errorf("invalid cache details TTL: %w", err)
	}
	config.Cache.Disabled = v.GetBool("cache.disabled")

	// Logging configuration
	config.Log.Level = v.GetString("log.level")

	return nil
}

// LoadAutomationConfigViper loads autopilot configuration using default Viper instance
func LoadAutomationConfigViper() (*AutomationConfig, error) {
	v := viper.New()
	return LoadAutomationConfigWithViper(v)
}

// LoadAutomationConfigWithFile loads autopilot configuration from a specific file
func LoadAutomationConfigWithFile(configFile string) (*AutomationConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadAutomationConfigWithViper(v)
}
