package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"email-automation/internal/cli"
)

// LoadCLIConfigWithViper loads CLI configuration using Viper
func LoadCLIConfigWithViper(v *viper.Viper) (*cli.Config, error) {
	// Set defaults
	setCLIDefaults(v)

	// Set up environment variable binding
	setupCLIEnvBinding(v)

	// Load configuration file if specified
	if err := loadCLIConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Unmarshal configuration
	config := &cli.Config{}
	if err := unmarshalCLIConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateCLIConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setCLIDefaults sets default values for CLI configuration
func setCLIDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("format", "table")
	v.SetDefault("quiet", false)
	v.SetDefault("no_color", false)
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("retry_count", 3)
	v.SetDefault("retry_delay", "1s")
	v.SetDefault("backoff_factor", 2.0)
}

// setupCLIEnvBinding sets up environment variable binding for CLI configuration
func setupCLIEnvBinding(v *viper.Viper) {
	// Set environment variable prefix
	v.SetEnvPrefix("EMAIL_AUTOMATION")
	v.AutomaticEnv()

	// Bind new format environment variables
	envBindings := map[string]string{
		"server_url":      "CLI_SERVER_URL",
		"format":          "CLI_FORMAT",
		"quiet":           "CLI_QUIET",
		"no_color":        "CLI_NO_COLOR",
		"request_timeout": "CLI_TIMEOUT",
		"retry_count":     "CLI_RETRY_COUNT",
		"retry_delay":     "CLI_RETRY_DELAY",
		"backoff_factor":  "CLI_BACKOFF_FACTOR",
	}

	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, "EMAIL_AUTOMATION_"+envSuffix)
	}

	// Bind old format environment variables for backward compatibility
	oldEnvBindings := map[string]string{
		"server_url":      "EMAIL_AUTOMATION_SERVER",
		"format":          "EMAIL_AUTOMATION_FORMAT",
		"quiet":           "EMAIL_AUTOMATION_QUIET",
		"no_color":        "EMAIL_AUTOMATION_NO_COLOR",
		"request_timeout": "EMAIL_AUTOMATION_TIMEOUT",
	}

	for configKey, envVar := range oldEnvBindings {
		v.BindEnv(configKey, envVar)
	}

	// Special handling for NO_COLOR environment variable
	v.BindEnv("no_color", "NO_COLOR")
}

// loadCLIConfigFile loads configuration file if it exists
func loadCLIConfigFile(v *viper.Viper) error {
	// Check if a specific config file was set
	if v.ConfigFileUsed() == "" {
		// Add configuration search paths
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME")

		// Set configuration file name (without extension)
		v.SetConfigName("cli")
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

// unmarshalCLIConfig unmarshals Viper configuration into CLI Config struct
func unmarshalCLIConfig(v *viper.Viper, config *cli.Config) error {
	config.ServerURL = v.GetString("server_url")
	config.Format = v.GetString("format")
	config.Quiet = v.GetBool("quiet")
	config.NoColor = v.GetBool("no_color")
	config.RetryCount = v.GetInt("retry_count")
	config.BackoffFactor = v.GetFloat64("backoff_factor")

	var err error
	config.RequestTimeout, err = parseCLIDuration(v.GetString("request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid request timeout: %w", err)
	}

	config.RetryDelay, err = parseCLIDuration(v.GetString("retry_delay"))
	if err != nil {
		return fmt.Errorf("invalid retry delay: %w", err)
	}

	return nil
}

// parseCLIDuration accepts either a duration string ("30s") or a bare number
// of seconds ("30").
func parseCLIDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration cannot be empty")
	}

	if duration, err := time.ParseDuration(s); err == nil {
		return duration, nil
	}

	seconds, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as duration", s)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %d seconds", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// validateCLIConfig validates CLI configuration
func validateCLIConfig(config *cli.Config) error {
	if config.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	// Basic check for URL structure
	if !strings.HasPrefix(config.ServerURL, "http://") && !strings.HasPrefix(config.ServerURL, "https://") {
		return fmt.Errorf("invalid server URL format")
	}

	// Validate format
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if config.Format == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format: %s (must be one of: table, json)", config.Format)
	}

	// Validate timeout and retry settings
	if config.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if config.RetryCount < 0 || config.RetryCount > 10 {
		return fmt.Errorf("retry count must be between 0 and 10")
	}
	if config.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	if config.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff factor must be at least 1.0")
	}

	return nil
}

// LoadCLIConfig loads CLI configuration using default Viper instance
func LoadCLIConfig() (*cli.Config, error) {
	v := viper.New()
	return LoadCLIConfigWithViper(v)
}

// LoadCLIConfigWithFile loads CLI configuration from a specific file
func LoadCLIConfigWithFile(configFile string) (*cli.Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadCLIConfigWithViper(v)
}
