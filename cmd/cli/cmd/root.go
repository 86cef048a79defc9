package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"email-automation/internal/api"
	"email-automation/internal/cli"
)

var (
	serverURL string
	format    string
	quiet     bool
	noColor   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "email-automation",
	Short: "CLI client for the email automation API",
	Long: `Email Automation CLI manages mailbox rules and automation runs through
a REST API. You can define rules, trigger runs against your mailbox, follow
job progress, and inspect the run history.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "API server address")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")

	// Bind environment variables
	rootCmd.PersistentFlags().Lookup("server").DefValue = getEnvOrDefault("EMAIL_AUTOMATION_SERVER", "http://localhost:8080")
	rootCmd.PersistentFlags().Lookup("format").DefValue = getEnvOrDefault("EMAIL_AUTOMATION_FORMAT", "table")
	rootCmd.PersistentFlags().Lookup("quiet").DefValue = getEnvOrDefault("EMAIL_AUTOMATION_QUIET", "false")
	rootCmd.PersistentFlags().Lookup("no-color").DefValue = getEnvOrDefault("NO_COLOR", "false")
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(envVar, defaultVal string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultVal
}

// buildClient sets up configuration, formatter, and API client without
// probing the server. Commands that report server state use it directly.
func buildClient() (*cli.Config, *cli.OutputFormatter, *api.Client, error) {
	config, err := cli.LoadConfig(serverURL, format, quiet)
	if err != nil {
		return nil, nil, nil, err
	}

	formatter := cli.NewOutputFormatterWithColor(config.Format, config.Quiet, noColor)
	client, err := api.NewClient(&api.ClientConfig{
		BaseURL:       config.ServerURL,
		Timeout:       config.RequestTimeout,
		RetryCount:    config.RetryCount,
		RetryDelay:    config.RetryDelay,
		BackoffFactor: config.BackoffFactor,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return config, formatter, client, nil
}

// initializeClient sets up configuration, formatter, and API client
func initializeClient() (*cli.Config, *cli.OutputFormatter, *api.Client, error) {
	config, formatter, client, err := buildClient()
	if err != nil {
		return nil, nil, nil, err
	}

	// Test connectivity
	if err := client.HealthCheck(); err != nil {
		formatter.PrintError(err)
		return nil, nil, nil, err
	}

	return config, formatter, client, nil
}
