// Copyright 2024 Email Automation Platform
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	gmailapi "google.golang.org/api/gmail/v1"

	"email-automation/internal/config"
	"email-automation/internal/database"
	"email-automation/internal/gmail"
	"email-automation/internal/handlers"
	"email-automation/internal/jobs"
	"email-automation/internal/pipeline"
	"email-automation/internal/progress"
	"email-automation/internal/ratelimit"
	"email-automation/internal/rules"
	"email-automation/internal/workers"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"

	// shutdownTimeout bounds the graceful drain of an in-flight sweep.
	shutdownTimeout = 30 * time.Second
)

var (
	configFile string
	dryRun     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Unattended sweep daemon for the email automation platform",
	Long: `Autopilot Service v1.0.0

DESCRIPTION:
    Runs unattended mailbox sweeps: on a fixed interval every enabled
    automation rule is applied to the mailbox, and each cycle's outcome is
    recorded in the run history database.

CONFIGURATION:
    Configuration is done via environment variables, .env files, and
    optional YAML/TOML/JSON config files:

    Gmail API Configuration:
        GMAIL_CLIENT_ID          - OAuth2 client ID (required)
        GMAIL_CLIENT_SECRET      - OAuth2 client secret (required)
        GMAIL_REFRESH_TOKEN      - OAuth2 refresh token
        GMAIL_ACCESS_TOKEN       - OAuth2 access token
        GMAIL_TOKEN_FILE         - Token storage file (default: ./gmail-token.json)
        GMAIL_USER_EMAIL         - Mailbox to operate on (default: authenticated user)
        GMAIL_REQUEST_TIMEOUT    - Per-request timeout (default: 30s)

    Rule Store:
        RULES_PATH               - Rule file location (default: ./rules.json)

    Sweep Scheduling:
        AUTOMATION_SWEEP_INTERVAL - Time between sweep cycles (default: 1h)
        AUTOMATION_INITIAL_DELAY  - Delay before the first cycle (default: 30s)
        AUTOMATION_DRY_RUN        - Plan actions without writing (default: false)
        AUTOMATION_ADMIN_ADDR     - Embedded admin endpoint, empty disables (default: "")

    Executor Tuning:
        EXECUTOR_SCAN_LIMIT        - Max candidates per sweep, 0 = unbounded (default: 0)
        EXECUTOR_PAGE_SIZE         - Candidates per list call (default: 50)
        EXECUTOR_FLUSH_CHUNK_SIZE  - Ids per batch write (default: 500)
        EXECUTOR_FETCH_CONCURRENCY - Parallel detail fetches (default: 4)
        EXECUTOR_USER_QUERY        - Extra narrowing query for every rule (default: "")
        ALLOW_PERMANENT_DELETE     - Let delete_permanent actions through (default: false)

    Rate Limiting:
        RATE_LIMIT_BASE_DELAY_MS  - Pacing delay between provider calls (default: 100)
        RATE_LIMIT_MAX_RETRIES    - Retries per provider call (default: 3)
        RATE_LIMIT_BACKOFF_FACTOR - Exponential backoff factor (default: 2.0)
        DISABLE_RATE_LIMIT        - Turn off pacing, keep retries (default: false)

    Run History:
        HISTORY_DB_PATH           - SQLite database location (default: ./automation-runs.db)
        HISTORY_MAX_RUNS          - Runs retained after pruning (default: 500)

    Cache:
        CACHE_DETAILS_TTL         - Per-run details cache TTL (default: 5m)
        DISABLE_CACHE             - Turn off the details cache (default: false)

    Logging:
        LOG_LEVEL                 - debug, info, warn, or error (default: info)

EXAMPLES:
    # Basic usage with OAuth2
    export GMAIL_CLIENT_ID="your-client-id"
    export GMAIL_CLIENT_SECRET="your-client-secret"
    export GMAIL_REFRESH_TOKEN="your-refresh-token"
    autopilot

    # With custom configuration file
    autopilot --config=autopilot.yaml

    # Dry run mode for testing
    autopilot --dry-run

    # Hourly sweeps with an admin endpoint for pause/resume
    echo "AUTOMATION_SWEEP_INTERVAL=1h" > .env.prod
    echo "AUTOMATION_ADMIN_ADDR=localhost:8081" >> .env.prod
    autopilot --config=.env.prod`,
	Version: "1.0.0",
	RunE:    runAutopilot,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Add CLI flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env in current directory)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "plan actions without writing to the mailbox")
}

// loadConfiguration loads configuration from files and environment variables
func loadConfiguration() (*config.AutomationConfig, error) {
	var cfg *config.AutomationConfig
	var err error

	if configFile != "" {
		// Check if it's a .env file or a structured config file
		if strings.HasSuffix(configFile, ".env") || !strings.Contains(configFile, ".") || strings.HasPrefix(filepath.Base(configFile), ".env") {
			// Use the legacy .env loader for .env files
			cfg, err = config.LoadAutomationConfigWithEnvFile(configFile)
		} else {
			// Validate config file path for security (prevent directory traversal)
			if err := config.ValidateConfigFilePath(configFile); err != nil {
				return nil, fmt.Errorf("failed to load configuration: %w", err)
			}
			// Use the Viper loader for YAML/TOML/JSON files
			cfg, err = config.LoadAutomationConfigWithFile(configFile)
		}
	} else {
		// Try Viper first (supports auto-discovery), fall back to legacy
		cfg, err = config.LoadAutomationConfigViper()
		if err != nil {
			cfg, err = config.LoadAutomationConfig()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override with CLI flags
	if dryRun {
		originalValue := cfg.Automation.DryRun
		cfg.Automation.DryRun = true
		if !originalValue {
			// Note: Using fmt.Printf since logger isn't available yet
			fmt.Printf("DEBUG: CLI flag --dry-run overriding config value: %v -> %v\n", originalValue, true)
		}
	}

	return cfg, nil
}

// initConfig is called by cobra during initialization
func initConfig() {
	// Configuration loading happens in runAutopilot; this hook is kept for
	// cobra initialization compatibility.
}

// runAutopilot is the main execution function for the autopilot daemon
func runAutopilot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))

	logger.Info("Starting autopilot service",
		"version", Version,
		"build_date", BuildDate)

	logger.Info("Configuration loaded successfully",
		"dry_run", cfg.Automation.DryRun,
		"sweep_interval", cfg.Automation.SweepInterval,
		"rules_path", cfg.Store.Path)

	// Initialize the paced Gmail provider
	provider, err := createGmailClient(cfg, logger)
	if err != nil {
		logger.Error("Failed to create Gmail client", "error", err)
		return fmt.Errorf("failed to create Gmail client: %w", err)
	}

	// Verify the mailbox connection before starting the sweep loop
	checkCtx, cancel := context.WithTimeout(context.Background(), cfg.Gmail.RequestTimeout)
	err = provider.HealthCheck(checkCtx)
	cancel()
	if err != nil {
		logger.Error("Gmail health check failed", "error", err)
		return fmt.Errorf("gmail health check failed: %w", err)
	}

	logger.Info("Gmail client initialized successfully")

	resolver := gmail.NewLabelResolver(provider)

	// Initialize the rule store
	store := rules.NewStore(cfg.Store.Path, cfg.Executor.AllowPermanentDelete, logger)
	logger.Info("Rule store initialized", "path", store.Path())

	// Initialize run history persistence
	db, err := database.Open(cfg.History.DBPath)
	if err != nil {
		logger.Error("Failed to open run history database", "error", err)
		return fmt.Errorf("failed to open run history database: %w", err)
	}
	defer db.Close()

	logger.Info("Run history initialized", "db_path", cfg.History.DBPath)

	// Progress tracking surfaces sweep internals at debug level
	tracker := progress.NewTracker(0, 0, logger)
	tracker.OnUpdate(func(snap progress.Snapshot) {
		logger.Debug("Sweep progress",
			"operation", snap.Name,
			"step", snap.StepName,
			"percent", snap.OverallPercent,
			"message", snap.Message)
	})

	executor := pipeline.NewExecutor(provider, resolver, store, tracker, pipeline.Config{
		PageSize:             int64(cfg.Executor.PageSize),
		ScanLimit:            cfg.Executor.ScanLimit,
		FlushChunkSize:       cfg.Executor.FlushChunkSize,
		FetchConcurrency:     cfg.Executor.FetchConcurrency,
		IncludeDetailedIDs:   cfg.Executor.IncludeDetailedIDs,
		UserQuery:            cfg.Executor.UserQuery,
		AllowPermanentDelete: cfg.Executor.AllowPermanentDelete,
		DetailsTTL:           cfg.Cache.DetailsTTL,
		DisableDetailsCache:  cfg.Cache.Disabled,
	}, logger)

	// Finished cycles are persisted to the history store, so the in-memory
	// manager only retains a handful for inspection.
	manager := jobs.NewManager(10, logger)
	runner := workers.NewRunner(manager, executor, db.Runs, cfg.History.MaxRuns, logger)

	sweeper := workers.NewSweeper(runner, cfg.Automation, logger)
	sweeper.Start()

	// Optional embedded admin endpoint for pause/resume control
	var adminSrv *http.Server
	if cfg.Automation.AdminAddr != "" {
		adminSrv = startAdminServer(cfg.Automation.AdminAddr, handlers.NewAdminHandler(sweeper, logger), logger)
	}

	logger.Info("Autopilot service started successfully")

	// Handle graceful shutdown
	if err := handleSignals(sweeper, manager, adminSrv, logger); err != nil {
		logger.Error("Service error", "error", err)
		return fmt.Errorf("service error: %w", err)
	}

	metrics := sweeper.Metrics()
	logger.Info("Autopilot service stopped gracefully",
		"cycles", metrics.Cycles,
		"emails_scanned", metrics.EmailsScanned,
		"emails_matched", metrics.EmailsMatched,
		"actions_taken", metrics.ActionsTaken,
		"errors", metrics.Errors)
	return nil
}

// createGmailClient creates and configures the paced Gmail client
func createGmailClient(cfg *config.AutomationConfig, logger *slog.Logger) (*gmail.Client, error) {
	var extraScopes []string
	if cfg.Executor.AllowPermanentDelete {
		// Permanent deletion needs full mailbox access, not just modify
		extraScopes = append(extraScopes, gmailapi.MailGoogleComScope)
	}

	service, err := gmail.NewService(context.Background(), &gmail.Credentials{
		ClientID:       cfg.Gmail.ClientID,
		ClientSecret:   cfg.Gmail.ClientSecret,
		RefreshToken:   cfg.Gmail.RefreshToken,
		AccessToken:    cfg.Gmail.AccessToken,
		TokenFile:      cfg.Gmail.TokenFile,
		UserEmail:      cfg.Gmail.UserEmail,
		RequestTimeout: cfg.Gmail.RequestTimeout,
	}, extraScopes...)
	if err != nil {
		return nil, err
	}

	pacer := ratelimit.NewPacer(cfg.RateLimit)
	if cfg.RateLimit.Disabled {
		logger.Warn("Provider rate limiting disabled")
		pacer = ratelimit.NewDisabledPacer(cfg.RateLimit)
	}

	return gmail.NewClient(service, cfg.Gmail.UserEmail, pacer, logger), nil
}

// startAdminServer serves the pause/resume endpoints on its own listener so
// the daemon stays controllable without exposing the full API surface.
func startAdminServer(addr string, admin *handlers.AdminHandler, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Route("/api/admin/sweeper", func(r chi.Router) {
		r.Get("/status", admin.GetSweeperStatus)
		r.Post("/pause", admin.PauseSweeper)
		r.Post("/resume", admin.ResumeSweeper)
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Admin endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin endpoint failed", "error", err)
		}
	}()

	return srv
}

// handleSignals handles graceful shutdown on system signals
func handleSignals(sweeper *workers.Sweeper, manager *jobs.Manager, adminSrv *http.Server, logger *slog.Logger) error {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalChan
	logger.Info("Received shutdown signal", "signal", sig)

	logger.Info("Starting graceful shutdown...")

	// Stop scheduling new cycles, then drain the in-flight one
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Job manager shutdown incomplete", "error", err)
	}

	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Admin endpoint shutdown incomplete", "error", err)
		}
	}

	logger.Info("Graceful shutdown completed")
	return nil
}

// logLevel maps the configured level name to a slog level, defaulting to info.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
