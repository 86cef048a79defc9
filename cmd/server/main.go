package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

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
	"email-automation/internal/server"
	"email-automation/internal/workers"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	// Initialize run history database
	db, err := database.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Run history database initialized at %s", cfg.HistoryDBPath)

	// Rule store (file-backed, read fresh on every operation)
	store := rules.NewStore(cfg.RulesPath, cfg.AllowPermanentDelete, logger)
	log.Printf("Rule store initialized at %s", cfg.RulesPath)

	// Gmail client
	provider, err := createGmailClient(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize Gmail client: %v", err)
	}
	resolver := gmail.NewLabelResolver(provider)

	// Pipeline executor with progress tracking
	tracker := progress.NewTracker(cfg.SnapshotInterval, cfg.MaxSnapshotsPerOperation, logger)

	executor := pipeline.NewExecutor(provider, resolver, store, tracker, pipeline.Config{
		PageSize:             int64(cfg.ExecutorPageSize),
		ScanLimit:            cfg.ExecutorScanLimit,
		FlushChunkSize:       cfg.ExecutorFlushChunkSize,
		FetchConcurrency:     cfg.ExecutorFetchConcurrency,
		DryRun:               cfg.ExecutorDryRun,
		IncludeDetailedIDs:   cfg.ExecutorIncludeDetailedIDs,
		UserQuery:            cfg.ExecutorUserQuery,
		AllowPermanentDelete: cfg.AllowPermanentDelete,
		DetailsTTL:           cfg.CacheDetailsTTL,
		DisableDetailsCache:  cfg.GetDisableCache(),
	}, logger)

	// Async job manager and run recorder
	manager := jobs.NewManager(cfg.JobsMaxCompleted, logger)
	runner := workers.NewRunner(manager, executor, db.Runs, cfg.HistoryMaxRuns, logger)

	// Create router and register routes
	h := &server.Handlers{
		Rules:  handlers.NewRuleHandler(store),
		Jobs:   handlers.NewJobHandler(runner, manager),
		Runs:   handlers.NewRunHandler(db.Runs),
		Labels: handlers.NewLabelHandler(resolver),
		Health: handlers.NewHealthHandler(db, store),
		APIKey: cfg.APIKey,
	}
	router := server.NewRouter(h)

	// Create HTTP server with middleware
	handler := server.Chain(
		router,
		server.LoggingMiddleware,
		server.RecoveryMiddleware,
		server.CORSMiddleware,
		server.ContentTypeMiddleware,
		server.SecurityMiddleware,
	)

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: handler,

		// Timeouts
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle server startup and graceful shutdown. Running automation jobs
	// drain before main returns and the database closes beneath them.
	if err := server.HandleSignals(srv, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := manager.Shutdown(ctx); err != nil {
			log.Printf("Job manager shutdown incomplete: %v", err)
		}
	}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// createGmailClient builds the authenticated Gmail client the executor and
// label handlers share. Permanent deletion requires the full mail scope, so
// it is requested only when the deployment opts in.
func createGmailClient(cfg *config.Config, logger *slog.Logger) (*gmail.Client, error) {
	var extraScopes []string
	if cfg.AllowPermanentDelete {
		extraScopes = append(extraScopes, gmailapi.MailGoogleComScope)
	}

	service, err := gmail.NewService(context.Background(), &gmail.Credentials{
		ClientID:       cfg.GmailClientID,
		ClientSecret:   cfg.GmailClientSecret,
		RefreshToken:   cfg.GmailRefreshToken,
		AccessToken:    cfg.GmailAccessToken,
		TokenFile:      cfg.GmailTokenFile,
		UserEmail:      cfg.GmailUserEmail,
		RequestTimeout: cfg.GmailRequestTimeout,
	}, extraScopes...)
	if err != nil {
		return nil, err
	}

	pacer := ratelimit.NewPacer(cfg)
	if cfg.GetDisableRateLimit() {
		logger.Warn("Gmail API rate limiting is disabled")
		pacer = ratelimit.NewDisabledPacer(cfg)
	}

	return gmail.NewClient(service, cfg.GmailUserEmail, pacer, logger), nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
