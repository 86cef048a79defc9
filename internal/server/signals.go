package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalHandler manages graceful shutdown of the HTTP server. Optional hooks
// run after the listener has drained, inside the same shutdown deadline, so
// background machinery (job manager, database) stops only once no request can
// reach it anymore.
type SignalHandler struct {
	server          *http.Server
	shutdownTimeout time.Duration
	hooks           []func(context.Context)
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(server *http.Server, shutdownTimeout time.Duration, hooks ...func(context.Context)) *SignalHandler {
	return &SignalHandler{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		hooks:           hooks,
	}
}

// WaitForShutdown waits for shutdown signals and handles graceful shutdown
func (sh *SignalHandler) WaitForShutdown() {
	quit := make(chan os.Signal, 1)

	// SIGINT - typically sent by Ctrl+C
	// SIGTERM - standard termination signal sent by process managers
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal: %v", sig)
	log.Println("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), sh.shutdownTimeout)
	defer cancel()

	if err := sh.server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown due to timeout: %v", err)
	} else {
		log.Println("Server gracefully shut down")
	}

	for _, hook := range sh.hooks {
		hook(ctx)
	}
}

// HandleSignals starts the server and blocks until a shutdown signal has been
// handled. SIGKILL cannot be caught; only SIGINT and SIGTERM shut down
// gracefully.
func HandleSignals(server *http.Server, shutdownTimeout time.Duration, hooks ...func(context.Context)) error {
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	handler := NewSignalHandler(server, shutdownTimeout, hooks...)
	handler.WaitForShutdown()

	return nil
}
