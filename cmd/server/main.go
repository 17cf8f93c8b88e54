/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clearance engine server. Handles
  configuration loading, dependency wiring, the optional background
  refresh loop, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize SQLite store
  3. Wire source client, refresher, façade, and HTTP handler
  4. Start the background refresh ticker (when configured)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to the YAML config file (default: config.yaml)

CONFIGURATION:
  See config/config.go. Every setting can be overridden through
  CLEARANCE_* environment variables, e.g. CLEARANCE_SOURCE_TOKEN.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh ticker
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - ingest/refresh.go: The refresh cycle
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spildspotter/clearance-engine/api"
	"github.com/spildspotter/clearance-engine/catalog"
	"github.com/spildspotter/clearance-engine/config"
	"github.com/spildspotter/clearance-engine/ingest"
	"github.com/spildspotter/clearance-engine/metrics"
	"github.com/spildspotter/clearance-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := metrics.NewRegistry()
	source := ingest.NewClient(cfg.Source.BaseURL, cfg.Source.Token, log)
	refresher := ingest.NewRefresher(source, store, registry, log)
	service := catalog.NewService(store)

	handler := api.NewHandler(service, refresher, log)
	router := api.NewRouter(handler, registry.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Source.RefreshInterval > 0 {
		go refreshLoop(ctx, refresher, cfg.Source.RefreshInterval, log)
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}

// refreshLoop runs one cycle per interval until ctx is done. An
// in-flight or failed cycle is logged and the loop keeps ticking.
func refreshLoop(ctx context.Context, refresher *ingest.Refresher, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := refresher.Run(ctx); err != nil && !errors.Is(err, ingest.ErrRefreshRunning) {
				log.Error("scheduled refresh failed", "error", err)
			}
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Pretty {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
