/*
main.go - One-shot refresh CLI

PURPOSE:
  Runs a single ingestion cycle against the configured database and
  exits: fetch the store catalog, derive the zip-code set, fetch
  clearance data per zip. Useful for cron-driven refreshes and for
  seeding a fresh database before starting the server.

SEE ALSO:
  - ingest/refresh.go: The cycle this command runs
  - cmd/server/main.go: The long-running server
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

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

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := ingest.NewClient(cfg.Source.BaseURL, cfg.Source.Token, log)
	refresher := ingest.NewRefresher(source, store, metrics.NewRegistry(), log)

	summary, err := refresher.Run(ctx)
	if err != nil {
		log.Error("refresh failed", "error", err)
		os.Exit(1)
	}
	log.Info("refresh complete",
		"stores", summary.Stores,
		"zips", summary.Zips,
		"clearance_stores", summary.ClearanceStores,
		"offers", summary.Offers,
		"duration", summary.Duration,
	)
}
