// Kestrel - Interactive workspace for transaction-graph fraud analysis.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/detector"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/filter"
	"github.com/opensource-finance/kestrel/internal/projection"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/selection"
	"github.com/opensource-finance/kestrel/internal/session"
	"github.com/opensource-finance/kestrel/internal/workspace"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Logging))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"engine", cfg.Engine.BaseURL,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	recorder := audit.NewRecorder(busImpl, repo)
	if err := recorder.Start(); err != nil {
		slog.Error("failed to start audit recorder", "error", err)
		os.Exit(1)
	}

	filters, err := filter.NewEngine()
	if err != nil {
		slog.Error("failed to initialize filter engine", "error", err)
		os.Exit(1)
	}

	client := detector.NewClient(cfg.Engine)
	if err := client.Health(ctx); err != nil {
		// The engine may come up after us; /ready reports it until then.
		slog.Warn("detection engine not reachable yet", "url", cfg.Engine.BaseURL, "error", err)
	}

	ws := workspace.New(workspace.Options{
		Engine:        client,
		Mapper:        projection.NewMapper(),
		Sessions:      session.NewManager(client, busImpl, cfg.Session.HistorySize),
		Selection:     selection.New(),
		Cache:         cacheImpl,
		Bus:           busImpl,
		SuggestionTTL: cfg.Cache.SuggestionTTL,
	})

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Workspace:  ws,
		Filters:    filters,
		Engine:     client,
		Repository: repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
	}, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := recorder.Stop(); err != nil {
		slog.Error("failed to stop audit recorder", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func newLogger(out io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.LogLevel(cfg)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL  fraud-ring workspace")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Engine:   %s\n", cfg.Engine.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /analyze               - Upload a transactions CSV")
	fmt.Println("    GET    /graph                 - Graph elements (ringsOnly, where)")
	fmt.Println("    GET    /accounts/{id}         - Account detail")
	fmt.Println("    GET    /suggestions?q=        - Account id autocomplete")
	fmt.Println("    POST   /simulations           - Run a what-if transaction")
	fmt.Println("    POST   /simulations/{id}/restore")
	fmt.Println("    GET    /export                - Download the engine analysis")
	fmt.Println("    GET    /audit/simulations     - Simulation audit trail")
	fmt.Println("    GET    /metrics               - Prometheus metrics")
	fmt.Println()
}
