package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kurihiro0119/classroom-sync/internal/aggregator"
	"github.com/kurihiro0119/classroom-sync/internal/api"
	"github.com/kurihiro0119/classroom-sync/internal/config"
	"github.com/kurihiro0119/classroom-sync/internal/observability"
	"github.com/kurihiro0119/classroom-sync/internal/storage"
	"github.com/kurihiro0119/classroom-sync/internal/storage/postgres"
	"github.com/kurihiro0119/classroom-sync/internal/storage/sqlite"
)

func main() {
	cfgFile := flag.String("config", "", "TOML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.ValidateStorage(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to initialize PostgreSQL storage", zap.Error(err))
		}
	case "none":
		logger.Fatal("the API serves stored runs; STORAGE_TYPE must be sqlite or postgres")
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to initialize SQLite storage", zap.Error(err))
		}
	}
	defer store.Close()

	metrics := observability.NewMetrics()
	handler := api.NewHandler(aggregator.NewAggregator(store))
	router := api.SetupRoutes(handler, logger, metrics)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", zap.String("addr", addr), zap.String("storage", cfg.StorageType))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("API server stopped")
}
