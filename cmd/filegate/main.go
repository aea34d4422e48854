package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/config"
	"github.com/stormrose-io/filegate/pkg/engine"
	"github.com/stormrose-io/filegate/pkg/metrics"
	"github.com/stormrose-io/filegate/pkg/repository"
	"github.com/stormrose-io/filegate/pkg/server"
)

func main() {
	configPath := flag.String("config", "filegate.yaml", "Path to the configuration file")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger.SetLevel(level)
	logger.Info("Log level set to: %s", level)

	if cfg.Server.MetricsEnabled {
		metrics.InitRegistry()
		logger.Info("Metrics collection enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader, err := config.CreateRepositoryLoader(cfg)
	if err != nil {
		log.Fatalf("Failed to create repository loader: %v", err)
	}
	registry := repository.NewRegistry(loader)
	if err := registry.Refresh(ctx); err != nil {
		log.Fatalf("Failed to load repositories: %v", err)
	}

	meta, err := config.CreateMetadataStore(cfg.Metadata, registry)
	if err != nil {
		log.Fatalf("Failed to create metadata store: %v", err)
	}
	defer func() {
		if err := meta.Close(); err != nil {
			logger.Error("Failed to close metadata store: %v", err)
		}
	}()
	logger.Info("Metadata store initialized: type=%s", cfg.Metadata.Type)

	eng := engine.New(registry, meta, config.CreateStorageBackend,
		engine.WithMetrics(metrics.NewOperationMetrics()))

	srv := server.New(cfg.Server, eng)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Gateway is running on %s. Press Ctrl+C to stop.", cfg.Server.Addr)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}
