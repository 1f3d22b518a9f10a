package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yegors/tailtrack/internal/api"
	"github.com/yegors/tailtrack/internal/config"
	"github.com/yegors/tailtrack/internal/flightlog"
	"github.com/yegors/tailtrack/internal/storage/sqlite"
	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/internal/upstream"
	"github.com/yegors/tailtrack/internal/websocket"
	"github.com/yegors/tailtrack/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting tailtrack server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Ensure the database directory exists
	dbDir := filepath.Dir(cfg.Storage.SQLitePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
		os.Exit(1)
	}

	// Create SQLite storage
	trackStorage, err := sqlite.NewTrackStorage(
		cfg.Storage.SQLitePath,
		cfg.Storage.MaxPositionsInAPI,
		log,
	)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer trackStorage.Close()
	log.Info("Using SQLite storage", logger.String("path", cfg.Storage.SQLitePath))

	// Flight-log and plane storage share the track database
	flightLogStorage, err := sqlite.NewFlightLogStorage(trackStorage.GetDB(), log)
	if err != nil {
		log.Error("Failed to create flight-log storage", logger.Error(err))
		os.Exit(1)
	}

	planeStorage, err := sqlite.NewPlaneStorage(trackStorage.GetDB(), log)
	if err != nil {
		log.Error("Failed to create plane storage", logger.Error(err))
		os.Exit(1)
	}

	// Create WebSocket server
	wsServer := websocket.NewServer(log)

	// Start WebSocket server
	go wsServer.Run()

	// Create upstream flight-data client
	upstreamClient := upstream.NewClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.APIKey,
		time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second,
		log,
	)

	// Create flight-log correlator
	correlator := flightlog.NewCorrelator(flightLogStorage, log)

	// Create tracking service
	trackingService := tracking.NewService(
		trackStorage,
		upstreamClient,
		planeStorage,
		correlator,
		wsServer,
		cfg.Tracking,
		log,
	)

	// Create API router
	router := api.NewRouter(trackingService, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", server.Addr), logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
