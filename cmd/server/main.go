package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mimir-aip/tire-wear-predictor/pkg/api"
	"github.com/mimir-aip/tire-wear-predictor/pkg/app"
	"github.com/mimir-aip/tire-wear-predictor/pkg/config"
	"github.com/mimir-aip/tire-wear-predictor/pkg/logging"
	"github.com/mimir-aip/tire-wear-predictor/pkg/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting "+cfg.APITitle,
		zap.String("version", cfg.APIVersion),
		zap.String("strategy", string(cfg.Strategy())),
		zap.Bool("dev_mode", cfg.DevMode))

	comps, err := app.NewComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	// A failed startup initialization leaves the server running so that
	// /api/initialize can retry
	if _, err := comps.Service.Initialize(context.Background()); err != nil {
		logger.Error("Startup model initialization failed", zap.Error(err))
	}

	var sched *scheduler.Service
	if cfg.RetrainSchedule != "" {
		sched, err = scheduler.NewService(cfg.RetrainSchedule, comps.Service, logger)
		if err != nil {
			logger.Fatal("Failed to create retrain scheduler", zap.Error(err))
		}
		sched.Start()
	}

	server := api.NewServer(api.Options{
		Lifecycle:   comps.Service,
		History:     comps.History,
		Metrics:     comps.Metrics,
		Logger:      logger,
		Title:       cfg.APITitle,
		Version:     cfg.APIVersion,
		CORSOrigins: cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.TrainingTimeoutDuration() + 30*time.Second, // /api/initialize may train
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("API server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Error starting server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sched != nil {
		sched.Stop(ctx)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
