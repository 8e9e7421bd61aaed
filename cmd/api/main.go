package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/marketplace/internal/api"
	"github.com/timmy/marketplace/internal/api/handler"
	"github.com/timmy/marketplace/internal/app"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/logger"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, appLogger, nil)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize import pipeline")
	}
	defer application.Close()

	// A nil *RedisQueue must not end up inside the interface.
	var jobQueue handler.JobQueue
	if application.Queue != nil {
		jobQueue = application.Queue
	}
	importHandler := handler.NewImportHandler(application.Importer, jobQueue, cfg.Server.MaxUploadSize)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = application.Metrics.Handler()
	}

	healthChecks := map[string]handler.HealthCheck{"database": application.PingDB}
	if application.Redis != nil {
		healthChecks["redis"] = application.PingRedis
	}

	router := api.SetupRouter(importHandler, metricsHandler, healthChecks, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":  cfg.Server.Port,
			"mode":  cfg.Server.Mode,
			"queue": cfg.Queue.Enabled,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Synchronous imports keep running until they finish, so allow a generous timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
