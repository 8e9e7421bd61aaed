package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/marketplace/internal/app"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/logger"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = appLogger.WithContext(ctx)
	ctx = logger.SetComponent(ctx, "worker")

	application, err := app.New(ctx, cfg, appLogger, &app.Options{NeedQueue: true})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize import pipeline")
	}
	defer application.Close()

	appLogger.WithField("queue", cfg.Queue.Key).Info("Import worker started")
	if err := application.Queue.Consume(ctx, application.RunTask); err != nil {
		appLogger.WithError(err).Error("Import worker stopped with error")
		return
	}
	appLogger.Info("Import worker stopped")
}
