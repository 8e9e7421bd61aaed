package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/timmy/marketplace/internal/app"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/logger"
	"github.com/timmy/marketplace/internal/source"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "catalog-import-cli",
	})
	logger.SetDefaultLogger(appLogger)

	filePath := flag.String("file", "", "CSV or XLSX file to import")
	uploaderID := flag.Uint("uploader", 0, "ID of the uploading user")
	localLock := flag.Bool("local-lock", false, "Use an in-process lock instead of redis")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *filePath == "" || *uploaderID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	content, err := os.ReadFile(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read import file")
	}

	ctx := appLogger.WithContext(context.Background())
	application, err := app.New(ctx, cfg, appLogger, &app.Options{LocalLock: *localLock})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize import pipeline")
	}
	defer application.Close()

	jobID, err := application.Importer.StartImport(ctx, &source.Upload{
		FileName: filepath.Base(*filePath),
		Content:  content,
	}, *uploaderID)
	if err != nil {
		appLogger.WithError(err).WithField(logger.FieldJobID, jobID).Error("Import failed")
		application.Close()
		os.Exit(1)
	}

	job, err := application.Importer.GetImportStatus(ctx, jobID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read import status")
	}
	appLogger.WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		"status":          job.Status,
		"total":           job.TotalRows,
		"successful":      job.SuccessfulRows,
		"failed":          job.FailedRows,
	}).Info("Import finished")
}
