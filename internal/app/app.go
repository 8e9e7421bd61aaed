// Package app wires the import pipeline from configuration for the binaries under cmd/.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/marketplace/internal/accounts"
	"github.com/timmy/marketplace/internal/cache"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/lock"
	"github.com/timmy/marketplace/internal/logger"
	"github.com/timmy/marketplace/internal/mailer"
	"github.com/timmy/marketplace/internal/metrics"
	"github.com/timmy/marketplace/internal/queue"
	"github.com/timmy/marketplace/internal/repository"
	"github.com/timmy/marketplace/internal/service"
	"github.com/timmy/marketplace/internal/source"
	"github.com/timmy/marketplace/internal/source/csvfile"
	"github.com/timmy/marketplace/internal/source/xlsx"
	"github.com/timmy/marketplace/internal/storage"
	"gorm.io/gorm"
)

// App holds the initialized import pipeline.
type App struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Importer *service.ImportService
	Queue    *queue.RedisQueue
	Metrics  *metrics.ImportMetrics
}

// Options adjust wiring for a particular binary.
type Options struct {
	// LocalLock forces the in-process lock, e.g. for one-shot CLI runs without redis.
	LocalLock bool
	// NeedQueue connects the import queue even when queue.enabled is false.
	NeedQueue bool
}

// New builds the pipeline described by cfg.
// Parameters:
//   - ctx: context for connection checks.
//   - cfg: validated configuration.
//   - log: base logger.
//   - opts: binary-specific options, may be nil.
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if any backend cannot be initialized.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &App{}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = db

	useRedisLock := cfg.Lock.Backend == "redis" && !opts.LocalLock
	useQueue := cfg.Queue.Enabled || opts.NeedQueue
	if useRedisLock || useQueue {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
	}

	var mutex lock.Mutex = lock.NewLocalMutex()
	if useRedisLock {
		mutex = lock.NewRedisMutex(a.Redis, &lock.RedisConfig{
			Key:          cfg.Lock.Key,
			TTL:          cfg.Lock.TTL,
			PollInterval: cfg.Lock.PollInterval,
		})
	} else {
		log.Warn("Using in-process import lock; imports are only serialized within this process")
	}
	if useQueue {
		a.Queue = queue.NewRedisQueue(a.Redis, cfg.Queue.Key, cfg.Queue.JobTTL)
	}

	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	directory, err := accounts.NewDirectory(&cfg.Accounts, repository.NewUserRepository(db))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Metrics = metrics.NewImportMetrics(cfg.Metrics.Service)

	a.Importer = service.NewImportService(&service.ImportDeps{
		DB:       db,
		Catalog:  repository.NewCatalogRepository(db),
		Offers:   repository.NewOfferRepository(db),
		Mutex:    mutex,
		Accounts: directory,
		Readers:  source.NewRegistry(csvfile.NewAdapter(cfg.Importer.Charset), xlsx.NewAdapter()),
		Audit:    service.NewAuditLog(repository.NewImportJobRepository(db), cfg.Importer.MaxRowErrors),
		Archiver: service.NewArchiver(objectStorage, cfg.Archive.SuccessfulDir, cfg.Archive.FailedDir),
		Notifier: service.NewNotifier(mailer.NewSender(&cfg.Mail), cfg.Mail.From, cfg.Mail.RecipientList()),
		Metrics:  a.Metrics,
		Logger:   log,
	}, &service.ImportConfig{
		RefreshOffers:   cfg.Importer.RefreshOffers,
		LockWaitTimeout: cfg.Lock.WaitTimeout,
	})

	return a, nil
}

// Close releases database and redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// PingDB checks the database connection.
func (a *App) PingDB(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PingRedis checks the redis connection. It must only be used when Redis is set.
func (a *App) PingRedis(ctx context.Context) error {
	return a.Redis.Ping(ctx).Err()
}

// RunTask adapts the import service to the queue handler signature.
func (a *App) RunTask(ctx context.Context, task *queue.Task) error {
	_, err := a.Importer.RunJob(ctx, task.JobID, &source.Upload{
		FileName: task.FileName,
		Content:  task.Content,
	}, task.UploaderID)
	return err
}
