package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmy/marketplace/internal/accounts"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/lock"
	"github.com/timmy/marketplace/internal/logger"
	"github.com/timmy/marketplace/internal/mailer"
	"github.com/timmy/marketplace/internal/metrics"
	"github.com/timmy/marketplace/internal/repository"
	"github.com/timmy/marketplace/internal/source"
	"github.com/timmy/marketplace/internal/source/csvfile"
	"github.com/timmy/marketplace/internal/source/xlsx"
	"github.com/timmy/marketplace/internal/storage"
	"gorm.io/gorm"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*mailer.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg *mailer.Message) (mailer.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.err != nil {
		return mailer.SendResult{}, s.err
	}
	return mailer.SendResult{MessageID: "test", SentAt: time.Now()}, nil
}

func (s *recordingSender) messages() []*mailer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*mailer.Message(nil), s.sent...)
}

// gatedDirectory holds every lookup until the gate is closed.
type gatedDirectory struct {
	accounts.Directory
	entered chan struct{}
	gate    chan struct{}
}

func (d *gatedDirectory) GetUploader(ctx context.Context, userID uint) (*domain.Uploader, error) {
	d.entered <- struct{}{}
	<-d.gate
	return d.Directory.GetUploader(ctx, userID)
}

type testEnv struct {
	db       *gorm.DB
	docsRoot string
	mutex    *lock.LocalMutex
	mail     *recordingSender
	metrics  *metrics.ImportMetrics
	service  *ImportService
	user     *domain.User
	shop     *domain.Shop
}

type envOption func(*ImportDeps, *ImportConfig)

func withRefreshOffers() envOption {
	return func(_ *ImportDeps, cfg *ImportConfig) { cfg.RefreshOffers = true }
}

func withLockWaitTimeout(d time.Duration) envOption {
	return func(_ *ImportDeps, cfg *ImportConfig) { cfg.LockWaitTimeout = d }
}

func withDirectory(wrap func(accounts.Directory) accounts.Directory) envOption {
	return func(deps *ImportDeps, _ *ImportConfig) { deps.Accounts = wrap(deps.Accounts) }
}

func withMutex(m lock.Mutex) envOption {
	return func(deps *ImportDeps, _ *ImportConfig) { deps.Mutex = m }
}

// expiringMutex hands out leases that report loss once checked more than checks times.
type expiringMutex struct {
	checks int
}

func (m *expiringMutex) Acquire(context.Context) (lock.Lease, error) {
	return &expiringLease{left: m.checks}, nil
}

func (m *expiringMutex) TryAcquire(ctx context.Context, _ time.Duration) (lock.Lease, error) {
	return m.Acquire(ctx)
}

type expiringLease struct {
	left int
}

func (l *expiringLease) Release(context.Context) error { return nil }

func (l *expiringLease) Lost() <-chan struct{} {
	ch := make(chan struct{})
	l.left--
	if l.left < 0 {
		close(ch)
	}
	return ch
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "market.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	db := newTestDB(t)

	shop := &domain.Shop{Name: "Main Shop"}
	require.NoError(t, db.Create(shop).Error)
	user := &domain.User{Username: "seller", Email: "seller@example.com", ShopID: &shop.ID}
	require.NoError(t, db.Create(user).Error)

	docsRoot := t.TempDir()
	local, err := storage.NewLocalStorage(docsRoot)
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		docsRoot: docsRoot,
		mutex:    lock.NewLocalMutex(),
		mail:     &recordingSender{},
		metrics:  metrics.NewImportMetrics("test"),
		user:     user,
		shop:     shop,
	}

	deps := &ImportDeps{
		DB:       db,
		Catalog:  repository.NewCatalogRepository(db),
		Offers:   repository.NewOfferRepository(db),
		Mutex:    env.mutex,
		Accounts: repository.NewUserRepository(db),
		Readers:  source.NewRegistry(csvfile.NewAdapter("utf-8"), xlsx.NewAdapter()),
		Audit:    NewAuditLog(repository.NewImportJobRepository(db), 20),
		Archiver: NewArchiver(local, "successful", "failed"),
		Notifier: NewNotifier(env.mail, "noreply@market.local", []string{"admin@market.local"}),
		Metrics:  env.metrics,
		Logger:   logger.NewDefault(),
	}
	deps.Archiver.now = func() time.Time { return time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC) }
	cfg := &ImportConfig{}
	for _, opt := range opts {
		opt(deps, cfg)
	}

	env.service = NewImportService(deps, cfg)
	return env
}

// setClock fixes the archive timestamp of subsequent runs.
func (e *testEnv) setClock(at time.Time) {
	e.service.archiver.now = func() time.Time { return at }
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

// names lists the name column of a table in order.
func (e *testEnv) names(t *testing.T, model interface{}) []string {
	t.Helper()
	var names []string
	require.NoError(t, e.db.Model(model).Order("name").Pluck("name", &names).Error)
	return names
}

func (e *testEnv) importCSV(t *testing.T, content string) (*domain.ImportJob, error) {
	t.Helper()
	id, err := e.service.StartImport(context.Background(), &source.Upload{FileName: "products.csv", Content: []byte(content)}, e.user.ID)
	if id == "" {
		return nil, err
	}
	job, getErr := e.service.GetImportStatus(context.Background(), id)
	require.NoError(t, getErr)
	return job, err
}

var errSMTPDown = errors.New("smtp down")
