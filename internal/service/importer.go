package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/marketplace/internal/accounts"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/lock"
	"github.com/timmy/marketplace/internal/logger"
	"github.com/timmy/marketplace/internal/metrics"
	"github.com/timmy/marketplace/internal/repository"
	"github.com/timmy/marketplace/internal/source"
	"gorm.io/gorm"
)

const rowSavepoint = "import_row"

// ImportService runs catalog imports one at a time.
type ImportService struct {
	db       *gorm.DB
	catalog  *repository.CatalogRepository
	offers   *repository.OfferRepository
	mutex    lock.Mutex
	accounts accounts.Directory
	readers  *source.Registry
	audit    *AuditLog
	archiver *Archiver
	notifier *Notifier
	metrics  *metrics.ImportMetrics
	logger   *logger.Logger

	refreshOffers   bool
	lockWaitTimeout time.Duration
}

// ImportConfig holds configuration for the import service
type ImportConfig struct {
	RefreshOffers   bool
	LockWaitTimeout time.Duration
}

// ImportDeps groups the collaborators of ImportService.
type ImportDeps struct {
	DB       *gorm.DB
	Catalog  *repository.CatalogRepository
	Offers   *repository.OfferRepository
	Mutex    lock.Mutex
	Accounts accounts.Directory
	Readers  *source.Registry
	Audit    *AuditLog
	Archiver *Archiver
	Notifier *Notifier
	Metrics  *metrics.ImportMetrics
	Logger   *logger.Logger
}

// NewImportService creates a new import service
func NewImportService(deps *ImportDeps, cfg *ImportConfig) *ImportService {
	return &ImportService{
		db:              deps.DB,
		catalog:         deps.Catalog,
		offers:          deps.Offers,
		mutex:           deps.Mutex,
		accounts:        deps.Accounts,
		readers:         deps.Readers,
		audit:           deps.Audit,
		archiver:        deps.Archiver,
		notifier:        deps.Notifier,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		refreshOffers:   cfg.RefreshOffers,
		lockWaitTimeout: cfg.LockWaitTimeout,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ImportService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

func newJobID() string {
	return uuid.NewString()
}

// NewJobID allocates an ID for a job that will be run later, e.g. by the queue worker.
func (s *ImportService) NewJobID() string {
	return newJobID()
}

// StartImport runs an import synchronously.
// Parameters:
//   - ctx: context for cancellation while waiting on the lock.
//   - upload: the uploaded file.
//   - uploaderID: account ID of the uploader.
// Returns:
//   - string: ID of the import job, empty if no job could be recorded.
//   - error: run-level failure; row failures are reported through the job only.
func (s *ImportService) StartImport(ctx context.Context, upload *source.Upload, uploaderID uint) (string, error) {
	job, err := s.RunJob(ctx, newJobID(), upload, uploaderID)
	if job == nil {
		return "", err
	}
	return job.ID, err
}

// GetImportStatus returns the audit record of a job.
func (s *ImportService) GetImportStatus(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	return s.audit.Get(ctx, jobID)
}

// ListRecentImports returns the latest jobs, newest first.
func (s *ImportService) ListRecentImports(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.audit.Recent(ctx, limit)
}

// ListImportedProducts returns the products a job created or updated.
func (s *ImportService) ListImportedProducts(ctx context.Context, jobID string) ([]domain.Product, error) {
	if _, err := s.audit.Get(ctx, jobID); err != nil {
		return nil, err
	}
	products, err := s.catalog.ListProductsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list imported products: %w", err)
	}
	return products, nil
}

// run carries the state of one import between its phases.
type run struct {
	job      *domain.ImportJob
	upload   *source.Upload
	uploader *domain.Uploader
	lease    lock.Lease
	ext      string
	summary  Summary
}

// leaseHeld fails once the import lock was taken away.
func (r *run) leaseHeld() error {
	select {
	case <-r.lease.Lost():
		return domain.ErrLockLost
	default:
		return nil
	}
}

func (r *run) shopName() string {
	if r.uploader != nil {
		return r.uploader.ShopName
	}
	return fmt.Sprintf("user-%d", r.job.UploaderID)
}

// RunJob runs an import under the global lock with a caller-chosen job ID.
// Parameters:
//   - ctx: context for cancellation while waiting on the lock.
//   - jobID: ID of the audit record to create.
//   - upload: the uploaded file.
//   - uploaderID: account ID of the uploader.
// Returns:
//   - *domain.ImportJob: finalized job, nil if the lock could not be taken or the job not created.
//   - error: run-level failure. An empty upload yields a failed job and no error.
func (s *ImportService) RunJob(ctx context.Context, jobID string, upload *source.Upload, uploaderID uint) (*domain.ImportJob, error) {
	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetComponent(ctx, "importer")
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldUploaderID: uploaderID,
		logger.FieldFileName:   upload.FileName,
	})

	waitStart := time.Now()
	lease, err := s.mutex.TryAcquire(ctx, s.lockWaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("acquire import lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log(ctx).WithError(err).Error("Failed to release import lock")
		}
	}()
	waited := time.Since(waitStart)
	s.metrics.LockAcquired(waited)
	s.log(ctx).WithField("waited", waited.String()).Info("Import lock acquired")

	// Once the lock is held the run goes to completion.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	job, err := s.audit.Create(ctx, jobID, upload.FileName, uploaderID)
	if err != nil {
		s.metrics.RunFinished(string(domain.JobStatusFailed), time.Since(started))
		return nil, err
	}
	s.reportStale(ctx, job)

	r := &run{job: job, upload: upload, lease: lease, ext: ".csv"}
	runErr := s.process(ctx, r)
	if errors.Is(runErr, domain.ErrEmptyFile) {
		runErr = nil
	}

	if err := s.finish(ctx, r); err != nil && runErr == nil {
		runErr = err
	}
	s.metrics.RunFinished(string(job.Status), time.Since(started))

	logger.With(logger.Fields{
		logger.FieldCount: r.summary.Total,
		"successful":      r.summary.Successful,
		"failed":          r.summary.Failed,
	}).WithDuration(time.Since(started).Milliseconds()).WithStatus(string(job.Status)).Info(ctx, "Import finished")

	return job, runErr
}

// process reads the upload and imports its rows, leaving the outcome in r.summary.
func (s *ImportService) process(ctx context.Context, r *run) error {
	if r.upload.IsBlank() {
		s.describeBlank(ctx, r)
		s.log(ctx).Warn("Empty import file")
		r.summary.Abort(domain.ErrEmptyFile)
		return domain.ErrEmptyFile
	}

	uploader, err := s.accounts.GetUploader(ctx, r.job.UploaderID)
	if err != nil {
		r.summary.Abort(err)
		return err
	}
	r.uploader = uploader
	ctx = logger.WithField(ctx, logger.FieldShop, uploader.ShopName)

	reader, err := s.readers.ForFile(r.upload.FileName)
	if err != nil {
		r.summary.Abort(err)
		return err
	}
	r.ext = reader.Extension()

	rows, err := reader.ReadRows(ctx, r.upload.Content)
	if err != nil {
		err = fmt.Errorf("read %s file: %w", reader.Format(), err)
		r.summary.Abort(err)
		return err
	}

	if err := s.importRows(ctx, r, rows); err != nil {
		r.summary.Abort(err)
		return err
	}
	return nil
}

// describeBlank fills in uploader and extension of an empty upload for its archive name and summary.
// Lookup failures are ignored; an empty file never fails the run.
func (s *ImportService) describeBlank(ctx context.Context, r *run) {
	if uploader, err := s.accounts.GetUploader(ctx, r.job.UploaderID); err == nil {
		r.uploader = uploader
	}
	if reader, err := s.readers.ForFile(r.upload.FileName); err == nil {
		r.ext = reader.Extension()
	}
}

// importRows applies rows in one transaction, isolating each row behind a savepoint.
func (s *ImportService) importRows(ctx context.Context, r *run, rows []source.Row) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin import transaction: %w", tx.Error)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	resolver := NewCatalogResolver(s.catalog.WithTx(tx))
	offers := NewOfferUpserter(s.offers.WithTx(tx), s.refreshOffers)

	for _, row := range rows {
		rec, err := ExtractRow(row.Line, row.Fields)
		if errors.Is(err, ErrHeaderRow) {
			continue
		}
		if err := r.leaseHeld(); err != nil {
			return fmt.Errorf("before row %d: %w", row.Line, err)
		}

		if err := tx.SavePoint(rowSavepoint).Error; err != nil {
			return fmt.Errorf("savepoint before row %d: %w", row.Line, err)
		}

		res := RowResult{Line: row.Line, Err: err}
		if err == nil {
			res = s.importRow(ctx, resolver, offers, r, &rec)
		}
		if res.Err != nil {
			if err := tx.RollbackTo(rowSavepoint).Error; err != nil {
				return fmt.Errorf("rollback row %d: %w", row.Line, err)
			}
			s.log(ctx).WithField(logger.FieldRow, row.Line).WithError(res.Err).Warn("Import row failed")
		}

		r.summary.Add(res)
		s.metrics.RowProcessed(res.Err)
	}

	if err := r.leaseHeld(); err != nil {
		return fmt.Errorf("before commit: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	committed = true
	return nil
}

func (s *ImportService) importRow(ctx context.Context, resolver *CatalogResolver, offers *OfferUpserter, r *run, rec *ProductRecord) RowResult {
	res := RowResult{Line: rec.Line}

	product, _, err := resolver.ResolveProduct(ctx, r.job.ID, rec)
	if err != nil {
		res.Err = &domain.RowError{Line: rec.Line, Err: err}
		return res
	}
	res.ProductID = product.ID

	_, created, err := offers.UpsertOffer(ctx, r.uploader.ShopID, product.ID, rec.Price, rec.Remains)
	if err != nil {
		res.Err = &domain.RowError{Line: rec.Line, Err: err}
		return res
	}
	res.OfferCreated = created
	return res
}

// finish archives the upload, finalizes the job and sends the summary.
// An archive failure turns the run into a failed one.
func (s *ImportService) finish(ctx context.Context, r *run) error {
	var finishErr error

	location, err := s.archiver.Archive(ctx, r.summary.Status(), r.shopName(), r.ext, r.upload.Content)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to archive import file")
		if r.summary.Fatal == nil {
			r.summary.Fatal = err
		}
		finishErr = err
	} else {
		s.log(ctx).WithField("location", location).Info("Import file archived")
	}

	if err := s.audit.Finalize(ctx, r.job, &r.summary); err != nil {
		s.log(ctx).WithError(err).Error("Failed to finalize import job")
		return err
	}

	s.notifier.Notify(ctx, r.job, r.uploader, &r.summary)
	return finishErr
}

func (s *ImportService) reportStale(ctx context.Context, job *domain.ImportJob) {
	stale, err := s.audit.Stale(ctx, job)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to look up stale import jobs")
		return
	}
	for _, old := range stale {
		s.log(ctx).WithFields(logger.Fields{
			"stale_job_id": old.ID,
			"started_at":   old.StartedAt,
		}).Warn("Earlier import of the same file never finished")
	}
}
