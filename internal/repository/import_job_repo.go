package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/marketplace/internal/domain"
	"gorm.io/gorm"
)

// ImportJobRepository persists import audit records.
type ImportJobRepository struct {
	db *gorm.DB
}

// NewImportJobRepository creates a new ImportJobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ImportJobRepository: repository instance bound to db.
func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create inserts a new import job.
func (r *ImportJobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves an import job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: import job ID.
// Returns:
//   - *domain.ImportJob: stored job.
//   - error: domain.ErrJobNotFound if no job has the ID, or the query error.
func (r *ImportJobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get import job", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return &job, nil
}

// Finalize writes the terminal status and counters of a job still in progress.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job to finalize; its fields are updated on success.
//   - status: terminal status.
//   - total, successful, failed: final row counters.
//   - errorDetail: accumulated error text, may be empty.
// Returns:
//   - error: domain.ErrInvalidInput for a non-terminal status, domain.ErrJobFinalized if the job
//     already left in_progress, or the query error.
func (r *ImportJobRepository) Finalize(ctx context.Context, job *domain.ImportJob, status domain.JobStatus, total, successful, failed int, errorDetail string) error {
	if !status.IsTerminal() {
		return domain.WrapError(domain.ErrInvalidInput, "finalize import job", fmt.Errorf("status %q is not terminal", status))
	}
	completedAt := time.Now()
	result := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", job.ID, domain.JobStatusInProgress).
		Updates(map[string]interface{}{
			"status":          status,
			"total_rows":      total,
			"successful_rows": successful,
			"failed_rows":     failed,
			"error_detail":    errorDetail,
			"completed_at":    completedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("finalize import job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.WrapError(domain.ErrJobFinalized, "finalize import job", fmt.Errorf("job %s", job.ID))
	}

	job.Status = status
	job.TotalRows = total
	job.SuccessfulRows = successful
	job.FailedRows = failed
	job.ErrorDetail = errorDetail
	job.CompletedAt = &completedAt
	return nil
}

// FindStale lists in-progress jobs for the same uploader and file, excluding excludeID.
// These are left behind by runs that died before finalizing.
func (r *ImportJobRepository) FindStale(ctx context.Context, uploaderID uint, fileName, excludeID string) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := r.db.WithContext(ctx).
		Where("uploader_id = ? AND file_name = ? AND status = ? AND id <> ?",
			uploaderID, fileName, domain.JobStatusInProgress, excludeID).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListRecent returns the most recent jobs, newest first.
func (r *ImportJobRepository) ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}
