package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/repository"
)

// RowResult is the outcome of one data row.
type RowResult struct {
	Line         int
	ProductID    uint
	OfferCreated bool
	Err          error
}

// Summary accumulates the outcome of a run. It is persisted only by AuditLog.Finalize.
type Summary struct {
	Total      int
	Successful int
	Failed     int
	RowErrors  []*domain.RowError
	// Fatal is a failure that ended the run outside of any single row.
	Fatal error
}

// Add counts one row result.
func (s *Summary) Add(res RowResult) {
	s.Total++
	if res.Err == nil {
		s.Successful++
		return
	}
	s.Failed++

	var rowErr *domain.RowError
	if !errors.As(res.Err, &rowErr) {
		rowErr = &domain.RowError{Line: res.Line, Err: res.Err}
	}
	s.RowErrors = append(s.RowErrors, rowErr)
}

// Abort records a run-level failure. Rows already processed lose their changes and count as failed.
func (s *Summary) Abort(err error) {
	s.Fatal = err
	s.Failed += s.Successful
	s.Successful = 0
}

// Status derives the terminal job status.
func (s *Summary) Status() domain.JobStatus {
	if s.Fatal != nil || s.Failed > 0 || s.Total == 0 {
		return domain.JobStatusFailed
	}
	return domain.JobStatusCompleted
}

// AuditLog owns ImportJob records.
type AuditLog struct {
	jobs         *repository.ImportJobRepository
	maxRowErrors int
}

// NewAuditLog creates an audit log that keeps at most maxRowErrors row errors in error_detail.
func NewAuditLog(jobs *repository.ImportJobRepository, maxRowErrors int) *AuditLog {
	if maxRowErrors <= 0 {
		maxRowErrors = 20
	}
	return &AuditLog{jobs: jobs, maxRowErrors: maxRowErrors}
}

// Create starts a new in-progress job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID, generated when empty.
//   - fileName: original upload name.
//   - uploaderID: account that uploaded the file.
// Returns:
//   - *domain.ImportJob: stored job.
//   - error: non-nil if the insert fails.
func (a *AuditLog) Create(ctx context.Context, id, fileName string, uploaderID uint) (*domain.ImportJob, error) {
	if id == "" {
		id = newJobID()
	}
	job := &domain.ImportJob{
		ID:         id,
		UploaderID: uploaderID,
		FileName:   fileName,
		Status:     domain.JobStatusInProgress,
		StartedAt:  time.Now(),
	}
	if err := a.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}
	return job, nil
}

// Finalize persists the summary. It fails with domain.ErrJobFinalized for a job that already finished.
func (a *AuditLog) Finalize(ctx context.Context, job *domain.ImportJob, summary *Summary) error {
	return a.jobs.Finalize(ctx, job, summary.Status(),
		summary.Total, summary.Successful, summary.Failed, a.errorDetail(summary))
}

// Get returns a job by ID.
func (a *AuditLog) Get(ctx context.Context, id string) (*domain.ImportJob, error) {
	return a.jobs.GetByID(ctx, id)
}

// Recent returns up to limit jobs, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	return a.jobs.ListRecent(ctx, limit)
}

// Stale lists in-progress jobs for the same uploader and file other than job.
func (a *AuditLog) Stale(ctx context.Context, job *domain.ImportJob) ([]domain.ImportJob, error) {
	return a.jobs.FindStale(ctx, job.UploaderID, job.FileName, job.ID)
}

func (a *AuditLog) errorDetail(summary *Summary) string {
	var lines []string
	if summary.Fatal != nil {
		lines = append(lines, summary.Fatal.Error())
	}
	for i, rowErr := range summary.RowErrors {
		if i == a.maxRowErrors {
			lines = append(lines, fmt.Sprintf("... and %d more row errors", len(summary.RowErrors)-i))
			break
		}
		lines = append(lines, rowErr.Error())
	}
	return strings.Join(lines, "\n")
}
