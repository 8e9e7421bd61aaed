package domain

import "time"

// JobStatus represents the status of an import job.
// Values include JobStatusInProgress, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// JobStatusQueued is reported for uploads waiting in the async queue.
	// It is never persisted on an ImportJob row.
	JobStatusQueued JobStatus = "queued"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImportJob is the audit record of one import run.
type ImportJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	UploaderID     uint       `gorm:"not null;index:idx_import_jobs_uploader_file" json:"uploader_id"`
	FileName       string     `gorm:"type:text;not null;index:idx_import_jobs_uploader_file" json:"file_name"`
	Status         JobStatus  `gorm:"type:text;not null;index;default:in_progress" json:"status"`
	TotalRows      int        `gorm:"default:0" json:"total_rows"`
	SuccessfulRows int        `gorm:"default:0" json:"successful_rows"`
	FailedRows     int        `gorm:"default:0" json:"failed_rows"`
	ErrorDetail    string     `gorm:"type:text" json:"error_detail,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}

// ImportedProductLink ties a product to an import run that created or touched it.
type ImportedProductLink struct {
	ImportJobID string    `gorm:"type:text;primaryKey" json:"import_job_id"`
	ProductID   uint      `gorm:"primaryKey" json:"product_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for ImportedProductLink.
func (ImportedProductLink) TableName() string {
	return "imported_product_links"
}
