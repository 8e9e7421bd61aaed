package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/logger"
	"github.com/timmy/marketplace/internal/queue"
	"github.com/timmy/marketplace/internal/source"
)

// Importer is the import service as seen by the HTTP layer.
type Importer interface {
	NewJobID() string
	StartImport(ctx context.Context, upload *source.Upload, uploaderID uint) (string, error)
	GetImportStatus(ctx context.Context, jobID string) (*domain.ImportJob, error)
	ListRecentImports(ctx context.Context, limit int) ([]domain.ImportJob, error)
	ListImportedProducts(ctx context.Context, jobID string) ([]domain.Product, error)
}

// JobQueue hands uploads to background workers.
type JobQueue interface {
	Enqueue(ctx context.Context, task *queue.Task) error
	Lookup(ctx context.Context, jobID string) (*queue.Task, error)
}

// ImportHandler handles catalog import endpoints.
type ImportHandler struct {
	importer      Importer
	queue         JobQueue
	maxUploadSize int64
}

// NewImportHandler creates a new import handler.
// Parameters:
//   - importer: import service.
//   - jobQueue: async queue, nil when async imports are disabled.
//   - maxUploadSize: upload size limit in bytes, 0 for no limit.
// Returns:
//   - *ImportHandler: initialized handler.
func NewImportHandler(importer Importer, jobQueue JobQueue, maxUploadSize int64) *ImportHandler {
	return &ImportHandler{
		importer:      importer,
		queue:         jobQueue,
		maxUploadSize: maxUploadSize,
	}
}

// QueuedJobResponse describes an upload that has not reached the audit log yet.
type QueuedJobResponse struct {
	JobID    string           `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	FileName string           `json:"file_name,omitempty"`
	QueuedAt *time.Time       `json:"queued_at,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ProductsResponse lists products touched by an import.
type ProductsResponse struct {
	JobID    string           `json:"job_id"`
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
}

// StartImport handles POST /api/v1/imports.
// Form fields: file (multipart), uploader_id, async (optional bool).
func (h *ImportHandler) StartImport(c *gin.Context) {
	ctx := c.Request.Context()

	uploaderID, err := strconv.ParseUint(c.PostForm("uploader_id"), 10, 64)
	if err != nil || uploaderID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploader_id must be a positive integer"})
		return
	}

	upload, err := h.readUpload(c)
	if err != nil {
		logger.CtxWarn(ctx, "Invalid import upload: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	async, _ := strconv.ParseBool(c.DefaultPostForm("async", "false"))
	if async {
		h.enqueue(c, upload, uint(uploaderID))
		return
	}

	logger.CtxInfo(ctx, "Running import: file=%s, uploader_id=%d, size=%d", upload.FileName, uploaderID, len(upload.Content))

	jobID, err := h.importer.StartImport(ctx, upload, uint(uploaderID))
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField(logger.FieldJobID, jobID).Error("Import failed")
		body := gin.H{"error": err.Error()}
		if jobID != "" {
			body["job_id"] = jobID
		}
		c.JSON(errorStatus(err), body)
		return
	}

	job, err := h.importer.GetImportStatus(ctx, jobID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error(), "job_id": jobID})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *ImportHandler) enqueue(c *gin.Context, upload *source.Upload, uploaderID uint) {
	ctx := c.Request.Context()
	if h.queue == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "async imports are disabled"})
		return
	}

	task := &queue.Task{
		JobID:      h.importer.NewJobID(),
		FileName:   upload.FileName,
		UploaderID: uploaderID,
		Content:    upload.Content,
	}
	if err := h.queue.Enqueue(ctx, task); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to enqueue import")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue import"})
		return
	}

	logger.CtxInfo(ctx, "Import queued: job_id=%s, file=%s, uploader_id=%d", task.JobID, task.FileName, uploaderID)
	c.JSON(http.StatusAccepted, QueuedJobResponse{
		JobID:    task.JobID,
		Status:   task.Status,
		FileName: task.FileName,
		QueuedAt: &task.QueuedAt,
	})
}

func (h *ImportHandler) readUpload(c *gin.Context) (*source.Upload, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, errors.New("file is required")
	}
	if h.maxUploadSize > 0 && fileHeader.Size > h.maxUploadSize {
		return nil, errors.New("file is too large")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &source.Upload{FileName: fileHeader.Filename, Content: content}, nil
}

// GetImportStatus handles GET /api/v1/imports/:id.
// Jobs still waiting in the queue are reported from the queue metadata.
func (h *ImportHandler) GetImportStatus(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	job, err := h.importer.GetImportStatus(ctx, jobID)
	if err == nil {
		c.JSON(http.StatusOK, job)
		return
	}
	if !errors.Is(err, domain.ErrJobNotFound) || h.queue == nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	task, qErr := h.queue.Lookup(ctx, jobID)
	if qErr != nil {
		c.JSON(errorStatus(qErr), gin.H{"error": qErr.Error()})
		return
	}
	c.JSON(http.StatusOK, QueuedJobResponse{
		JobID:    task.JobID,
		Status:   task.Status,
		FileName: task.FileName,
		QueuedAt: &task.QueuedAt,
		Error:    task.Error,
	})
}

// ListImports handles GET /api/v1/imports.
func (h *ImportHandler) ListImports(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.importer.ListRecentImports(c.Request.Context(), limit)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// ListImportedProducts handles GET /api/v1/imports/:id/products.
func (h *ImportHandler) ListImportedProducts(c *gin.Context) {
	jobID := c.Param("id")

	products, err := h.importer.ListImportedProducts(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ProductsResponse{JobID: jobID, Products: products, Total: len(products)})
}

// errorStatus maps error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrUploaderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrShopNotFound), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrLockTimeout), errors.Is(err, domain.ErrLockLost), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
