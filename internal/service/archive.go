package service

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/storage"
)

// ArchiveTimeLayout renders HH-MM-SS_DD-MM-YYYY.
const ArchiveTimeLayout = "15-04-05_02-01-2006"

// Archiver keeps a copy of every processed upload, filed by outcome.
type Archiver struct {
	storage       storage.ObjectStorage
	successfulDir string
	failedDir     string
	now           func() time.Time
}

// NewArchiver creates an archiver writing under successfulDir or failedDir of objectStorage.
func NewArchiver(objectStorage storage.ObjectStorage, successfulDir, failedDir string) *Archiver {
	return &Archiver{
		storage:       objectStorage,
		successfulDir: successfulDir,
		failedDir:     failedDir,
		now:           time.Now,
	}
}

// Key returns the archive key for an upload finished with status.
func (a *Archiver) Key(status domain.JobStatus, shopName, ext string, at time.Time) string {
	dir := a.failedDir
	if status == domain.JobStatusCompleted {
		dir = a.successfulDir
	}
	return path.Join(dir, fmt.Sprintf("%s_%s%s", at.Format(ArchiveTimeLayout), sanitizeFileName(shopName), ext))
}

// Archive stores content and returns its locator.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: terminal status of the run; only completed runs go to the successful directory.
//   - shopName: uploader's shop, part of the file name.
//   - ext: file extension with the dot.
//   - content: original upload bytes.
// Returns:
//   - string: storage locator of the archived copy.
//   - error: non-nil if the write fails.
func (a *Archiver) Archive(ctx context.Context, status domain.JobStatus, shopName, ext string, content []byte) (string, error) {
	key := a.Key(status, shopName, ext, a.now())
	if err := a.storage.Upload(ctx, key, bytes.NewReader(content), int64(len(content)), contentType(ext)); err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return a.storage.GetURL(key), nil
}

func contentType(ext string) string {
	switch ext {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// sanitizeFileName keeps a shop name usable as one path segment.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			return '_'
		}
		return r
	}, name)
}
