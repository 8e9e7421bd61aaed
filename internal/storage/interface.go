package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for object storage operations.
// Keys are slash-separated paths relative to the storage root.
type ObjectStorage interface {
	// Upload writes an object, replacing any existing one
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns a locator for an object (file path or public URL)
	GetURL(key string) string

	// Delete deletes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
