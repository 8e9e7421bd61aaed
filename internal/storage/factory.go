package storage

import (
	"context"
	"strings"

	"github.com/timmy/marketplace/internal/config"
)

// NewStorage creates the archive storage selected by cfg.Type.
// Parameters:
//   - ctx: context used to verify the bucket for S3 backends.
//   - cfg: storage configuration.
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the storage cannot be created.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	if cfg.Type == "local" || cfg.Type == "" {
		return NewLocalStorage(cfg.DocsRoot)
	}

	storeType := StorageType(cfg.Type)
	if storeType == "s3" && cfg.Endpoint != "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	s3Storage, err := NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Prefix:    cfg.Prefix,
	})
	if err != nil {
		return nil, err
	}
	if err := s3Storage.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3Storage, nil
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
