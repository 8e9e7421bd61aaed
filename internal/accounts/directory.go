package accounts

import (
	"context"
	"fmt"

	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/repository"
)

// Directory resolves an uploader ID to the account and shop it acts for.
type Directory interface {
	GetUploader(ctx context.Context, userID uint) (*domain.Uploader, error)
}

// NewDirectory builds the directory selected by cfg.Backend.
// Parameters:
//   - cfg: accounts configuration.
//   - users: database-backed repository used by the "db" backend.
// Returns:
//   - Directory: configured implementation.
//   - error: non-nil for an unknown backend.
func NewDirectory(cfg *config.AccountsConfig, users *repository.UserRepository) (Directory, error) {
	switch cfg.Backend {
	case "db", "":
		return users, nil
	case "http":
		return NewHTTPDirectory(&HTTPConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown accounts backend %q", cfg.Backend)
	}
}
