package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/marketplace/internal/domain"
	"gorm.io/gorm"
)

// UserRepository reads marketplace accounts and their shops.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUploader resolves a user ID to the user and the shop its offers go to.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: account ID of the uploader.
// Returns:
//   - *domain.Uploader: resolved identity.
//   - error: domain.ErrUploaderNotFound or domain.ErrShopNotFound, or the query error.
func (r *UserRepository) GetUploader(ctx context.Context, userID uint) (*domain.Uploader, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Preload("Shop").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.WrapError(domain.ErrUploaderNotFound, "get uploader", fmt.Errorf("user %d", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("get uploader: %w", err)
	}
	if user.Shop == nil {
		return nil, domain.WrapError(domain.ErrShopNotFound, "get uploader", fmt.Errorf("user %d", userID))
	}

	return &domain.Uploader{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		ShopID:   user.Shop.ID,
		ShopName: user.Shop.Name,
	}, nil
}
