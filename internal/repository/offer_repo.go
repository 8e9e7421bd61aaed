package repository

import (
	"context"

	"github.com/timmy/marketplace/internal/domain"
	"gorm.io/gorm"
)

// OfferRepository handles shop offers.
type OfferRepository struct {
	db *gorm.DB
}

// NewOfferRepository creates a new OfferRepository.
func NewOfferRepository(db *gorm.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *OfferRepository) WithTx(tx *gorm.DB) *OfferRepository {
	return &OfferRepository{db: tx}
}

// GetByShopProduct retrieves the offer of a shop for a product.
// Returns gorm.ErrRecordNotFound when the shop does not sell the product yet.
func (r *OfferRepository) GetByShopProduct(ctx context.Context, shopID, productID uint) (*domain.Offer, error) {
	var offer domain.Offer
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND product_id = ?", shopID, productID).
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// Create inserts a new offer.
func (r *OfferRepository) Create(ctx context.Context, offer *domain.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

// UpdateStock sets price and remains of an existing offer.
func (r *OfferRepository) UpdateStock(ctx context.Context, offer *domain.Offer, price float64, remains int) error {
	if err := r.db.WithContext(ctx).Model(offer).Updates(map[string]interface{}{
		"price":   price,
		"remains": remains,
	}).Error; err != nil {
		return err
	}
	offer.Price = price
	offer.Remains = remains
	return nil
}
