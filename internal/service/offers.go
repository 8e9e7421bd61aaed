package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/repository"
	"gorm.io/gorm"
)

// OfferUpserter creates shop offers for imported products.
type OfferUpserter struct {
	offers  *repository.OfferRepository
	refresh bool
}

// NewOfferUpserter creates an upserter. With refresh false an existing offer keeps its price and remains.
func NewOfferUpserter(offers *repository.OfferRepository, refresh bool) *OfferUpserter {
	return &OfferUpserter{offers: offers, refresh: refresh}
}

// UpsertOffer returns the offer of shopID for productID, creating it with price and remains when missing.
// Returns true when the offer was created by this call.
func (u *OfferUpserter) UpsertOffer(ctx context.Context, shopID, productID uint, price float64, remains int) (*domain.Offer, bool, error) {
	offer, err := u.offers.GetByShopProduct(ctx, shopID, productID)
	if err == nil {
		if u.refresh && (offer.Price != price || offer.Remains != remains) {
			if err := u.offers.UpdateStock(ctx, offer, price, remains); err != nil {
				return nil, false, fmt.Errorf("update offer %d: %w", offer.ID, err)
			}
		}
		return offer, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("get offer: %w", err)
	}

	offer = &domain.Offer{ShopID: shopID, ProductID: productID, Price: price, Remains: remains}
	if err := u.offers.Create(ctx, offer); err != nil {
		return nil, false, fmt.Errorf("create offer: %w", err)
	}
	return offer, true, nil
}
