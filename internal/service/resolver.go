package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/repository"
	"gorm.io/gorm"
)

// CatalogResolver maps import records onto categories, tags and products.
// It is bound to the transaction of a single run.
type CatalogResolver struct {
	catalog *repository.CatalogRepository
}

// NewCatalogResolver creates a resolver over catalog, which is usually bound to a transaction.
func NewCatalogResolver(catalog *repository.CatalogRepository) *CatalogResolver {
	return &CatalogResolver{catalog: catalog}
}

// ResolveCategory returns the category called name, creating it when missing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: unique category name.
//   - parentName: optional parent, resolved as a root category first when parentID is nil.
//   - parentID: optional parent ID, takes precedence over parentName.
// Returns:
//   - *domain.Category: stored category.
//   - bool: true if the category was created by this call.
//   - error: non-nil if any lookup or insert fails.
func (r *CatalogResolver) ResolveCategory(ctx context.Context, name, parentName string, parentID *uint) (*domain.Category, bool, error) {
	existing, err := r.catalog.GetCategoryByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("get category %q: %w", name, err)
	}

	if parentID == nil && parentName != "" {
		parent, _, err := r.ResolveCategory(ctx, parentName, "", nil)
		if err != nil {
			return nil, false, err
		}
		parentID = &parent.ID
	}

	sortIndex, err := r.catalog.NextSortIndex(ctx, parentID)
	if err != nil {
		return nil, false, fmt.Errorf("next sort index for %q: %w", name, err)
	}

	category := &domain.Category{Name: name, ParentID: parentID, SortIndex: sortIndex}
	if err := r.catalog.CreateCategory(ctx, category); err != nil {
		return nil, false, fmt.Errorf("create category %q: %w", name, err)
	}
	return category, true, nil
}

// ResolveTag returns the tag called name, creating it when missing.
func (r *CatalogResolver) ResolveTag(ctx context.Context, name string) (*domain.Tag, error) {
	tag, err := r.catalog.GetOrCreateTag(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve tag %q: %w", name, err)
	}
	return tag, nil
}

// ResolveProduct creates or updates the product described by rec and links it to jobID.
// The product belongs to the sub-category when one is given, otherwise to the main category.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: import job that touches the product.
//   - rec: validated import record.
// Returns:
//   - *domain.Product: stored product with its tags.
//   - bool: true if the product was created by this call.
//   - error: non-nil if any statement fails.
func (r *CatalogResolver) ResolveProduct(ctx context.Context, jobID string, rec *ProductRecord) (*domain.Product, bool, error) {
	main, _, err := r.ResolveCategory(ctx, rec.MainCategory, "", nil)
	if err != nil {
		return nil, false, err
	}
	category := main
	if rec.SubCategory != "" {
		category, _, err = r.ResolveCategory(ctx, rec.SubCategory, main.Name, &main.ID)
		if err != nil {
			return nil, false, err
		}
	}

	tags := make([]domain.Tag, 0, len(rec.Tags))
	for _, name := range rec.Tags {
		tag, err := r.ResolveTag(ctx, name)
		if err != nil {
			return nil, false, err
		}
		tags = append(tags, *tag)
	}

	product, created, err := r.upsertProduct(ctx, rec, category, tags)
	if err != nil {
		return nil, false, err
	}

	if err := r.catalog.LinkProduct(ctx, jobID, product.ID); err != nil {
		return nil, false, fmt.Errorf("link product %d: %w", product.ID, err)
	}
	return product, created, nil
}

func (r *CatalogResolver) upsertProduct(ctx context.Context, rec *ProductRecord, category *domain.Category, tags []domain.Tag) (*domain.Product, bool, error) {
	product, err := r.catalog.FindProduct(ctx, rec.Name, category.ID)
	switch {
	case err == nil:
		if err := r.catalog.UpdateProduct(ctx, product, rec.Description, rec.Details, tags); err != nil {
			return nil, false, fmt.Errorf("update product %q: %w", rec.Name, err)
		}
		product.Category = category
		return product, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, fmt.Errorf("find product %q: %w", rec.Name, err)
	}

	product = &domain.Product{
		Name:        rec.Name,
		CategoryID:  category.ID,
		Description: rec.Description,
		Details:     rec.Details,
		Tags:        tags,
	}
	if err := r.catalog.CreateProduct(ctx, product); err != nil {
		return nil, false, fmt.Errorf("create product %q: %w", rec.Name, err)
	}
	product.Category = category
	return product, true, nil
}
