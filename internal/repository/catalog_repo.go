package repository

import (
	"context"
	"database/sql"

	"github.com/timmy/marketplace/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository handles categories, tags and products.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CatalogRepository: repository instance bound to db.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *CatalogRepository) WithTx(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

// GetCategoryByName retrieves a category by its unique name.
// Returns gorm.ErrRecordNotFound when no category matches.
func (r *CatalogRepository) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	var category domain.Category
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// NextSortIndex returns max(sort_index)+1 among the children of parentID, or 0 for the first child.
// A nil parentID addresses root categories.
func (r *CatalogRepository) NextSortIndex(ctx context.Context, parentID *uint) (int, error) {
	q := r.db.WithContext(ctx).Model(&domain.Category{})
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}

	var max sql.NullInt64
	if err := q.Select("MAX(sort_index)").Row().Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

// CreateCategory inserts a new category.
func (r *CatalogRepository) CreateCategory(ctx context.Context, category *domain.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

// GetOrCreateTag returns the tag with the given name, inserting it first when missing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: unique tag name.
// Returns:
//   - *domain.Tag: stored tag.
//   - error: non-nil if the insert or lookup fails.
func (r *CatalogRepository) GetOrCreateTag(ctx context.Context, name string) (*domain.Tag, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&domain.Tag{Name: name}).Error; err != nil {
		return nil, err
	}

	var tag domain.Tag
	if err := db.Where("name = ?", name).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// FindProduct retrieves a product by name within a category.
// Returns gorm.ErrRecordNotFound when no product matches.
func (r *CatalogRepository) FindProduct(ctx context.Context, name string, categoryID uint) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).
		Where("name = ? AND category_id = ?", name, categoryID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a product together with its tag associations.
func (r *CatalogRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// UpdateProduct overwrites description, details and tags of an existing product.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - product: stored product; its fields are updated in place.
//   - description: new description.
//   - details: new attribute map.
//   - tags: full replacement tag set.
// Returns:
//   - error: non-nil if any statement fails.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, product *domain.Product, description string, details domain.Details, tags []domain.Tag) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(product).Updates(map[string]interface{}{
		"description": description,
		"details":     details,
	}).Error; err != nil {
		return err
	}
	product.Description = description
	product.Details = details

	if err := db.Model(product).Association("Tags").Replace(tags); err != nil {
		return err
	}
	product.Tags = tags
	return nil
}

// LinkProduct records that an import job touched a product. Repeated links are ignored.
func (r *CatalogRepository) LinkProduct(ctx context.Context, jobID string, productID uint) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.ImportedProductLink{ImportJobID: jobID, ProductID: productID}).Error
}

// ListProductsByJob returns products linked to an import job, with category and tags loaded.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: import job ID.
// Returns:
//   - []domain.Product: linked products ordered by ID.
//   - error: non-nil if the query fails.
func (r *CatalogRepository) ListProductsByJob(ctx context.Context, jobID string) ([]domain.Product, error) {
	var products []domain.Product
	err := r.db.WithContext(ctx).
		Joins("JOIN imported_product_links ON imported_product_links.product_id = products.id").
		Where("imported_product_links.import_job_id = ?", jobID).
		Preload("Category").
		Preload("Tags").
		Order("products.id ASC").
		Find(&products).Error
	return products, err
}
