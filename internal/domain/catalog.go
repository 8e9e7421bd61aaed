package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Details is a free-form attribute map stored as JSON.
type Details map[string]string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (d *Details) Scan(value interface{}) error {
	if value == nil {
		*d = Details{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Details")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, d)
}

// Category is a node of the catalog tree. Names are unique across the whole tree.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null;uniqueIndex" json:"name"`
	ParentID  *uint     `gorm:"index:idx_categories_parent_sort,unique" json:"parent_id,omitempty"`
	Parent    *Category `gorm:"foreignKey:ParentID" json:"-"`
	SortIndex int       `gorm:"not null;default:0;index:idx_categories_parent_sort,unique" json:"sort_index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string {
	return "categories"
}

// Tag is a globally unique product label.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string {
	return "tags"
}

// Product is identified by its name within a category.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:text;not null;uniqueIndex:idx_products_name_category" json:"name"`
	CategoryID  uint      `gorm:"not null;uniqueIndex:idx_products_name_category" json:"category_id"`
	Category    *Category `json:"category,omitempty"`
	Description string    `gorm:"type:text" json:"description"`
	Details     Details   `gorm:"type:text" json:"details"`
	Tags        []Tag     `gorm:"many2many:product_tags" json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string {
	return "products"
}

// Offer is a shop's sellable listing of a product.
type Offer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ShopID    uint      `gorm:"not null;uniqueIndex:idx_offers_shop_product" json:"shop_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_offers_shop_product" json:"product_id"`
	Price     float64   `gorm:"not null" json:"price"`
	Remains   int       `gorm:"not null;default:0" json:"remains"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Offer.
func (Offer) TableName() string {
	return "offers"
}
