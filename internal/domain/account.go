package domain

// Shop owns offers. Shops are managed by the account service.
type Shop struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:text;not null" json:"name"`
}

// TableName returns the database table name for Shop.
func (Shop) TableName() string {
	return "shops"
}

// User is a marketplace account that may upload import files.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"type:text;not null" json:"username"`
	Email    string `gorm:"type:text" json:"email"`
	ShopID   *uint  `json:"shop_id,omitempty"`
	Shop     *Shop  `json:"shop,omitempty"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}

// Uploader is the resolved identity behind an import: the user and the shop its offers belong to.
type Uploader struct {
	UserID   uint
	Username string
	Email    string
	ShopID   uint
	ShopName string
}
