package models

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// Product is a seller's listing. Only approved products can be purchased.
type Product struct {
	ID          int64               `gorm:"column:id;primaryKey;autoIncrement"`
	SellerID    int64               `gorm:"column:seller_id;not null;index"`
	CategoryID  *int64              `gorm:"column:category_id;index"`
	Name        string              `gorm:"column:name;not null"`
	Description *string             `gorm:"column:description"`
	PriceCents  int64               `gorm:"column:price_cents;not null"`
	Stock       int                 `gorm:"column:stock;not null;default:0"`
	Status      enums.ProductStatus `gorm:"column:status;type:text;not null;default:pending;index"`
	Materials   *string             `gorm:"column:materials"`
	TimeToMake  *string             `gorm:"column:time_to_make"`
	Seller      *User               `gorm:"foreignKey:SellerID"`
	Category    *Category           `gorm:"foreignKey:CategoryID"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
