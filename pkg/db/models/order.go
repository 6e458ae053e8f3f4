package models

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// Order is created atomically with its items. TotalCents is the sum of the
// item price snapshots times quantity.
type Order struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement"`
	BuyerID         int64             `gorm:"column:buyer_id;not null;index"`
	TotalCents      int64             `gorm:"column:total_cents;not null"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:pending;index"`
	ShippingAddress *string           `gorm:"column:shipping_address"`
	Phone           *string           `gorm:"column:phone"`
	Notes           *string           `gorm:"column:notes"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots the unit price at purchase time.
type OrderItem struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID    int64     `gorm:"column:order_id;not null;index"`
	ProductID  int64     `gorm:"column:product_id;not null;index"`
	Quantity   int       `gorm:"column:quantity;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Product    *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
