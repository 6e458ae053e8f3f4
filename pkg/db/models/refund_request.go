package models

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// RefundRequest asks for part or all of an order's total back. An order has
// at most one request that is not rejected.
type RefundRequest struct {
	ID          int64               `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     int64               `gorm:"column:order_id;not null;index;uniqueIndex:ux_refund_requests_active_order,where:status <> 'rejected'"`
	UserID      int64               `gorm:"column:user_id;not null;index"`
	Reason      *string             `gorm:"column:reason"`
	AmountCents int64               `gorm:"column:amount_cents;not null"`
	Status      enums.RequestStatus `gorm:"column:status;type:text;not null;default:pending"`
	Order       *Order              `gorm:"foreignKey:OrderID"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
