package models

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// StockRequest is a buyer's ask for an out-of-stock product to be restocked.
// A user has at most one request per product that is not rejected.
type StockRequest struct {
	ID                     int64               `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID              int64               `gorm:"column:product_id;not null;index;uniqueIndex:ux_stock_requests_active,where:status <> 'rejected'"`
	UserID                 int64               `gorm:"column:user_id;not null;index;uniqueIndex:ux_stock_requests_active"`
	Quantity               int                 `gorm:"column:quantity;not null"`
	Status                 enums.RequestStatus `gorm:"column:status;type:text;not null;default:pending"`
	ExpectedCompletionDate *time.Time          `gorm:"column:expected_completion_date"`
	Product                *Product            `gorm:"foreignKey:ProductID"`
	CreatedAt              time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
