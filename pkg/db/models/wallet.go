package models

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// Wallet holds a user's internal currency balance in cents.
// BalanceCents always equals the sum of its transactions' AmountCents.
type Wallet struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       int64     `gorm:"column:user_id;not null;uniqueIndex"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// WalletTransaction is an append-only ledger entry. Credits are positive,
// debits negative.
type WalletTransaction struct {
	ID          int64                       `gorm:"column:id;primaryKey;autoIncrement"`
	WalletID    int64                       `gorm:"column:wallet_id;not null;index"`
	AmountCents int64                       `gorm:"column:amount_cents;not null"`
	Type        enums.WalletTransactionType `gorm:"column:type;type:text;not null;index"`
	Description *string                     `gorm:"column:description"`
	OrderID     *int64                      `gorm:"column:order_id;index"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime;index"`
}
