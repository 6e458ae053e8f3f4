package admin

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/handmade-market/internal/users"
	"github.com/angelmondragon/handmade-market/pkg/enums"
)

// StatsDTO is the admin dashboard. Money fields are decimal strings.
type StatsDTO struct {
	TotalUsers            int64  `json:"total_users"`
	TotalProducts         int64  `json:"total_products"`
	TotalOrders           int64  `json:"total_orders"`
	TotalTransactions     int64  `json:"total_transactions"`
	PendingProducts       int64  `json:"pending_products"`
	TotalRevenue          string `json:"total_revenue"`
	TodayTopUps           string `json:"today_top_ups"`
	SystemCommission      string `json:"system_commission"`
	TotalCommissionEarned string `json:"total_commission_earned"`
}

// UpdateUserInput changes account and profile fields. Nil fields are kept.
type UpdateUserInput struct {
	Email   *string
	Role    *enums.Role
	Profile users.ProfileInput
}

// AdjustBalanceInput moves money in or out of a user's wallet.
type AdjustBalanceInput struct {
	UserID      int64
	Amount      decimal.Decimal
	Description *string
}
