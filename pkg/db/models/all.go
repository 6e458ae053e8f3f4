package models

// All lists every persisted model in dependency order. Used by sqlite
// auto-migration in local development and tests.
func All() []any {
	return []any{
		&User{},
		&Profile{},
		&Wallet{},
		&WalletTransaction{},
		&Category{},
		&Product{},
		&Review{},
		&Order{},
		&OrderItem{},
		&RefundRequest{},
		&StockRequest{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
