package wallet

import (
	"time"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

// WalletDTO is the API view of a wallet.
type WalletDTO struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Balance      string    `json:"balance"`
	BalanceCents int64     `json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TransactionDTO is the API view of a ledger entry.
type TransactionDTO struct {
	ID          int64                       `json:"id"`
	WalletID    int64                       `json:"wallet_id"`
	Amount      string                      `json:"amount"`
	AmountCents int64                       `json:"amount_cents"`
	Type        enums.WalletTransactionType `json:"type"`
	Description *string                     `json:"description,omitempty"`
	OrderID     *int64                      `json:"order_id,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// OwnedTransactionDTO adds the owning account for admin listings.
type OwnedTransactionDTO struct {
	TransactionDTO
	UserID    int64  `json:"user_id"`
	UserEmail string `json:"user_email"`
}

// TransactionList wraps a page of ledger entries.
type TransactionList struct {
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

// TopUpResult is returned after a successful top-up.
type TopUpResult struct {
	Wallet      WalletDTO      `json:"wallet"`
	Transaction TransactionDTO `json:"transaction"`
}

func NewWalletDTO(w *models.Wallet) WalletDTO {
	return WalletDTO{
		ID:           w.ID,
		UserID:       w.UserID,
		Balance:      money.Format(w.BalanceCents),
		BalanceCents: w.BalanceCents,
		UpdatedAt:    w.UpdatedAt,
	}
}

func NewTransactionDTO(t *models.WalletTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          t.ID,
		WalletID:    t.WalletID,
		Amount:      money.Format(t.AmountCents),
		AmountCents: t.AmountCents,
		Type:        t.Type,
		Description: t.Description,
		OrderID:     t.OrderID,
		CreatedAt:   t.CreatedAt,
	}
}

func NewOwnedTransactionDTO(t *TransactionWithOwner) OwnedTransactionDTO {
	return OwnedTransactionDTO{
		TransactionDTO: NewTransactionDTO(&t.WalletTransaction),
		UserID:         t.UserID,
		UserEmail:      t.UserEmail,
	}
}
