package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/money"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the caller-facing wallet operations.
type Service interface {
	GetOrCreate(ctx context.Context, actor authz.Actor) (*WalletDTO, error)
	TopUp(ctx context.Context, actor authz.Actor, amount decimal.Decimal) (*TopUpResult, error)
	Transactions(ctx context.Context, actor authz.Actor, params pagination.Params) (*TransactionList, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger *Ledger
}

// NewService builds the wallet service.
func NewService(repo Repository, tx txRunner, ledger *Ledger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	return &service{repo: repo, tx: tx, ledger: ledger}, nil
}

func (s *service) GetOrCreate(ctx context.Context, actor authz.Actor) (*WalletDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	wallet, err := s.repo.CreateIfAbsent(ctx, actor.AccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	dto := NewWalletDTO(wallet)
	return &dto, nil
}

// TopUp credits the caller's wallet, creating it first when missing.
func (s *service) TopUp(ctx context.Context, actor authz.Actor, amount decimal.Decimal) (*TopUpResult, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	cents, err := money.FromDecimal(amount)
	if err != nil {
		return nil, err
	}
	if cents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}

	var (
		wallet *models.Wallet
		entry  *models.WalletTransaction
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		w, err := repo.CreateIfAbsent(ctx, actor.AccountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
		}
		entry, err = s.ledger.Credit(ctx, tx, EntryInput{
			WalletID:    w.ID,
			UserID:      actor.AccountID,
			AmountCents: cents,
			Type:        enums.WalletTransactionTopUp,
			Description: "top-up: " + money.Format(cents),
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		wallet, err = repo.FindByID(ctx, w.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload wallet")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &TopUpResult{Wallet: NewWalletDTO(wallet), Transaction: NewTransactionDTO(entry)}, nil
}

// Transactions pages through the caller's ledger, newest first. A caller
// without a wallet gets an empty page.
func (s *service) Transactions(ctx context.Context, actor authz.Actor, params pagination.Params) (*TransactionList, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	wallet, err := s.repo.FindByUserID(ctx, actor.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TransactionList{Transactions: []TransactionDTO{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	return ListForWallet(ctx, s.repo, wallet.ID, params)
}

// ListForWallet pages through one wallet's ledger.
func ListForWallet(ctx context.Context, repo Repository, walletID int64, params pagination.Params) (*TransactionList, error) {
	rows, err := repo.ListTransactions(ctx, walletID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list transactions")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(t models.WalletTransaction) int64 { return t.ID })
	out := make([]TransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewTransactionDTO(&rows[i]))
	}
	return &TransactionList{Transactions: out, NextCursor: next}, nil
}
