package wallet

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EntryInput describes one balance movement. AmountCents is the magnitude;
// Credit stores it positive and Debit negative.
type EntryInput struct {
	WalletID    int64
	UserID      int64
	AmountCents int64
	Type        enums.WalletTransactionType
	Description string
	OrderID     *int64
	Actor       authz.Actor
}

// Ledger applies balance changes and their ledger entries together. Every
// method runs on the caller's transaction; it never opens its own.
type Ledger struct {
	repo   Repository
	outbox outboxPublisher
}

// NewLedger wires the ledger with its repository and event sink.
func NewLedger(repo Repository, outbox outboxPublisher) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Ledger{repo: repo, outbox: outbox}, nil
}

// Credit adds the amount to the wallet and appends a positive entry.
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, in EntryInput) (*models.WalletTransaction, error) {
	if err := validateEntry(tx, in); err != nil {
		return nil, err
	}
	repo := l.repo.WithTx(tx)
	if err := repo.Increment(ctx, in.WalletID, in.AmountCents); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit wallet")
	}
	return l.record(ctx, tx, repo, in, in.AmountCents, enums.EventWalletCredited)
}

// Debit subtracts the amount only when the balance covers it and appends a
// negative entry. It returns an INSUFFICIENT_BALANCE error otherwise, leaving
// the wallet untouched.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, in EntryInput) (*models.WalletTransaction, error) {
	if err := validateEntry(tx, in); err != nil {
		return nil, err
	}
	repo := l.repo.WithTx(tx)
	ok, err := repo.DecrementIfSufficient(ctx, in.WalletID, in.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit wallet")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance")
	}
	return l.record(ctx, tx, repo, in, -in.AmountCents, enums.EventWalletDebited)
}

func (l *Ledger) record(ctx context.Context, tx *gorm.DB, repo Repository, in EntryInput, signed int64, eventType enums.OutboxEventType) (*models.WalletTransaction, error) {
	entry := &models.WalletTransaction{
		WalletID:    in.WalletID,
		AmountCents: signed,
		Type:        in.Type,
		OrderID:     in.OrderID,
	}
	if in.Description != "" {
		desc := in.Description
		entry.Description = &desc
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert wallet transaction")
	}

	wallet, err := repo.FindByID(ctx, in.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload wallet")
	}

	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateWallet,
		AggregateID:   in.WalletID,
		Actor:         outbox.Actor(in.Actor.AccountID, in.Actor.Role.String()),
		Data: payloads.WalletMovementEvent{
			WalletID:      in.WalletID,
			UserID:        wallet.UserID,
			TransactionID: entry.ID,
			AmountCents:   signed,
			Type:          in.Type,
			OrderID:       in.OrderID,
			BalanceCents:  wallet.BalanceCents,
		},
	}
	if err := l.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit wallet event")
	}
	return entry, nil
}

func validateEntry(tx *gorm.DB, in EntryInput) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if in.WalletID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if in.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !in.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transaction type %q", in.Type)
	}
	return nil
}
