package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/internal/users"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/money"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

const workflowAdjustBalance = "admin_adjust_balance"

// Service is the admin console. Every method requires the admin role.
type Service interface {
	Stats(ctx context.Context, actor authz.Actor) (*StatsDTO, error)
	Users(ctx context.Context, actor authz.Actor, role *enums.Role) ([]users.UserDTO, error)
	UpdateUser(ctx context.Context, actor authz.Actor, userID int64, input UpdateUserInput) (*users.UserDTO, error)
	UpdateUserRole(ctx context.Context, actor authz.Actor, userID int64, role enums.Role) (*users.UserDTO, error)
	DeleteUser(ctx context.Context, actor authz.Actor, userID int64) error
	Transactions(ctx context.Context, actor authz.Actor, limit int) ([]wallet.OwnedTransactionDTO, error)
	UserTransactions(ctx context.Context, actor authz.Actor, userID int64, params pagination.Params) (*wallet.TransactionList, error)
	AdjustBalance(ctx context.Context, actor authz.Actor, input AdjustBalanceInput) (*wallet.TopUpResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type walletLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, in wallet.EntryInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, tx *gorm.DB, in wallet.EntryInput) (*models.WalletTransaction, error)
}

type outcomeRecorder interface {
	Observe(workflow string, err error)
}

type noopOutcomes struct{}

func (noopOutcomes) Observe(string, error) {}

// ServiceParams groups the admin console's collaborators.
type ServiceParams struct {
	Repo     Repository
	Users    *users.Repository
	Wallets  wallet.Repository
	Ledger   walletLedger
	Tx       txRunner
	Commerce config.CommerceConfig
	Outcomes outcomeRecorder
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	users    *users.Repository
	wallets  wallet.Repository
	ledger   walletLedger
	tx       txRunner
	commerce config.CommerceConfig
	outcomes outcomeRecorder
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("admin repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("user repository required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	commerce := params.Commerce
	if commerce == (config.CommerceConfig{}) {
		commerce.CommissionRatePercent = money.CommissionRatePercent
	}
	if commerce.AdminTransactionsLimit <= 0 {
		commerce.AdminTransactionsLimit = 100
	}
	if commerce.AdminTransactionsMaxLimit <= 0 {
		commerce.AdminTransactionsMaxLimit = 500
	}
	outcomes := params.Outcomes
	if outcomes == nil {
		outcomes = noopOutcomes{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		wallets:  params.Wallets,
		ledger:   params.Ledger,
		tx:       params.Tx,
		commerce: commerce,
		outcomes: outcomes,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Stats computes the dashboard. Revenue counts purchase debits; the system
// commission applies the rate to that total once, while the earned
// commission floors the rate per delivered order.
func (s *service) Stats(ctx context.Context, actor authz.Actor) (*StatsDTO, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: count rows")
	}
	purchases, err := s.wallets.SumByTypeSince(ctx, enums.WalletTransactionPurchase, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: sum purchases")
	}
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	topUps, err := s.wallets.SumByTypeSince(ctx, enums.WalletTransactionTopUp, &midnight)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: sum top-ups")
	}
	delivered, err := s.repo.DeliveredOrderTotals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: delivered orders")
	}

	rate := s.commerce.CommissionRatePercent
	revenue := money.Abs(purchases)
	var earned int64
	for _, total := range delivered {
		earned += money.Commission(total, rate)
	}
	return &StatsDTO{
		TotalUsers:            counts.Users,
		TotalProducts:         counts.Products,
		TotalOrders:           counts.Orders,
		TotalTransactions:     counts.Transactions,
		PendingProducts:       counts.PendingProducts,
		TotalRevenue:          money.Format(revenue),
		TodayTopUps:           money.Format(topUps),
		SystemCommission:      money.Format(money.Commission(revenue, rate)),
		TotalCommissionEarned: money.Format(earned),
	}, nil
}

func (s *service) Users(ctx context.Context, actor authz.Actor, role *enums.Role) ([]users.UserDTO, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if role != nil && !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	rows, err := s.users.List(ctx, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: list users")
	}
	out := make([]users.UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *users.FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) UpdateUser(ctx context.Context, actor authz.Actor, userID int64, input UpdateUserInput) (*users.UserDTO, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if input.Email != nil {
		email := users.NormalizeEmail(*input.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
		}
		updates["email"] = email
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
		}
		updates["role"] = *input.Role
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		if err := repo.UpdateFields(ctx, userID, updates); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: update user")
		}
		if err := repo.UpsertProfile(ctx, userID, input.Profile); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: upsert profile")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{"target_user_id": userID}), "admin.user.updated")
	return s.userDTO(ctx, userID)
}

func (s *service) UpdateUserRole(ctx context.Context, actor authz.Actor, userID int64, role enums.Role) (*users.UserDTO, error) {
	return s.UpdateUser(ctx, actor, userID, UpdateUserInput{Role: &role})
}

func (s *service) DeleteUser(ctx context.Context, actor authz.Actor, userID int64) error {
	if err := authz.RequireAdmin(actor); err != nil {
		return err
	}
	if userID == actor.AccountID {
		return pkgerrors.New(pkgerrors.CodeValidation, "you cannot delete your own account")
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}
	orders, products, err := s.repo.OwnedRecords(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: count owned records")
	}
	if orders > 0 || products > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "user has orders or products and cannot be deleted")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).DeleteAccount(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: delete account")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{"target_user_id": userID}), "admin.user.deleted")
	return nil
}

func (s *service) Transactions(ctx context.Context, actor authz.Actor, limit int) ([]wallet.OwnedTransactionDTO, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.commerce.AdminTransactionsLimit
	}
	if limit > s.commerce.AdminTransactionsMaxLimit {
		limit = s.commerce.AdminTransactionsMaxLimit
	}
	rows, err := s.wallets.ListAllTransactions(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: list transactions")
	}
	out := make([]wallet.OwnedTransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, wallet.NewOwnedTransactionDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) UserTransactions(ctx context.Context, actor authz.Actor, userID int64, params pagination.Params) (*wallet.TransactionList, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	w, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found for user")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load wallet")
	}
	return wallet.ListForWallet(ctx, s.wallets, w.ID, params)
}

// AdjustBalance credits positive amounts as top-ups and debits negative
// amounts as withdrawals. A debit never takes the balance below zero.
func (s *service) AdjustBalance(ctx context.Context, actor authz.Actor, input AdjustBalanceInput) (*wallet.TopUpResult, error) {
	result, err := s.adjustBalance(ctx, actor, input)
	s.outcomes.Observe(workflowAdjustBalance, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"target_user_id": input.UserID,
		"amount_cents":   result.Transaction.AmountCents,
	}), "admin.wallet.adjusted")
	return result, nil
}

func (s *service) adjustBalance(ctx context.Context, actor authz.Actor, input AdjustBalanceInput) (*wallet.TopUpResult, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	cents, err := money.FromDecimal(input.Amount)
	if err != nil {
		return nil, err
	}
	if cents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	if _, err := s.findUser(ctx, input.UserID); err != nil {
		return nil, err
	}
	description := "admin adjustment: " + money.Format(cents)
	if input.Description != nil && strings.TrimSpace(*input.Description) != "" {
		description = strings.TrimSpace(*input.Description)
	}

	var result wallet.TopUpResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.wallets.WithTx(tx)
		w, err := repo.CreateIfAbsent(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: ensure wallet")
		}
		entry := wallet.EntryInput{
			WalletID:    w.ID,
			UserID:      input.UserID,
			AmountCents: money.Abs(cents),
			Description: description,
			Actor:       actor,
		}
		var txn *models.WalletTransaction
		if cents > 0 {
			entry.Type = enums.WalletTransactionTopUp
			txn, err = s.ledger.Credit(ctx, tx, entry)
		} else {
			entry.Type = enums.WalletTransactionWithdrawal
			txn, err = s.ledger.Debit(ctx, tx, entry)
		}
		if err != nil {
			return err
		}
		reloaded, err := repo.FindByID(ctx, w.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: reload wallet")
		}
		result = wallet.TopUpResult{Wallet: wallet.NewWalletDTO(reloaded), Transaction: wallet.NewTransactionDTO(txn)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) findUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load user")
	}
	return user, nil
}

func (s *service) userDTO(ctx context.Context, userID int64) (*users.UserDTO, error) {
	user, err := s.users.FindDetailed(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load user")
	}
	return users.FromModel(user), nil
}
