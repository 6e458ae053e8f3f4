package wallet

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

// Repository defines persistence for wallets and their ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID int64) (*models.Wallet, error)
	FindByID(ctx context.Context, id int64) (*models.Wallet, error)
	CreateIfAbsent(ctx context.Context, userID int64) (*models.Wallet, error)
	Increment(ctx context.Context, walletID, amount int64) error
	DecrementIfSufficient(ctx context.Context, walletID, amount int64) (bool, error)
	InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID int64, params pagination.Params) ([]models.WalletTransaction, error)
	ListAllTransactions(ctx context.Context, limit int) ([]TransactionWithOwner, error)
	SumByTypeSince(ctx context.Context, txType enums.WalletTransactionType, since *time.Time) (int64, error)
	FindLedgerMismatches(ctx context.Context) ([]LedgerMismatch, error)
}

// TransactionWithOwner joins a ledger entry to the account that owns it.
type TransactionWithOwner struct {
	models.WalletTransaction
	UserID    int64  `gorm:"column:user_id"`
	UserEmail string `gorm:"column:user_email"`
}

// LedgerMismatch is a wallet whose balance disagrees with its transactions.
type LedgerMismatch struct {
	WalletID     int64 `gorm:"column:wallet_id"`
	UserID       int64 `gorm:"column:user_id"`
	BalanceCents int64 `gorm:"column:balance_cents"`
	LedgerCents  int64 `gorm:"column:ledger_cents"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallet repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreateIfAbsent inserts an empty wallet unless one exists and returns the
// stored row. Concurrent callers converge on the same wallet.
func (r *repository) CreateIfAbsent(ctx context.Context, userID int64) (*models.Wallet, error) {
	wallet := models.Wallet{UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&wallet).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

func (r *repository) Increment(ctx context.Context, walletID, amount int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance_cents": gorm.Expr("balance_cents + ?", amount),
			"updated_at":    time.Now(),
		}).Error
}

// DecrementIfSufficient subtracts amount only when the balance covers it.
// The check and the write are one statement, so concurrent debits cannot
// both pass against a stale balance.
func (r *repository) DecrementIfSufficient(ctx context.Context, walletID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND balance_cents >= ?", walletID, amount).
		Updates(map[string]any{
			"balance_cents": gorm.Expr("balance_cents - ?", amount),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID int64, params pagination.Params) ([]models.WalletTransaction, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("wallet_id = ?", walletID)
	if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}
	var rows []models.WalletTransaction
	err = query.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error
	return rows, err
}

func (r *repository) ListAllTransactions(ctx context.Context, limit int) ([]TransactionWithOwner, error) {
	var rows []TransactionWithOwner
	err := r.db.WithContext(ctx).
		Table("wallet_transactions AS wt").
		Select("wt.*, w.user_id AS user_id, u.email AS user_email").
		Joins("JOIN wallets w ON w.id = wt.wallet_id").
		Joins("JOIN users u ON u.id = w.user_id").
		Order("wt.created_at DESC").
		Order("wt.id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// SumByTypeSince totals transaction amounts of one type, optionally only
// those created at or after since.
func (r *repository) SumByTypeSince(ctx context.Context, txType enums.WalletTransactionType, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("type = ?", txType)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	var total int64
	err := query.Select("COALESCE(SUM(amount_cents), 0)").Scan(&total).Error
	return total, err
}

func (r *repository) FindLedgerMismatches(ctx context.Context) ([]LedgerMismatch, error) {
	var rows []LedgerMismatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT w.id AS wallet_id, w.user_id, w.balance_cents,
		       COALESCE(SUM(wt.amount_cents), 0) AS ledger_cents
		FROM wallets w
		LEFT JOIN wallet_transactions wt ON wt.wallet_id = w.id
		GROUP BY w.id, w.user_id, w.balance_cents
		HAVING w.balance_cents <> COALESCE(SUM(wt.amount_cents), 0)
		ORDER BY w.id`).Scan(&rows).Error
	return rows, err
}
