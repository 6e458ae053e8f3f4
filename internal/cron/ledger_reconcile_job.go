package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/money"
)

type ledgerAuditor interface {
	FindLedgerMismatches(ctx context.Context) ([]wallet.LedgerMismatch, error)
}

// NewLedgerReconcileJob checks that every wallet balance equals the sum of its
// ledger entries. Mismatches are logged and reported; balances are never
// corrected automatically.
func NewLedgerReconcileJob(logg *logger.Logger, auditor ledgerAuditor) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("ledger auditor required")
	}
	return &ledgerReconcileJob{logg: logg, auditor: auditor}, nil
}

type ledgerReconcileJob struct {
	logg    *logger.Logger
	auditor ledgerAuditor
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	mismatches, err := j.auditor.FindLedgerMismatches(ctx)
	if err != nil {
		return fmt.Errorf("find ledger mismatches: %w", err)
	}
	var errs error
	for _, m := range mismatches {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"wallet_id":     m.WalletID,
			"user_id":       m.UserID,
			"balance_cents": m.BalanceCents,
			"ledger_cents":  m.LedgerCents,
		}), "wallet balance disagrees with ledger")
		errs = multierr.Append(errs, fmt.Errorf("wallet %d: balance %s, ledger %s",
			m.WalletID, money.Format(m.BalanceCents), money.Format(m.LedgerCents)))
	}
	if errs != nil {
		return fmt.Errorf("%d wallet(s) out of balance: %w", len(mismatches), errs)
	}
	j.logg.Info(ctx, "ledger reconciled")
	return nil
}
