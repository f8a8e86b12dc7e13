package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marginledger-backend/internal/wallet"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

type walletReconciler interface {
	Stores(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, store string) (*wallet.Reconciliation, error)
}

type WalletReconcileJobParams struct {
	Logger *logger.Logger
	Wallet walletReconciler
}

// NewWalletReconcileJob checks balance == sum(transactions) for every wallet.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	return &walletReconcileJob{logg: params.Logger, wallet: params.Wallet}, nil
}

type walletReconcileJob struct {
	logg   *logger.Logger
	wallet walletReconciler
}

func (j *walletReconcileJob) Name() string { return "wallet_reconcile" }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	stores, err := j.wallet.Stores(ctx)
	if err != nil {
		return fmt.Errorf("list wallet stores: %w", err)
	}

	var errs error
	drifted := 0
	for _, store := range stores {
		storeCtx := j.logg.WithStoreID(ctx, store)
		rec, err := j.wallet.Reconcile(storeCtx, store)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", store, err))
			continue
		}
		if rec.Consistent {
			continue
		}
		drifted++
		j.logg.Warn(j.logg.WithFields(storeCtx, map[string]any{
			"balance":           rec.Balance.StringFixed(2),
			"transaction_sum":   rec.TransactionSum.StringFixed(2),
			"transaction_count": rec.TransactionCount,
			"drift":             rec.Drift.StringFixed(2),
		}), "wallet balance drift detected")
		errs = multierr.Append(errs, fmt.Errorf("%s: balance drift %s", store, rec.Drift.StringFixed(2)))
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stores":  len(stores),
		"drifted": drifted,
	}), "wallet reconciliation complete")
	return errs
}
