package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox/payloads"
)

const (
	defaultRetryBatch       = 50
	defaultRetryMaxAttempts = 10
)

type retryOutbox interface {
	FetchUnpublished(ctx context.Context, eventType enums.OutboxEventType, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type retryOrders interface {
	Get(ctx context.Context, store, orderID string) (*models.Order, error)
}

type retryLedger interface {
	ApplyForStatus(ctx context.Context, order models.Order, status enums.OrderStatus, actor string) (orderstatus.LedgerOutcome, error)
}

type WalletRetryJobParams struct {
	Logger      *logger.Logger
	Outbox      retryOutbox
	Decoders    *outbox.Decoders
	Orders      retryOrders
	Ledger      retryLedger
	BatchSize   int
	MaxAttempts int
}

// NewWalletRetryJob drains wallet side effects queued after status changes.
func NewWalletRetryJob(params WalletRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("order wallet required")
	}
	decoders := params.Decoders
	if decoders == nil {
		decoders = outbox.DefaultDecoders()
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetryBatch
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryMaxAttempts
	}
	return &walletRetryJob{
		logg:        params.Logger,
		outbox:      params.Outbox,
		decoders:    decoders,
		orders:      params.Orders,
		ledger:      params.Ledger,
		batch:       batch,
		maxAttempts: maxAttempts,
	}, nil
}

type walletRetryJob struct {
	logg        *logger.Logger
	outbox      retryOutbox
	decoders    *outbox.Decoders
	orders      retryOrders
	ledger      retryLedger
	batch       int
	maxAttempts int
}

func (j *walletRetryJob) Name() string { return "wallet_retry" }

func (j *walletRetryJob) Run(ctx context.Context) error {
	rows, err := j.outbox.FetchUnpublished(ctx, enums.EventWalletApplyRetry, j.batch, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("fetch wallet retries: %w", err)
	}

	var (
		errs    error
		drained int
	)
	for _, row := range rows {
		rowCtx := j.logg.WithFields(ctx, map[string]any{
			"outbox_id":    row.ID.String(),
			"aggregate_id": row.AggregateID,
			"attempt":      row.AttemptCount + 1,
		})
		if err := j.process(rowCtx, row); err != nil {
			j.logg.Warn(j.logg.WithFields(rowCtx, map[string]any{
				"error":     err.Error(),
				"retryable": pkgerrors.IsRetryable(err),
			}), "wallet retry failed")
			if markErr := j.outbox.MarkFailed(ctx, row.ID, err); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", row.AggregateID, err))
			continue
		}
		if err := j.outbox.MarkPublished(ctx, row.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		drained++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"fetched": len(rows),
		"drained": drained,
	}), "wallet retry drain complete")
	return errs
}

func (j *walletRetryJob) process(ctx context.Context, row models.OutboxEvent) error {
	_, decoded, err := j.decoders.Decode(row)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payload")
	}
	evt, ok := decoded.(payloads.WalletApplyRetryEvent)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "unexpected wallet retry payload")
	}

	order, err := j.orders.Get(ctx, evt.Store, evt.OrderID)
	if err != nil {
		return err
	}
	outcome, err := j.ledger.ApplyForStatus(ctx, *order, evt.Status, evt.ActorID)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "wallet", string(outcome)), "wallet retry applied")
	return nil
}
