package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marginledger-backend/internal/ordersync"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

type syncRunner interface {
	Run(ctx context.Context, req ordersync.Request) (*ordersync.Result, error)
}

type OrderSyncJobParams struct {
	Logger      *logger.Logger
	Coordinator syncRunner
}

// NewOrderSyncJob runs a full pull sync across every connected store.
func NewOrderSyncJob(params OrderSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("sync coordinator required")
	}
	return &orderSyncJob{logg: params.Logger, coordinator: params.Coordinator}, nil
}

type orderSyncJob struct {
	logg        *logger.Logger
	coordinator syncRunner
}

func (j *orderSyncJob) Name() string { return "order_sync" }

func (j *orderSyncJob) Run(ctx context.Context) error {
	result, err := j.coordinator.Run(ctx, ordersync.Request{})
	if err != nil {
		return fmt.Errorf("order sync: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stores":       len(result.Stores),
		"total_orders": result.TotalOrders,
		"failed":       result.FailedCount,
		"resynced":     result.Resynced,
	}), "order sync complete")
	return result.Err()
}
