package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// Retention is how long published rows are kept. Unpublished rows are
	// never pruned.
	Retention  time.Duration
	EventTypes []enums.OutboxEventType
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window, one transaction per event type.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: params.Retention,
		types:     params.EventTypes,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if len(job.types) == 0 {
		job.types = []enums.OutboxEventType{enums.EventWalletApplyRetry}
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxPruner
	retention time.Duration
	types     []enums.OutboxEventType
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox_retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var errs error
	for _, eventType := range j.types {
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.DeletePublishedBefore(ctx, tx, eventType, cutoff)
			deleted = n
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune %s: %w", eventType, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"event_type":   eventType,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "outbox.pruned")
	}
	return errs
}
