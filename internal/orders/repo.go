package orders

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

var (
	mirrorColumns = []string{
		"order_number", "customer", "currency", "total_amount", "line_items",
		"confirmed", "cancelled_at", "fulfillment_status", "financial_status",
		"shipping_address", "billing_address", "platform_created_at", "platform_updated_at",
		"synced_at", "updated_at",
	}
	// once money has moved for an order its catalog content stays as recorded
	frozenMirrorColumns = []string{
		"customer", "confirmed", "cancelled_at", "fulfillment_status", "financial_status",
		"shipping_address", "billing_address", "platform_updated_at", "synced_at", "updated_at",
	}
)

// Repository persists the order mirror.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, order *models.Order, freezeFinancials bool) error
	FindByPlatformID(ctx context.Context, store, platformOrderID string) (*models.Order, error)
	ListByStore(ctx context.Context, store string, since *time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert inserts or refreshes the mirror row keyed by (store, platform order id).
func (r *repository) Upsert(ctx context.Context, order *models.Order, freezeFinancials bool) error {
	columns := mirrorColumns
	if freezeFinancials {
		columns = frozenMirrorColumns
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_domain"}, {Name: "platform_order_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(order).Error
}

func (r *repository) FindByPlatformID(ctx context.Context, store, platformOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("store_domain = ? AND platform_order_id = ?", store, platformOrderID).
		Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByStore(ctx context.Context, store string, since *time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	q := r.db.WithContext(ctx).Where("store_domain = ?", store)
	if since != nil {
		q = q.Where("platform_created_at >= ?", *since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("platform_created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
