package orderstatus

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// Repository persists manual status overrides.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, override *models.OrderStatusOverride) error
	Find(ctx context.Context, store, orderID string) (*models.OrderStatusOverride, error)
	ListForOrders(ctx context.Context, store string, orderIDs []string) ([]models.OrderStatusOverride, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an override repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, override *models.OrderStatusOverride) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_domain"}, {Name: "platform_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_by", "updated_at"}),
		}).
		Create(override).Error
}

func (r *repository) Find(ctx context.Context, store, orderID string) (*models.OrderStatusOverride, error) {
	var row models.OrderStatusOverride
	if err := r.db.WithContext(ctx).
		Where("store_domain = ? AND platform_order_id = ?", store, orderID).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListForOrders(ctx context.Context, store string, orderIDs []string) ([]models.OrderStatusOverride, error) {
	var rows []models.OrderStatusOverride
	if len(orderIDs) == 0 {
		return rows, nil
	}
	if err := r.db.WithContext(ctx).
		Where("store_domain = ? AND platform_order_id IN ?", store, orderIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
