package margins

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// Repository reads margin mappings and persists computed order margins.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListMappings(ctx context.Context, store string) ([]models.ProductMarginMapping, error)
	FindOrderMargin(ctx context.Context, store, orderID string) (*models.OrderMargin, error)
	ListOrderMargins(ctx context.Context, store string, orderIDs []string) ([]models.OrderMargin, error)
	UpsertOrderMargin(ctx context.Context, margin *models.OrderMargin) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a margins repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListMappings(ctx context.Context, store string) ([]models.ProductMarginMapping, error) {
	var rows []models.ProductMarginMapping
	if err := r.db.WithContext(ctx).
		Where("store_domain = ?", store).
		Order("updated_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindOrderMargin(ctx context.Context, store, orderID string) (*models.OrderMargin, error) {
	var row models.OrderMargin
	if err := r.db.WithContext(ctx).
		Where("store_domain = ? AND platform_order_id = ?", store, orderID).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListOrderMargins(ctx context.Context, store string, orderIDs []string) ([]models.OrderMargin, error) {
	var rows []models.OrderMargin
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

// UpsertOrderMargin writes the margin keyed by (store, order id).
func (r *repository) UpsertOrderMargin(ctx context.Context, margin *models.OrderMargin) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_domain"}, {Name: "platform_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "state", "unresolved_items", "computed_at", "updated_at"}),
		}).
		Create(margin).Error
}
