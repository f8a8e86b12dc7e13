package rtorates

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// Repository persists seller RTO rates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActive(ctx context.Context, sellerID uuid.UUID, store string) (*models.SellerRTORate, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SellerRTORate, error)
	List(ctx context.Context, sellerID uuid.UUID, store string) ([]models.SellerRTORate, error)
	Create(ctx context.Context, rate *models.SellerRTORate) error
	UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	DeactivateActive(ctx context.Context, sellerID uuid.UUID, store string) (int64, error)
	Deactivate(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an RTO rate repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActive(ctx context.Context, sellerID uuid.UUID, store string) (*models.SellerRTORate, error) {
	var rate models.SellerRTORate
	if err := r.db.WithContext(ctx).
		Where("seller_id = ? AND store_domain = ? AND active = ?", sellerID, store, true).
		Order("created_at DESC").
		Take(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SellerRTORate, error) {
	var rate models.SellerRTORate
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *repository) List(ctx context.Context, sellerID uuid.UUID, store string) ([]models.SellerRTORate, error) {
	var rates []models.SellerRTORate
	if err := r.db.WithContext(ctx).
		Where("seller_id = ? AND store_domain = ?", sellerID, store).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repository) Create(ctx context.Context, rate *models.SellerRTORate) error {
	return r.db.WithContext(ctx).Create(rate).Error
}

func (r *repository) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.SellerRTORate{}).
		Where("id = ?", id).
		Update("amount", amount).Error
}

func (r *repository) DeactivateActive(ctx context.Context, sellerID uuid.UUID, store string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SellerRTORate{}).
		Where("seller_id = ? AND store_domain = ? AND active = ?", sellerID, store, true).
		Update("active", false)
	return res.RowsAffected, res.Error
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SellerRTORate{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	return res.RowsAffected, res.Error
}
