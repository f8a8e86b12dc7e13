package stores

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// Repository persists storefront connections.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, conn *models.StoreConnection) error
	FindByDomain(ctx context.Context, store string) (*models.StoreConnection, error)
	ListActive(ctx context.Context, domains []string) ([]models.StoreConnection, error)
	Deactivate(ctx context.Context, store string, at time.Time) (bool, error)
	TouchSynced(ctx context.Context, store string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert installs or reactivates a connection keyed by store domain.
func (r *repository) Upsert(ctx context.Context, conn *models.StoreConnection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "store_domain"}},
			DoUpdates: clause.Assignments(map[string]any{
				"seller_id":      conn.SellerID,
				"access_token":   conn.AccessToken,
				"active":         true,
				"uninstalled_at": nil,
				"updated_at":     time.Now().UTC(),
			}),
		}).
		Create(conn).Error
}

func (r *repository) FindByDomain(ctx context.Context, store string) (*models.StoreConnection, error) {
	var conn models.StoreConnection
	if err := r.db.WithContext(ctx).
		Where("store_domain = ?", store).
		Take(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

// ListActive returns active connections, optionally restricted to domains.
func (r *repository) ListActive(ctx context.Context, domains []string) ([]models.StoreConnection, error) {
	var conns []models.StoreConnection
	q := r.db.WithContext(ctx).Where("active = ?", true)
	if len(domains) > 0 {
		q = q.Where("store_domain IN ?", domains)
	}
	if err := q.Order("store_domain ASC").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *repository) Deactivate(ctx context.Context, store string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StoreConnection{}).
		Where("store_domain = ? AND active = ?", store, true).
		Updates(map[string]any{
			"active":         false,
			"uninstalled_at": at,
			"updated_at":     at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) TouchSynced(ctx context.Context, store string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StoreConnection{}).
		Where("store_domain = ?", store).
		Update("last_synced_at", at).Error
}
