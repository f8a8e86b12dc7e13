package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/angelmondragon/marginledger-backend/pkg/pagination"
)

// TypeTotal aggregates a store's transactions of one type.
type TypeTotal struct {
	Type  enums.WalletTransactionType `gorm:"column:type"`
	Count int64                       `gorm:"column:count"`
	Total decimal.Decimal             `gorm:"column:total"`
}

type ledgerSum struct {
	Total decimal.Decimal `gorm:"column:total"`
	Count int64           `gorm:"column:count"`
}

// Repository persists wallet balances and transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureWallet(ctx context.Context, store string) error
	LockWallet(ctx context.Context, store string) (*models.StoreWallet, error)
	FindWallet(ctx context.Context, store string) (*models.StoreWallet, error)
	CompareAndSwapBalance(ctx context.Context, store string, version int64, balance decimal.Decimal) (bool, error)
	InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)
	HasOrderEntries(ctx context.Context, store, orderID string) (bool, error)
	ListTransactions(ctx context.Context, store string, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error)
	ListOrderTransactions(ctx context.Context, store string, orderIDs []string) ([]models.WalletTransaction, error)
	SumTransactions(ctx context.Context, store string) (decimal.Decimal, int64, error)
	TotalsByType(ctx context.Context, store string) ([]TypeTotal, error)
	ListStores(ctx context.Context) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureWallet lazily creates the zero-balance row for a store.
func (r *repository) EnsureWallet(ctx context.Context, store string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.StoreWallet{StoreDomain: store, Balance: decimal.Zero}).Error
}

// LockWallet reads the wallet row with SELECT ... FOR UPDATE.
func (r *repository) LockWallet(ctx context.Context, store string) (*models.StoreWallet, error) {
	var w models.StoreWallet
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("store_domain = ?", store).
		Take(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) FindWallet(ctx context.Context, store string) (*models.StoreWallet, error) {
	var w models.StoreWallet
	if err := r.db.WithContext(ctx).Where("store_domain = ?", store).Take(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// CompareAndSwapBalance writes the balance only if the version is unchanged.
func (r *repository) CompareAndSwapBalance(ctx context.Context, store string, version int64, balance decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StoreWallet{}).
		Where("store_domain = ? AND version = ?", store, version).
		Updates(map[string]any{
			"balance":    balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) HasOrderEntries(ctx context.Context, store, orderID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("store_domain = ? AND order_id = ?", store, orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTransactions pages newest first. The cursor points at the last row of the
// previous page.
func (r *repository) ListTransactions(ctx context.Context, store string, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error) {
	q := r.db.WithContext(ctx).Where("store_domain = ?", store)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.WalletTransaction
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListOrderTransactions(ctx context.Context, store string, orderIDs []string) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	if len(orderIDs) == 0 {
		return rows, nil
	}
	if err := r.db.WithContext(ctx).
		Where("store_domain = ? AND order_id IN ?", store, orderIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumTransactions(ctx context.Context, store string) (decimal.Decimal, int64, error) {
	var out ledgerSum
	if err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("store_domain = ?", store).
		Scan(&out).Error; err != nil {
		return decimal.Zero, 0, err
	}
	return out.Total.Round(2), out.Count, nil
}

func (r *repository) TotalsByType(ctx context.Context, store string) ([]TypeTotal, error) {
	var rows []TypeTotal
	if err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("store_domain = ?", store).
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Total = rows[i].Total.Round(2)
	}
	return rows, nil
}

func (r *repository) ListStores(ctx context.Context) ([]string, error) {
	var stores []string
	if err := r.db.WithContext(ctx).
		Model(&models.StoreWallet{}).
		Order("store_domain ASC").
		Pluck("store_domain", &stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}
