package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

// ledgerLookup reports whether money has already moved for an order.
type ledgerLookup interface {
	HasOrderEntries(ctx context.Context, store, orderID string) (bool, error)
}

// Service maintains the local order mirror.
type Service interface {
	Mirror(ctx context.Context, order models.Order) (*models.Order, error)
	Get(ctx context.Context, store, orderID string) (*models.Order, error)
	ListRecent(ctx context.Context, store string, since *time.Time, limit int) ([]models.Order, error)
}

type service struct {
	repo   Repository
	ledger ledgerLookup
	now    func() time.Time
}

// NewService wires the order mirror service. ledger may be nil, in which case
// mirrored rows are always fully refreshed.
func NewService(repo Repository, ledger ledgerLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo, ledger: ledger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Mirror upserts a normalized platform order and returns the stored row.
func (s *service) Mirror(ctx context.Context, order models.Order) (*models.Order, error) {
	order.StoreDomain = strings.ToLower(strings.TrimSpace(order.StoreDomain))
	order.PlatformOrderID = strings.TrimSpace(order.PlatformOrderID)
	if order.StoreDomain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	if order.PlatformOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if order.OrderNumber == "" {
		order.OrderNumber = order.PlatformOrderID
	}
	order.SyncedAt = s.now()

	freeze := false
	if s.ledger != nil {
		has, err := s.ledger.HasOrderEntries(ctx, order.StoreDomain, order.PlatformOrderID)
		if err != nil {
			return nil, err
		}
		freeze = has
	}

	if err := s.repo.Upsert(ctx, &order, freeze); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "upsert order mirror")
	}
	return s.Get(ctx, order.StoreDomain, order.PlatformOrderID)
}

func (s *service) Get(ctx context.Context, store, orderID string) (*models.Order, error) {
	store = strings.ToLower(strings.TrimSpace(store))
	orderID = strings.TrimSpace(orderID)
	if store == "" || orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store and order id are required")
	}
	order, err := s.repo.FindByPlatformID(ctx, store, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"store": store, "order_id": orderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}
	return order, nil
}

func (s *service) ListRecent(ctx context.Context, store string, since *time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.ListByStore(ctx, strings.ToLower(strings.TrimSpace(store)), since, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list orders")
	}
	return rows, nil
}
