package margins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

// Service loads margin indexes and records computed order margins.
type Service interface {
	ForStore(ctx context.Context, store string) (*Index, error)
	Compute(ctx context.Context, store string, items []models.OrderLineItem) (Result, error)
	Precompute(ctx context.Context, order models.Order) (Result, error)
	Finalize(ctx context.Context, order models.Order) (Result, error)
	Stored(ctx context.Context, store, orderID string) (*models.OrderMargin, error)
	StoredFor(ctx context.Context, store string, orderIDs []string) (map[string]models.OrderMargin, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the margin service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("margins repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) ForStore(ctx context.Context, store string) (*Index, error) {
	if store == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	rows, err := s.repo.ListMappings(ctx, store)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load margin mappings")
	}
	return NewIndex(rows), nil
}

func (s *service) Compute(ctx context.Context, store string, items []models.OrderLineItem) (Result, error) {
	idx, err := s.ForStore(ctx, store)
	if err != nil {
		return Result{}, err
	}
	return Calculate(items, idx), nil
}

// Precompute stores a preliminary margin for a freshly created order. A final
// margin already on record is left untouched and returned.
func (s *service) Precompute(ctx context.Context, order models.Order) (Result, error) {
	existing, err := s.Stored(ctx, order.StoreDomain, order.PlatformOrderID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return Result{}, err
	}
	if existing != nil && existing.State == enums.MarginStateFinal {
		return FromStored(existing), nil
	}
	return s.record(ctx, order, enums.MarginStatePreliminary)
}

// Finalize recomputes the margin and marks it final.
func (s *service) Finalize(ctx context.Context, order models.Order) (Result, error) {
	return s.record(ctx, order, enums.MarginStateFinal)
}

func (s *service) Stored(ctx context.Context, store, orderID string) (*models.OrderMargin, error) {
	row, err := s.repo.FindOrderMargin(ctx, store, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order margin not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order margin")
	}
	return row, nil
}

func (s *service) StoredFor(ctx context.Context, store string, orderIDs []string) (map[string]models.OrderMargin, error) {
	rows, err := s.repo.ListOrderMargins(ctx, store, orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list order margins")
	}
	out := make(map[string]models.OrderMargin, len(rows))
	for _, row := range rows {
		out[row.PlatformOrderID] = row
	}
	return out, nil
}

func (s *service) record(ctx context.Context, order models.Order, state enums.MarginState) (Result, error) {
	if order.StoreDomain == "" || order.PlatformOrderID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "store and order id are required")
	}
	res, err := s.Compute(ctx, order.StoreDomain, order.LineItems)
	if err != nil {
		return Result{}, err
	}
	row := &models.OrderMargin{
		StoreDomain:     order.StoreDomain,
		PlatformOrderID: order.PlatformOrderID,
		Amount:          res.NullAmount(),
		State:           state,
		UnresolvedItems: len(res.UnresolvedItems),
		ComputedAt:      s.now(),
	}
	if err := s.repo.UpsertOrderMargin(ctx, row); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "store order margin")
	}
	return res, nil
}
