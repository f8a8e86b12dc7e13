package rtorates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// sellerLookup resolves the seller that owns a connected store.
type sellerLookup interface {
	SellerFor(ctx context.Context, store string) (uuid.UUID, error)
}

// Service resolves and manages per-order RTO penalties.
type Service interface {
	Resolve(ctx context.Context, sellerID *uuid.UUID, store string) (decimal.Decimal, error)
	List(ctx context.Context, sellerID uuid.UUID, store string) ([]models.SellerRTORate, error)
	Create(ctx context.Context, input CreateInput) (*models.SellerRTORate, error)
	Update(ctx context.Context, input UpdateInput) (*models.SellerRTORate, error)
	Deactivate(ctx context.Context, sellerID uuid.UUID, store string, rateID uuid.UUID) error
}

// CreateInput replaces the active rate for a (seller, store) pair.
type CreateInput struct {
	SellerID  uuid.UUID
	Store     string
	Amount    decimal.Decimal
	CreatedBy string
}

// UpdateInput changes the amount of an existing rate.
type UpdateInput struct {
	SellerID uuid.UUID
	Store    string
	RateID   uuid.UUID
	Amount   decimal.Decimal
}

type service struct {
	repo    Repository
	sellers sellerLookup
	tx      txRunner
}

// NewService wires the RTO rate service.
func NewService(repo Repository, sellers sellerLookup, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rto rate repository required")
	}
	if sellers == nil {
		return nil, fmt.Errorf("seller lookup required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, sellers: sellers, tx: tx}, nil
}

// Resolve returns the active penalty for the pair, or 0 when the store has no
// connected seller or no active rate.
func (s *service) Resolve(ctx context.Context, sellerID *uuid.UUID, store string) (decimal.Decimal, error) {
	store = normalizeStore(store)
	if store == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}

	var seller uuid.UUID
	if sellerID != nil && *sellerID != uuid.Nil {
		seller = *sellerID
	} else {
		resolved, err := s.sellers.SellerFor(ctx, store)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return decimal.Zero, nil
			}
			return decimal.Zero, err
		}
		seller = resolved
	}

	rate, err := s.repo.FindActive(ctx, seller, store)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load rto rate")
	}
	return rate.Amount, nil
}

func (s *service) List(ctx context.Context, sellerID uuid.UUID, store string) ([]models.SellerRTORate, error) {
	store = normalizeStore(store)
	if err := validateScope(sellerID, store); err != nil {
		return nil, err
	}
	rates, err := s.repo.List(ctx, sellerID, store)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list rto rates")
	}
	return rates, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.SellerRTORate, error) {
	store := normalizeStore(input.Store)
	if err := validateScope(input.SellerID, store); err != nil {
		return nil, err
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		createdBy = "system"
	}

	rate := &models.SellerRTORate{
		SellerID:    input.SellerID,
		StoreDomain: store,
		Amount:      input.Amount.Round(2),
		Active:      true,
		CreatedBy:   createdBy,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.DeactivateActive(ctx, input.SellerID, store); err != nil {
			return err
		}
		return repo.Create(ctx, rate)
	})
	if err != nil {
		if pkgerrors.IsUniqueViolation(err, "ux_seller_rto_rates_active") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active rto rate already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create rto rate")
	}
	return rate, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.SellerRTORate, error) {
	store := normalizeStore(input.Store)
	if err := validateScope(input.SellerID, store); err != nil {
		return nil, err
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	if _, err := s.scopedRate(ctx, input.SellerID, store, input.RateID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAmount(ctx, input.RateID, input.Amount.Round(2)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update rto rate")
	}
	return s.scopedRate(ctx, input.SellerID, store, input.RateID)
}

func (s *service) Deactivate(ctx context.Context, sellerID uuid.UUID, store string, rateID uuid.UUID) error {
	store = normalizeStore(store)
	if err := validateScope(sellerID, store); err != nil {
		return err
	}
	if _, err := s.scopedRate(ctx, sellerID, store, rateID); err != nil {
		return err
	}
	if _, err := s.repo.Deactivate(ctx, rateID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "deactivate rto rate")
	}
	return nil
}

func (s *service) scopedRate(ctx context.Context, sellerID uuid.UUID, store string, rateID uuid.UUID) (*models.SellerRTORate, error) {
	if rateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rate id is required")
	}
	rate, err := s.repo.FindByID(ctx, rateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rto rate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load rto rate")
	}
	if rate.SellerID != sellerID || rate.StoreDomain != store {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "rto rate not found")
	}
	return rate, nil
}

func validateScope(sellerID uuid.UUID, store string) error {
	if sellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	if store == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "rto rate must not be negative").
			WithDetails(map[string]any{"amount": amount.String()})
	}
	return nil
}

func normalizeStore(store string) string {
	return strings.ToLower(strings.TrimSpace(store))
}
