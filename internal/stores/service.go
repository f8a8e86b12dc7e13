package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

// Service exposes store connection lookups used by sync, webhooks and RTO resolution.
type Service interface {
	Connect(ctx context.Context, input ConnectInput) (*models.StoreConnection, error)
	Get(ctx context.Context, store string) (*models.StoreConnection, error)
	SellerFor(ctx context.Context, store string) (uuid.UUID, error)
	ListActive(ctx context.Context, domains []string) ([]models.StoreConnection, error)
	Disconnect(ctx context.Context, store string) (bool, error)
	MarkSynced(ctx context.Context, store string, at time.Time) error
}

// ConnectInput records a completed storefront installation.
type ConnectInput struct {
	SellerID    uuid.UUID
	StoreDomain string
	AccessToken string
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the store connection service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stores repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// NormalizeDomain lowercases and trims a store identifier.
func NormalizeDomain(store string) string {
	return strings.ToLower(strings.TrimSpace(store))
}

func (s *service) Connect(ctx context.Context, input ConnectInput) (*models.StoreConnection, error) {
	store := NormalizeDomain(input.StoreDomain)
	if store == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	conn := &models.StoreConnection{
		SellerID:    input.SellerID,
		StoreDomain: store,
		AccessToken: strings.TrimSpace(input.AccessToken),
		Active:      true,
		InstalledAt: s.now(),
	}
	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save store connection")
	}
	return s.Get(ctx, store)
}

func (s *service) Get(ctx context.Context, store string) (*models.StoreConnection, error) {
	store = NormalizeDomain(store)
	if store == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	conn, err := s.repo.FindByDomain(ctx, store)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store connection not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load store connection")
	}
	return conn, nil
}

func (s *service) SellerFor(ctx context.Context, store string) (uuid.UUID, error) {
	conn, err := s.Get(ctx, store)
	if err != nil {
		return uuid.Nil, err
	}
	return conn.SellerID, nil
}

func (s *service) ListActive(ctx context.Context, domains []string) ([]models.StoreConnection, error) {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = NormalizeDomain(d); d != "" {
			normalized = append(normalized, d)
		}
	}
	conns, err := s.repo.ListActive(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list store connections")
	}
	return conns, nil
}

// Disconnect marks the store inactive. It reports whether a change was made.
func (s *service) Disconnect(ctx context.Context, store string) (bool, error) {
	store = NormalizeDomain(store)
	if store == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	changed, err := s.repo.Deactivate(ctx, store, s.now())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "deactivate store connection")
	}
	return changed, nil
}

func (s *service) MarkSynced(ctx context.Context, store string, at time.Time) error {
	if err := s.repo.TouchSynced(ctx, NormalizeDomain(store), at); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "mark store synced")
	}
	return nil
}
