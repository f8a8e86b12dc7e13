package orderstatus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marginledger-backend/pkg/storefront"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderReader interface {
	Get(ctx context.Context, store, orderID string) (*models.Order, error)
}

type connectionReader interface {
	Get(ctx context.Context, store string) (*models.StoreConnection, error)
}

type platformUpdater interface {
	UpdateOrderStatus(ctx context.Context, creds storefront.Credentials, orderID string, status enums.OrderStatus) error
}

// LedgerGate applies the wallet effect of a status exactly once.
type LedgerGate interface {
	ApplyForStatus(ctx context.Context, order models.Order, status enums.OrderStatus, actor string) (LedgerOutcome, error)
}

type retryQueue interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service resolves canonical order statuses and applies manual status changes.
type Service interface {
	ChangeStatus(ctx context.Context, input ChangeInput) (*ChangeResult, error)
	Resolve(ctx context.Context, order models.Order) (Resolution, error)
	ResolveMany(ctx context.Context, store string, orders []models.Order) (map[string]Resolution, error)
	Observe(ctx context.Context, order models.Order, actor string) (Resolution, LedgerOutcome, error)
}

// ChangeInput is an admin request to set an order's business status.
type ChangeInput struct {
	Store   string
	OrderID string
	Status  string
	ActorID string
}

// ChangeResult reports the saved status and its side effects.
type ChangeResult struct {
	Store          string        `json:"store"`
	OrderID        string        `json:"order_id"`
	Resolution     Resolution    `json:"resolution"`
	Wallet         LedgerOutcome `json:"wallet"`
	PlatformSynced bool          `json:"platform_synced"`
}

// ServiceParams groups the collaborators of the status service.
type ServiceParams struct {
	Overrides   Repository
	Orders      orderReader
	Connections connectionReader
	Platform    platformUpdater
	Ledger      LedgerGate
	Retries     retryQueue
	Tx          txRunner
	Logger      *logger.Logger
}

type service struct {
	overrides   Repository
	orders      orderReader
	connections connectionReader
	platform    platformUpdater
	ledger      LedgerGate
	retries     retryQueue
	tx          txRunner
	logg        *logger.Logger
}

// NewService wires the order status service.
func NewService(p ServiceParams) (Service, error) {
	if p.Overrides == nil {
		return nil, fmt.Errorf("override repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if p.Connections == nil {
		return nil, fmt.Errorf("connection reader required")
	}
	if p.Platform == nil {
		return nil, fmt.Errorf("platform updater required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger gate required")
	}
	if p.Retries == nil {
		return nil, fmt.Errorf("retry queue required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		overrides:   p.Overrides,
		orders:      p.Orders,
		connections: p.Connections,
		platform:    p.Platform,
		ledger:      p.Ledger,
		retries:     p.Retries,
		tx:          p.Tx,
		logg:        p.Logger,
	}, nil
}

// ChangeStatus saves the override, pushes it to the platform once and drives
// the wallet. A wallet failure is queued for retry and never fails the change.
// A platform failure is returned as an external API error alongside the result.
func (s *service) ChangeStatus(ctx context.Context, input ChangeInput) (*ChangeResult, error) {
	store := strings.ToLower(strings.TrimSpace(input.Store))
	orderID := strings.TrimSpace(input.OrderID)
	if store == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store is required")
	}
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	status, err := enums.ParseOverrideOrderStatus(input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
			WithDetails(map[string]any{"allowed": enums.OverrideOrderStatuses()})
	}
	actor := strings.TrimSpace(input.ActorID)
	if actor == "" {
		actor = "system"
	}

	ctx = s.logg.WithOrderID(s.logg.WithStoreID(ctx, store), orderID)

	order, err := s.orders.Get(ctx, store, orderID)
	if err != nil {
		return nil, err
	}

	override := &models.OrderStatusOverride{
		StoreDomain:     store,
		PlatformOrderID: orderID,
		Status:          status,
		UpdatedBy:       actor,
	}
	if err := s.overrides.Upsert(ctx, override); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save status override")
	}

	result := &ChangeResult{
		Store:      store,
		OrderID:    orderID,
		Resolution: ResolveOrder(*order, override),
	}

	pushErr := s.pushToPlatform(ctx, store, orderID, status)
	result.PlatformSynced = pushErr == nil

	result.Wallet = s.applyOrQueue(ctx, *order, result.Resolution.Status, actor)

	if pushErr != nil {
		s.logg.Error(ctx, "order status saved but platform update failed", pushErr)
		if pkgerrors.IsCode(pushErr, pkgerrors.CodeExternalAPI) || pkgerrors.IsCode(pushErr, pkgerrors.CodeDependency) {
			return result, pushErr
		}
		return result, pkgerrors.Wrap(pkgerrors.CodeExternalAPI, pushErr, "platform status update failed")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"status": result.Resolution.Status,
		"wallet": result.Wallet,
	}), "order status changed")
	return result, nil
}

// Resolve loads the override for the order and returns its canonical status.
func (s *service) Resolve(ctx context.Context, order models.Order) (Resolution, error) {
	override, err := s.overrides.Find(ctx, order.StoreDomain, order.PlatformOrderID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Resolution{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load status override")
		}
		override = nil
	}
	return ResolveOrder(order, override), nil
}

// ResolveMany resolves a batch of orders of one store with a single override query.
func (s *service) ResolveMany(ctx context.Context, store string, orders []models.Order) (map[string]Resolution, error) {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.PlatformOrderID)
	}
	rows, err := s.overrides.ListForOrders(ctx, store, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list status overrides")
	}
	byOrder := make(map[string]*models.OrderStatusOverride, len(rows))
	for i := range rows {
		byOrder[rows[i].PlatformOrderID] = &rows[i]
	}
	out := make(map[string]Resolution, len(orders))
	for _, o := range orders {
		out[o.PlatformOrderID] = ResolveOrder(o, byOrder[o.PlatformOrderID])
	}
	return out, nil
}

// Observe resolves an order seen by sync or a webhook and drives the wallet
// through the same gate as manual changes.
func (s *service) Observe(ctx context.Context, order models.Order, actor string) (Resolution, LedgerOutcome, error) {
	res, err := s.Resolve(ctx, order)
	if err != nil {
		return Resolution{}, "", err
	}
	if EffectFor(res.Status) == EffectNone {
		return res, OutcomeSkipped, nil
	}
	return res, s.applyOrQueue(ctx, order, res.Status, actor), nil
}

func (s *service) pushToPlatform(ctx context.Context, store, orderID string, status enums.OrderStatus) error {
	creds := storefront.Credentials{StoreDomain: store}
	conn, err := s.connections.Get(ctx, store)
	switch {
	case err == nil:
		creds.AccessToken = conn.AccessToken
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
	default:
		return err
	}
	return s.platform.UpdateOrderStatus(ctx, creds, orderID, status)
}

func (s *service) applyOrQueue(ctx context.Context, order models.Order, status enums.OrderStatus, actor string) LedgerOutcome {
	outcome, err := s.ledger.ApplyForStatus(ctx, order, status, actor)
	if err == nil {
		return outcome
	}

	s.logg.Error(ctx, "wallet application failed, queueing retry", err)
	event := outbox.DomainEvent{
		EventType:     enums.EventWalletApplyRetry,
		AggregateType: enums.AggregateOrder,
		AggregateID:   RetryAggregateID(order.StoreDomain, order.PlatformOrderID, status),
		Actor:         &outbox.ActorRef{ActorID: actor},
		Version:       payloads.WalletApplyRetryVersion,
		Data: payloads.WalletApplyRetryEvent{
			Store:   order.StoreDomain,
			OrderID: order.PlatformOrderID,
			Status:  status,
			ActorID: actor,
			Reason:  err.Error(),
		},
	}
	if qErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.retries.EmitIfNotExists(ctx, tx, event)
	}); qErr != nil {
		s.logg.Error(ctx, "failed to queue wallet retry", qErr)
		return OutcomeFailed
	}
	return OutcomeQueued
}

// RetryAggregateID keys queued wallet retries per order and status.
func RetryAggregateID(store, orderID string, status enums.OrderStatus) string {
	return store + ":" + orderID + ":" + string(status)
}
