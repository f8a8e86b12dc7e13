package storefrontwebhook

import (
	"context"
	"strings"

	"github.com/angelmondragon/marginledger-backend/internal/margins"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/storefront"
)

// Outcome labels what an inbound delivery resulted in.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// ActorWebhook is recorded as the creator of ledger entries driven by webhooks.
const ActorWebhook = "webhook"

type orderMirror interface {
	Mirror(ctx context.Context, order models.Order) (*models.Order, error)
}

type marginRecorder interface {
	Stored(ctx context.Context, store, orderID string) (*models.OrderMargin, error)
	Precompute(ctx context.Context, order models.Order) (margins.Result, error)
	Finalize(ctx context.Context, order models.Order) (margins.Result, error)
}

type statusObserver interface {
	Resolve(ctx context.Context, order models.Order) (orderstatus.Resolution, error)
	Observe(ctx context.Context, order models.Order, actor string) (orderstatus.Resolution, orderstatus.LedgerOutcome, error)
}

type storeDisconnector interface {
	Disconnect(ctx context.Context, store string) (bool, error)
}

type webhookRecorder interface {
	IncWebhook(topic, outcome string)
}

type ServiceParams struct {
	Orders   orderMirror
	Margins  marginRecorder
	Statuses statusObserver
	Stores   storeDisconnector
	Metrics  webhookRecorder
	Logger   *logger.Logger
}

// Event is a verified inbound delivery.
type Event struct {
	Topic      enums.WebhookTopic
	Store      string
	DeliveryID string
	Body       []byte
}

type Service struct {
	orders   orderMirror
	margins  marginRecorder
	statuses statusObserver
	stores   storeDisconnector
	metrics  webhookRecorder
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Margins == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "margins service required")
	}
	if params.Statuses == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status service required")
	}
	if params.Stores == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stores service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:   params.Orders,
		margins:  params.Margins,
		statuses: params.Statuses,
		stores:   params.Stores,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleEvent applies a storefront delivery. Unknown topics are ignored.
func (s *Service) HandleEvent(ctx context.Context, event Event) (Outcome, error) {
	outcome, err := s.handle(ctx, event)
	if err != nil {
		outcome = OutcomeFailed
	}
	if s.metrics != nil {
		s.metrics.IncWebhook(string(event.Topic), string(outcome))
	}
	return outcome, err
}

func (s *Service) handle(ctx context.Context, event Event) (Outcome, error) {
	store := strings.ToLower(strings.TrimSpace(event.Store))
	if store == "" {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "shop domain header required")
	}

	switch event.Topic {
	case enums.WebhookTopicAppUninstalled:
		changed, err := s.stores.Disconnect(ctx, store)
		if err != nil {
			return OutcomeFailed, err
		}
		if !changed {
			return OutcomeIgnored, nil
		}
		s.logg.Info(s.logg.WithField(ctx, "store", store), "store connection deactivated")
		return OutcomeProcessed, nil
	case enums.WebhookTopicOrdersCreate, enums.WebhookTopicOrdersUpdated, enums.WebhookTopicOrdersCancelled:
	default:
		return OutcomeIgnored, nil
	}

	parsed, err := storefront.ParseOrderPayload(store, event.Body)
	if err != nil {
		return OutcomeFailed, err
	}
	order, err := s.orders.Mirror(ctx, parsed)
	if err != nil {
		return OutcomeFailed, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"store":    order.StoreDomain,
		"order_id": order.PlatformOrderID,
		"topic":    string(event.Topic),
		"delivery": event.DeliveryID,
	})

	switch event.Topic {
	case enums.WebhookTopicOrdersCreate:
		if _, err := s.margins.Precompute(ctx, *order); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeProcessed, nil
	case enums.WebhookTopicOrdersUpdated:
		paid, err := s.finalizeIfPaid(ctx, *order)
		if err != nil {
			return OutcomeFailed, err
		}
		if !paid {
			debit, err := s.owesPenalty(ctx, *order)
			if err != nil {
				return OutcomeFailed, err
			}
			if !debit {
				return OutcomeProcessed, nil
			}
		}
	}

	resolution, ledger, err := s.statuses.Observe(ctx, *order, ActorWebhook)
	if err != nil {
		return OutcomeFailed, err
	}
	if ledger != "" {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"status": string(resolution.Status),
			"wallet": string(ledger),
		}), "webhook status observed")
	}
	return OutcomeProcessed, nil
}

// finalizeIfPaid reports whether the order is confirmed and paid, persisting a
// final margin the first time such an order lacks a settled one.
func (s *Service) finalizeIfPaid(ctx context.Context, order models.Order) (bool, error) {
	state := orderstatus.StateOf(order)
	if !state.Confirmed || !state.IsPaid() {
		return false, nil
	}
	existing, err := s.margins.Stored(ctx, order.StoreDomain, order.PlatformOrderID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return true, err
	}
	if existing.IsSettled() {
		return true, nil
	}
	result, err := s.margins.Finalize(ctx, order)
	if err != nil {
		return true, err
	}
	if !result.Computable {
		s.logg.Warn(s.logg.WithField(ctx, "unresolved_items", len(result.UnresolvedItems)), "margin not computable for paid order")
	}
	return true, nil
}

// owesPenalty reports whether an unpaid update still resolves to a debit, so
// cancellations and RTOs reach the wallet without crediting unpaid orders.
func (s *Service) owesPenalty(ctx context.Context, order models.Order) (bool, error) {
	res, err := s.statuses.Resolve(ctx, order)
	if err != nil {
		return false, err
	}
	return orderstatus.EffectFor(res.Status) == orderstatus.EffectDebit, nil
}
