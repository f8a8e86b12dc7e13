package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/marginledger-backend/api/responses"
	storefrontwebhook "github.com/angelmondragon/marginledger-backend/internal/webhooks/storefront"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

const (
	HeaderTopic      = "X-Shopify-Topic"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderHMAC       = "X-Shopify-Hmac-Sha256"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"

	maxWebhookBody = 2 << 20
)

type StorefrontWebhookService interface {
	HandleEvent(ctx context.Context, event storefrontwebhook.Event) (storefrontwebhook.Outcome, error)
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

type SignatureVerifier interface {
	Verify(body []byte, header string) error
}

// StorefrontWebhook accepts storefront order and app lifecycle deliveries.
// Processing failures are logged and acknowledged so the platform does not
// disable the subscription.
func StorefrontWebhook(svc StorefrontWebhookService, verifier SignatureVerifier, guard WebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := verifier.Verify(payload, r.Header.Get(HeaderHMAC)); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature"))
			return
		}

		if !json.Valid(payload) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body is not valid json"))
			return
		}

		event := storefrontwebhook.Event{
			Topic:      enums.ParseWebhookTopic(r.Header.Get(HeaderTopic)),
			Store:      strings.TrimSpace(r.Header.Get(HeaderShopDomain)),
			DeliveryID: strings.TrimSpace(r.Header.Get(HeaderWebhookID)),
			Body:       payload,
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"topic":    string(event.Topic),
				"store":    event.Store,
				"delivery": event.DeliveryID,
			})
		}

		guarded := false
		if guard != nil && event.DeliveryID != "" {
			seen, err := guard.CheckAndMark(ctx, event.DeliveryID)
			switch {
			case err != nil:
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
				}
			case seen:
				responses.WriteSuccess(w, map[string]string{"outcome": string(storefrontwebhook.OutcomeDuplicate)})
				return
			default:
				guarded = true
			}
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if guarded {
				_ = guard.Delete(ctx, event.DeliveryID)
			}
			if logg != nil {
				logg.Error(ctx, "webhook processing failed", err)
			}
			responses.WriteSuccess(w, map[string]string{"outcome": string(storefrontwebhook.OutcomeFailed)})
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "webhook processed")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
