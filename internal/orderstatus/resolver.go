package orderstatus

import (
	"strings"
	"time"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
)

// Source names which input decided a resolution.
type Source string

const (
	SourceManual   Source = "manual"
	SourcePlatform Source = "platform"
	SourceDefault  Source = "default"
)

// PlatformState holds the order fields reported by the storefront platform.
type PlatformState struct {
	Confirmed         bool
	CancelledAt       *time.Time
	FulfillmentStatus string
	FinancialStatus   string
}

// Resolution is the canonical status of an order.
type Resolution struct {
	Status enums.OrderStatus `json:"status"`
	Label  string            `json:"label"`
	Source Source            `json:"source"`
}

// StateOf extracts the platform-reported fields from a mirrored order.
func StateOf(order models.Order) PlatformState {
	return PlatformState{
		Confirmed:         order.Confirmed,
		CancelledAt:       order.CancelledAt,
		FulfillmentStatus: order.FulfillmentStatus,
		FinancialStatus:   order.FinancialStatus,
	}
}

// Resolve merges platform state with an optional manual override. Precedence:
// override, platform cancellation, confirmation with fulfillment sub-state, raw
// fulfillment, pending.
func Resolve(state PlatformState, override *models.OrderStatusOverride) Resolution {
	if override != nil && override.Status.IsOverride() {
		return resolution(override.Status, SourceManual)
	}
	if state.CancelledAt != nil && !state.CancelledAt.IsZero() {
		return resolution(enums.OrderStatusCancelled, SourcePlatform)
	}

	fulfillment := strings.ToLower(strings.TrimSpace(state.FulfillmentStatus))
	if state.Confirmed {
		switch fulfillment {
		case "fulfilled":
			return resolution(enums.OrderStatusConfirmedFulfilled, SourcePlatform)
		case "partial", "partially_fulfilled":
			return resolution(enums.OrderStatusConfirmedPartial, SourcePlatform)
		default:
			return resolution(enums.OrderStatusConfirmed, SourcePlatform)
		}
	}

	switch fulfillment {
	case "fulfilled":
		return resolution(enums.OrderStatusFulfilled, SourcePlatform)
	case "partial", "partially_fulfilled":
		return resolution(enums.OrderStatusPartiallyFulfilled, SourcePlatform)
	case "unfulfilled":
		return resolution(enums.OrderStatusUnfulfilled, SourcePlatform)
	}
	return resolution(enums.OrderStatusPending, SourceDefault)
}

// ResolveOrder is Resolve over a mirrored order.
func ResolveOrder(order models.Order, override *models.OrderStatusOverride) Resolution {
	return Resolve(StateOf(order), override)
}

// IsPaid reports whether the platform considers the order fully paid.
func (p PlatformState) IsPaid() bool {
	return strings.EqualFold(strings.TrimSpace(p.FinancialStatus), "paid")
}

func resolution(status enums.OrderStatus, source Source) Resolution {
	return Resolution{Status: status, Label: status.Label(), Source: source}
}
