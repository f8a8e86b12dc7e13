package enums

import (
	"fmt"
	"strings"
)

// OrderStatus is the canonical business status of a mirrored order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusInTransit       OrderStatus = "in_transit"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusFulfilled       OrderStatus = "fulfilled"
	OrderStatusPartial         OrderStatus = "partial"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRTO             OrderStatus = "rto"
	OrderStatusPickupInitiated OrderStatus = "pickup_initiated"
	OrderStatusPickupAligned   OrderStatus = "pickup_aligned"
	OrderStatusUndelivered     OrderStatus = "undelivered"

	// Derived from platform fields only; never accepted as an override.
	OrderStatusConfirmedFulfilled OrderStatus = "confirmed_fulfilled"
	OrderStatusConfirmedPartial   OrderStatus = "confirmed_partial"
	OrderStatusPartiallyFulfilled OrderStatus = "partially_fulfilled"
	OrderStatusUnfulfilled        OrderStatus = "unfulfilled"
)

var overrideOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusFulfilled,
	OrderStatusPartial,
	OrderStatusCancelled,
	OrderStatusRTO,
	OrderStatusPickupInitiated,
	OrderStatusPickupAligned,
	OrderStatusUndelivered,
}

var derivedOrderStatuses = []OrderStatus{
	OrderStatusConfirmedFulfilled,
	OrderStatusConfirmedPartial,
	OrderStatusPartiallyFulfilled,
	OrderStatusUnfulfilled,
}

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPending:            "Pending",
	OrderStatusConfirmed:          "Confirmed",
	OrderStatusInTransit:          "In Transit",
	OrderStatusDelivered:          "Delivered",
	OrderStatusFulfilled:          "Fulfilled",
	OrderStatusPartial:            "Partially Fulfilled",
	OrderStatusCancelled:          "Cancelled",
	OrderStatusRTO:                "RTO",
	OrderStatusPickupInitiated:    "Pickup Initiated",
	OrderStatusPickupAligned:      "Pickup Aligned",
	OrderStatusUndelivered:        "Undelivered",
	OrderStatusConfirmedFulfilled: "Confirmed · Fulfilled",
	OrderStatusConfirmedPartial:   "Confirmed · Partially Fulfilled",
	OrderStatusPartiallyFulfilled: "Partially Fulfilled",
	OrderStatusUnfulfilled:        "Unfulfilled",
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value belongs to the canonical enumeration.
func (s OrderStatus) IsValid() bool {
	return s.IsOverride() || containsOrderStatus(derivedOrderStatuses, s)
}

// IsOverride reports whether an admin may set the value manually.
func (s OrderStatus) IsOverride() bool {
	return containsOrderStatus(overrideOrderStatuses, s)
}

// Label returns the display label used by dashboards.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return orderStatusLabels[OrderStatusPending]
}

// OverrideOrderStatuses lists the values accepted by the status mutation endpoint.
func OverrideOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(overrideOrderStatuses))
	copy(out, overrideOrderStatuses)
	return out
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// ParseOverrideOrderStatus accepts only statuses an admin can set.
func ParseOverrideOrderStatus(value string) (OrderStatus, error) {
	normalized := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsOverride() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid override status %q", value)
}

func containsOrderStatus(list []OrderStatus, s OrderStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
