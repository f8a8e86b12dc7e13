package payloads

import (
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
)

// WalletApplyRetryEvent is queued when a wallet side effect failed after an
// order status change was saved.
type WalletApplyRetryEvent struct {
	Store   string            `json:"store"`
	OrderID string            `json:"order_id"`
	Status  enums.OrderStatus `json:"status"`
	ActorID string            `json:"actor_id"`
	Reason  string            `json:"reason,omitempty"`
}

// WalletApplyRetryVersion is the current envelope version for retry events.
const WalletApplyRetryVersion = 1
