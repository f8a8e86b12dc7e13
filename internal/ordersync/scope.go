package ordersync

import (
	"strings"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// productScope restricts a sync to orders carrying a supplier's products.
type productScope map[string]struct{}

func newProductScope(ids []string) productScope {
	if len(ids) == 0 {
		return nil
	}
	scope := make(productScope, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			scope[id] = struct{}{}
		}
	}
	return scope
}

func (s productScope) active() bool {
	return len(s) > 0
}

// apply narrows the order to the scoped line items. It reports false when no
// item is left. Without a scope the order passes through untouched.
func (s productScope) apply(order models.Order) (models.Order, bool) {
	if !s.active() {
		return order, true
	}
	kept := make([]models.OrderLineItem, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		if _, ok := s[strings.TrimSpace(item.ProductID)]; ok {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return order, false
	}
	order.LineItems = kept
	return order, true
}
