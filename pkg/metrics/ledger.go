package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts order sync, webhook and wallet activity.
type LedgerMetrics struct {
	syncStores   *prometheus.CounterVec
	syncedOrders prometheus.Counter
	webhooks     *prometheus.CounterVec
	wallet       *prometheus.CounterVec
	fetches      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op collector.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		syncStores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "order_sync_stores_total",
			Help:      "Stores processed by order sync, by result.",
		}, []string{"result"}),
		syncedOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "order_sync_orders_total",
			Help:      "Orders upserted into the mirror by sync.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "storefront_webhooks_total",
			Help:      "Inbound storefront webhooks, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		wallet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "wallet_applications_total",
			Help:      "Order-driven wallet applications, by transaction type and outcome.",
		}, []string{"type", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "storefront_order_fetches_total",
			Help:      "Storefront order fetch attempts, by mechanism and result.",
		}, []string{"mechanism", "result"}),
	}
	reg.MustRegister(m.syncStores, m.syncedOrders, m.webhooks, m.wallet, m.fetches)
	return m
}

// ObserveStoreSync records one store's sync result.
func (m *LedgerMetrics) ObserveStoreSync(ok bool, orders int) {
	if m == nil || m.syncStores == nil {
		return
	}
	m.syncStores.WithLabelValues(resultLabel(ok)).Inc()
	if orders > 0 {
		m.syncedOrders.Add(float64(orders))
	}
}

// IncWebhook records an inbound webhook.
func (m *LedgerMetrics) IncWebhook(topic, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}

// IncWallet records an order-driven wallet application outcome.
func (m *LedgerMetrics) IncWallet(txType, outcome string) {
	if m == nil || m.wallet == nil {
		return
	}
	m.wallet.WithLabelValues(normalizeLabel(txType), normalizeLabel(outcome)).Inc()
}

// IncFetch records a storefront fetch attempt for the given mechanism.
func (m *LedgerMetrics) IncFetch(mechanism string, ok bool) {
	if m == nil || m.fetches == nil {
		return
	}
	m.fetches.WithLabelValues(normalizeLabel(mechanism), resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
