package enums

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventWalletApplyRetry OutboxEventType = "wallet.apply_retry"
)

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
)
