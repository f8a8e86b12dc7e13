package enums

import "strings"

// WebhookTopic is the storefront topic header of an inbound webhook.
type WebhookTopic string

const (
	WebhookTopicOrdersCreate    WebhookTopic = "orders/create"
	WebhookTopicOrdersUpdated   WebhookTopic = "orders/updated"
	WebhookTopicOrdersCancelled WebhookTopic = "orders/cancelled"
	WebhookTopicAppUninstalled  WebhookTopic = "app/uninstalled"
)

// ParseWebhookTopic normalizes the header value; unknown topics are returned as-is.
func ParseWebhookTopic(value string) WebhookTopic {
	return WebhookTopic(strings.ToLower(strings.TrimSpace(value)))
}

// IsOrderTopic reports whether the payload is an order document.
func (t WebhookTopic) IsOrderTopic() bool {
	switch t {
	case WebhookTopicOrdersCreate, WebhookTopicOrdersUpdated, WebhookTopicOrdersCancelled:
		return true
	default:
		return false
	}
}
