package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

const statusMetafieldNamespace = "marginledger"

// UpdateOrderStatus pushes a business status to the platform. Cancellation uses
// the cancel endpoint; every other status is written to an order metafield.
// The platform has no idempotency key for these calls, so they are never retried.
func (c *Client) UpdateOrderStatus(ctx context.Context, creds Credentials, orderID string, status enums.OrderStatus) error {
	creds, err := c.credentials(creds)
	if err != nil {
		return err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !status.IsOverride() {
		return pkgerrors.New(pkgerrors.CodeValidation, "status cannot be pushed to the platform").
			WithDetails(map[string]any{"status": status})
	}

	escaped := url.PathEscape(orderID)
	var (
		endpoint string
		payload  any
	)
	if status == enums.OrderStatusCancelled {
		endpoint = c.adminURL(creds.StoreDomain, c.apiVersion, "orders/"+escaped+"/cancel.json")
		payload = map[string]any{}
	} else {
		endpoint = c.adminURL(creds.StoreDomain, c.apiVersion, "orders/"+escaped+"/metafields.json")
		payload = map[string]any{
			"metafield": map[string]any{
				"namespace": statusMetafieldNamespace,
				"key":       "status",
				"value":     string(status),
				"type":      "single_line_text_field",
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal status update")
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, creds.AccessToken, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build status update request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExternalAPI, err, "status update request failed").
			WithDetails(map[string]any{"store": creds.StoreDomain, "order_id": orderID})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.Wrap(pkgerrors.CodeExternalAPI, statusError(resp), "status update rejected by platform").
			WithDetails(map[string]any{"store": creds.StoreDomain, "order_id": orderID, "status_code": resp.StatusCode})
	}
	return nil
}
