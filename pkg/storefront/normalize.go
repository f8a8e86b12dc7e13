package storefront

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

const defaultCurrency = "INR"

// Source tags the mechanism a raw order came from. It never leaves this package.
type Source string

const (
	SourceREST    Source = "rest"
	SourceGraphQL Source = "graphql"
	SourceLegacy  Source = "legacy_rest"
	SourceWebhook Source = "webhook"
)

type rawOrder struct {
	source      Source
	id          string
	name        string
	number      string
	customer    models.CustomerSummary
	currency    string
	total       string
	confirmed   *bool
	cancelledAt *time.Time
	fulfillment string
	financial   string
	createdAt   *time.Time
	updatedAt   *time.Time
	shipping    json.RawMessage
	billing     json.RawMessage
	items       []rawLineItem
}

type rawLineItem struct {
	productID string
	variantID string
	sku       string
	name      string
	quantity  int
	price     string
}

// flexID accepts numeric or string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", string(data))
	}
	*f = flexID(n.String())
	return nil
}

type restOrder struct {
	ID                flexID          `json:"id"`
	Name              string          `json:"name"`
	OrderNumber       flexID          `json:"order_number"`
	Email             string          `json:"email"`
	Phone             string          `json:"phone"`
	Currency          string          `json:"currency"`
	TotalPrice        string          `json:"total_price"`
	Confirmed         *bool           `json:"confirmed"`
	CancelledAt       *time.Time      `json:"cancelled_at"`
	FulfillmentStatus *string         `json:"fulfillment_status"`
	FinancialStatus   *string         `json:"financial_status"`
	CreatedAt         *time.Time      `json:"created_at"`
	UpdatedAt         *time.Time      `json:"updated_at"`
	ShippingAddress   json.RawMessage `json:"shipping_address"`
	BillingAddress    json.RawMessage `json:"billing_address"`
	Customer          *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"customer"`
	LineItems []struct {
		ProductID flexID `json:"product_id"`
		VariantID flexID `json:"variant_id"`
		SKU       string `json:"sku"`
		Title     string `json:"title"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
		Price     string `json:"price"`
	} `json:"line_items"`
}

func (o restOrder) raw(source Source) rawOrder {
	out := rawOrder{
		source:      source,
		id:          string(o.ID),
		name:        o.Name,
		number:      string(o.OrderNumber),
		currency:    o.Currency,
		total:       o.TotalPrice,
		confirmed:   o.Confirmed,
		cancelledAt: o.CancelledAt,
		fulfillment: deref(o.FulfillmentStatus),
		financial:   deref(o.FinancialStatus),
		createdAt:   o.CreatedAt,
		updatedAt:   o.UpdatedAt,
		shipping:    o.ShippingAddress,
		billing:     o.BillingAddress,
		customer:    models.CustomerSummary{Email: o.Email, Phone: o.Phone},
	}
	if o.Customer != nil {
		out.customer.Name = strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
		if out.customer.Email == "" {
			out.customer.Email = o.Customer.Email
		}
		if out.customer.Phone == "" {
			out.customer.Phone = o.Customer.Phone
		}
	}
	for _, li := range o.LineItems {
		name := li.Title
		if name == "" {
			name = li.Name
		}
		out.items = append(out.items, rawLineItem{
			productID: string(li.ProductID),
			variantID: string(li.VariantID),
			sku:       li.SKU,
			name:      name,
			quantity:  li.Quantity,
			price:     li.Price,
		})
	}
	return out
}

type money struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shopMoney"`
}

type graphQLOrder struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Email                    string          `json:"email"`
	Phone                    string          `json:"phone"`
	Confirmed                *bool           `json:"confirmed"`
	CancelledAt              *time.Time      `json:"cancelledAt"`
	CreatedAt                *time.Time      `json:"createdAt"`
	UpdatedAt                *time.Time      `json:"updatedAt"`
	CurrencyCode             string          `json:"currencyCode"`
	DisplayFulfillmentStatus string          `json:"displayFulfillmentStatus"`
	DisplayFinancialStatus   string          `json:"displayFinancialStatus"`
	TotalPriceSet            money           `json:"totalPriceSet"`
	ShippingAddress          json.RawMessage `json:"shippingAddress"`
	BillingAddress           json.RawMessage `json:"billingAddress"`
	Customer                 *struct {
		DisplayName string `json:"displayName"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
	} `json:"customer"`
	LineItems struct {
		Edges []struct {
			Node struct {
				Name     string `json:"name"`
				Title    string `json:"title"`
				SKU      string `json:"sku"`
				Quantity int    `json:"quantity"`
				Product  *struct {
					ID string `json:"id"`
				} `json:"product"`
				Variant *struct {
					ID string `json:"id"`
				} `json:"variant"`
				OriginalUnitPriceSet money `json:"originalUnitPriceSet"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"lineItems"`
}

type graphQLOrdersResponse struct {
	Data *struct {
		Orders struct {
			Edges []struct {
				Node graphQLOrder `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"orders"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (o graphQLOrder) raw() rawOrder {
	out := rawOrder{
		source:      SourceGraphQL,
		id:          gidTail(o.ID),
		name:        o.Name,
		currency:    o.CurrencyCode,
		total:       o.TotalPriceSet.ShopMoney.Amount,
		confirmed:   o.Confirmed,
		cancelledAt: o.CancelledAt,
		fulfillment: o.DisplayFulfillmentStatus,
		financial:   o.DisplayFinancialStatus,
		createdAt:   o.CreatedAt,
		updatedAt:   o.UpdatedAt,
		shipping:    o.ShippingAddress,
		billing:     o.BillingAddress,
		customer:    models.CustomerSummary{Email: o.Email, Phone: o.Phone},
	}
	if o.Customer != nil {
		out.customer.Name = o.Customer.DisplayName
		if out.customer.Email == "" {
			out.customer.Email = o.Customer.Email
		}
	}
	for _, edge := range o.LineItems.Edges {
		li := edge.Node
		item := rawLineItem{
			sku:      li.SKU,
			name:     li.Title,
			quantity: li.Quantity,
			price:    li.OriginalUnitPriceSet.ShopMoney.Amount,
		}
		if item.name == "" {
			item.name = li.Name
		}
		if li.Product != nil {
			item.productID = gidTail(li.Product.ID)
		}
		if li.Variant != nil {
			item.variantID = gidTail(li.Variant.ID)
		}
		out.items = append(out.items, item)
	}
	return out
}

// ParseOrderPayload normalizes a single order document, as delivered by order
// webhooks, into the mirror shape.
func ParseOrderPayload(store string, body []byte) (models.Order, error) {
	var o restOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return models.Order{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order payload")
	}
	if o.ID == "" {
		return models.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "order payload missing id")
	}
	return normalize(strings.ToLower(strings.TrimSpace(store)), o.raw(SourceWebhook)), nil
}

func normalizeOrders(store string, raws []rawOrder) []models.Order {
	out := make([]models.Order, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		if raw.id == "" {
			continue
		}
		if _, dup := seen[raw.id]; dup {
			continue
		}
		seen[raw.id] = struct{}{}
		out = append(out, normalize(store, raw))
	}
	return out
}

func normalize(store string, raw rawOrder) models.Order {
	order := models.Order{
		StoreDomain:       store,
		PlatformOrderID:   raw.id,
		OrderNumber:       orderNumber(raw),
		Customer:          raw.customer,
		Currency:          strings.ToUpper(strings.TrimSpace(raw.currency)),
		TotalAmount:       parseAmount(raw.total),
		Confirmed:         raw.confirmed != nil && *raw.confirmed,
		CancelledAt:       raw.cancelledAt,
		FulfillmentStatus: normalizeFulfillment(raw.fulfillment),
		FinancialStatus:   normalizeFinancial(raw.financial),
		ShippingAddress:   nullableJSON(raw.shipping),
		BillingAddress:    nullableJSON(raw.billing),
		PlatformCreatedAt: raw.createdAt,
		PlatformUpdatedAt: raw.updatedAt,
		LineItems:         make([]models.OrderLineItem, 0, len(raw.items)),
	}
	if order.Currency == "" {
		order.Currency = defaultCurrency
	}
	// GraphQL has no confirmed flag on older API versions; a paid order is confirmed.
	if raw.source == SourceGraphQL && raw.confirmed == nil && order.FinancialStatus == "paid" {
		order.Confirmed = true
	}
	for _, item := range raw.items {
		qty := item.quantity
		if qty < 0 {
			qty = 0
		}
		order.LineItems = append(order.LineItems, models.OrderLineItem{
			ProductID: item.productID,
			VariantID: item.variantID,
			SKU:       item.sku,
			Name:      strings.TrimSpace(item.name),
			Quantity:  qty,
			UnitPrice: parseAmount(item.price),
		})
	}
	return order
}

func orderNumber(raw rawOrder) string {
	if raw.name != "" {
		return raw.name
	}
	if raw.number != "" {
		return "#" + raw.number
	}
	return raw.id
}

func normalizeFulfillment(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fulfilled":
		return "fulfilled"
	case "partial", "partially_fulfilled":
		return "partial"
	case "restocked":
		return "restocked"
	case "unfulfilled":
		return "unfulfilled"
	default:
		return ""
	}
}

func normalizeFinancial(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func parseAmount(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func gidTail(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return id
	}
	return strings.TrimSpace(id)
}

func nullableJSON(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
