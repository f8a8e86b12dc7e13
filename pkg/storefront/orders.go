package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

const legacyOrderFields = "id,name,order_number,email,phone,currency,total_price,confirmed,cancelled_at," +
	"fulfillment_status,financial_status,created_at,updated_at,customer,line_items,shipping_address,billing_address"

// OrderQuery narrows an order fetch.
type OrderQuery struct {
	CreatedAtMin *time.Time
}

type mechanism struct {
	source Source
	fetch  func(ctx context.Context, creds Credentials, q OrderQuery) ([]rawOrder, error)
}

func (c *Client) mechanisms() []mechanism {
	return []mechanism{
		{source: SourceREST, fetch: func(ctx context.Context, creds Credentials, q OrderQuery) ([]rawOrder, error) {
			return c.fetchREST(ctx, creds, q, c.apiVersion, "", SourceREST)
		}},
		{source: SourceGraphQL, fetch: c.fetchGraphQL},
		{source: SourceLegacy, fetch: func(ctx context.Context, creds Credentials, q OrderQuery) ([]rawOrder, error) {
			return c.fetchREST(ctx, creds, q, c.legacyVersion, legacyOrderFields, SourceLegacy)
		}},
	}
}

// FetchOrders returns the store's orders normalized into the mirror shape. The
// first mechanism that returns a parseable response wins; failures fall through
// to the next one.
func (c *Client) FetchOrders(ctx context.Context, creds Credentials, q OrderQuery) ([]models.Order, error) {
	creds, err := c.credentials(creds)
	if err != nil {
		return nil, err
	}

	var errs error
	for _, m := range c.mechanisms() {
		raws, err := m.fetch(ctx, creds, q)
		c.record(m.source, err == nil)
		if err == nil {
			return normalizeOrders(creds.StoreDomain, raws), nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", m.source, err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeExternalAPI, ctxErr, "order fetch canceled")
		}
	}

	messages := make([]string, 0)
	for _, e := range multierr.Errors(errs) {
		messages = append(messages, e.Error())
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeExternalAPI, errs, "all order fetch mechanisms failed").
		WithDetails(map[string]any{"store": creds.StoreDomain, "attempts": messages})
}

func (c *Client) fetchREST(ctx context.Context, creds Credentials, q OrderQuery, version, fields string, source Source) ([]rawOrder, error) {
	if version == "" {
		return nil, errors.New("api version not configured")
	}
	params := url.Values{}
	params.Set("status", "any")
	params.Set("limit", strconv.Itoa(c.pageSize))
	if fields != "" {
		params.Set("fields", fields)
	}
	if q.CreatedAtMin != nil {
		params.Set("created_at_min", q.CreatedAtMin.UTC().Format(time.RFC3339))
	}
	next := c.adminURL(creds.StoreDomain, version, "orders.json") + "?" + params.Encode()

	var out []rawOrder
	for page := 0; next != "" && page < c.maxPages; page++ {
		pageURL := next
		next = ""
		err := c.doRead(ctx, func(ctx context.Context) (*http.Request, error) {
			return c.newRequest(ctx, http.MethodGet, pageURL, creds.AccessToken, nil)
		}, func(resp *http.Response) error {
			var body struct {
				Orders []restOrder `json:"orders"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode orders: %w", err)
			}
			for _, o := range body.Orders {
				out = append(out, o.raw(source))
			}
			next = nextPageLink(resp.Header.Get("Link"))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

const ordersGraphQLQuery = `query Orders($first: Int!, $after: String, $query: String) {
  orders(first: $first, after: $after, query: $query, sortKey: CREATED_AT) {
    edges {
      node {
        id
        name
        email
        phone
        confirmed
        cancelledAt
        createdAt
        updatedAt
        currencyCode
        displayFulfillmentStatus
        displayFinancialStatus
        totalPriceSet { shopMoney { amount } }
        customer { displayName email phone }
        shippingAddress { address1 address2 city province zip country phone name }
        billingAddress { address1 address2 city province zip country phone name }
        lineItems(first: 100) {
          edges {
            node {
              name
              title
              sku
              quantity
              product { id }
              variant { id }
              originalUnitPriceSet { shopMoney { amount } }
            }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *Client) fetchGraphQL(ctx context.Context, creds Credentials, q OrderQuery) ([]rawOrder, error) {
	if c.apiVersion == "" {
		return nil, errors.New("api version not configured")
	}
	endpoint := c.adminURL(creds.StoreDomain, c.apiVersion, "graphql.json")
	variables := map[string]any{"first": c.pageSize}
	if q.CreatedAtMin != nil {
		variables["query"] = "created_at:>=" + q.CreatedAtMin.UTC().Format(time.RFC3339)
	}

	var out []rawOrder
	hasNext := true
	for page := 0; hasNext && page < c.maxPages; page++ {
		payload, err := json.Marshal(map[string]any{"query": ordersGraphQLQuery, "variables": variables})
		if err != nil {
			return nil, err
		}
		err = c.doRead(ctx, func(ctx context.Context) (*http.Request, error) {
			return c.newRequest(ctx, http.MethodPost, endpoint, creds.AccessToken, bytes.NewReader(payload))
		}, func(resp *http.Response) error {
			var body graphQLOrdersResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode graphql orders: %w", err)
			}
			if len(body.Errors) > 0 {
				return fmt.Errorf("graphql: %s", body.Errors[0].Message)
			}
			if body.Data == nil {
				return errors.New("graphql: empty data")
			}
			for _, edge := range body.Data.Orders.Edges {
				out = append(out, edge.Node.raw())
			}
			hasNext = body.Data.Orders.PageInfo.HasNextPage && body.Data.Orders.PageInfo.EndCursor != ""
			variables["after"] = body.Data.Orders.PageInfo.EndCursor
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// nextPageLink extracts the rel="next" target of a Link header.
func nextPageLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		isNext := false
		for _, attr := range segments[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				isNext = true
			}
		}
		if !isNext {
			continue
		}
		target := strings.TrimSpace(segments[0])
		return strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
	}
	return ""
}
