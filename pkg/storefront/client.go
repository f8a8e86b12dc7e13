package storefront

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/marginledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

const (
	defaultTimeout              = 15 * time.Second
	defaultPageSize             = 250
	defaultMaxPages             = 20
	responseBodyReadLimit int64 = 1024
	accessTokenHeader           = "X-Shopify-Access-Token"
)

// Credentials identify a store and its admin API token.
type Credentials struct {
	StoreDomain string
	AccessToken string
}

// fetchRecorder receives one observation per fetch mechanism attempt.
type fetchRecorder interface {
	IncFetch(mechanism string, ok bool)
}

// Client talks to the storefront platform admin API. Reads are retried with
// backoff; mutations are attempted once.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	scheme        string
	apiVersion    string
	legacyVersion string
	pageSize      int
	maxPages      int
	readRetries   uint64
	retryBase     time.Duration
	defaultToken  string
	recorder      fetchRecorder
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL sends every store's requests to baseURL instead of the store domain.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithFetchRecorder reports per-mechanism fetch outcomes.
func WithFetchRecorder(recorder fetchRecorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithMaxPages caps how many pages a single mechanism follows.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient builds a client from the storefront configuration.
func NewClient(cfg config.StorefrontConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	scheme := strings.TrimSpace(cfg.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 250 * time.Millisecond
	}

	client := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		scheme:        scheme,
		apiVersion:    cfg.APIVersion,
		legacyVersion: cfg.LegacyAPIVersion,
		pageSize:      pageSize,
		maxPages:      defaultMaxPages,
		readRetries:   cfg.ReadRetries,
		retryBase:     retryBase,
		defaultToken:  strings.TrimSpace(cfg.DefaultAccessToken),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

func (c *Client) credentials(creds Credentials) (Credentials, error) {
	creds.StoreDomain = strings.ToLower(strings.TrimSpace(creds.StoreDomain))
	if creds.StoreDomain == "" {
		return creds, pkgerrors.New(pkgerrors.CodeValidation, "store domain is required")
	}
	creds.AccessToken = strings.TrimSpace(creds.AccessToken)
	if creds.AccessToken == "" {
		creds.AccessToken = c.defaultToken
	}
	if creds.AccessToken == "" {
		return creds, pkgerrors.New(pkgerrors.CodeDependency, "storefront access token missing").
			WithDetails(map[string]any{"store": creds.StoreDomain})
	}
	return creds, nil
}

func (c *Client) adminURL(store, version, path string) string {
	base := c.baseURL
	if base == "" {
		base = fmt.Sprintf("%s://%s", c.scheme, store)
	}
	return fmt.Sprintf("%s/admin/api/%s/%s", base, version, strings.TrimLeft(path, "/"))
}

func (c *Client) newRequest(ctx context.Context, method, url, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(accessTokenHeader, token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doRead executes an idempotent request with bounded exponential backoff.
// Transport errors, 429 and 5xx are retried; anything else fails immediately.
func (c *Client) doRead(ctx context.Context, build func(context.Context) (*http.Request, error), decode func(*http.Response) error) error {
	backoff := retry.WithMaxRetries(c.readRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(statusError(resp))
		}
		if resp.StatusCode != http.StatusOK {
			return statusError(resp)
		}
		return decode(resp)
	})
}

func (c *Client) record(source Source, ok bool) {
	if c.recorder != nil {
		c.recorder.IncFetch(string(source), ok)
	}
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
