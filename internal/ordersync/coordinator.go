package ordersync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	"github.com/angelmondragon/marginledger-backend/pkg/config"
	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/storefront"
)

const syncActor = "sync"

type storeLister interface {
	ListActive(ctx context.Context, domains []string) ([]models.StoreConnection, error)
	MarkSynced(ctx context.Context, store string, at time.Time) error
}

type orderFetcher interface {
	FetchOrders(ctx context.Context, creds storefront.Credentials, q storefront.OrderQuery) ([]models.Order, error)
}

type orderMirror interface {
	Mirror(ctx context.Context, order models.Order) (*models.Order, error)
}

type statusObserver interface {
	Observe(ctx context.Context, order models.Order, actor string) (orderstatus.Resolution, orderstatus.LedgerOutcome, error)
}

type syncRecorder interface {
	ObserveStoreSync(ok bool, orders int)
}

// Request scopes a sync run. Empty Stores means every active connection.
// SupplierProductIDs limits which orders count as relevant.
type Request struct {
	Stores             []string   `json:"stores,omitempty"`
	SupplierProductIDs []string   `json:"supplier_product_ids,omitempty"`
	Since              *time.Time `json:"since,omitempty"`
}

// StoreResult is the outcome of syncing one store.
type StoreResult struct {
	Store       string `json:"store"`
	Fetched     int    `json:"fetched"`
	Orders      int    `json:"orders"`
	ScopedItems int    `json:"scoped_items,omitempty"`
	Applied     int    `json:"wallet_applied"`
	Duplicates  int    `json:"wallet_duplicates"`
	Queued      int    `json:"wallet_queued"`
	Failed      int    `json:"failed_orders"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the store synced without a store-level failure.
func (r StoreResult) OK() bool {
	return r.Error == ""
}

// Result aggregates a sync run. A failed store never aborts the others.
type Result struct {
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Stores      []StoreResult `json:"stores"`
	TotalOrders int           `json:"total_orders"`
	FailedCount int           `json:"failed_stores"`
	Resynced    bool          `json:"resynced"`
}

// Err combines the store-level failures of the run, or nil.
func (r *Result) Err() error {
	var errs error
	for _, s := range r.Stores {
		if !s.OK() {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s", s.Store, s.Error))
		}
	}
	return errs
}

// CoordinatorParams groups the collaborators of the sync coordinator.
type CoordinatorParams struct {
	Stores   storeLister
	Fetcher  orderFetcher
	Orders   orderMirror
	Statuses statusObserver
	Metrics  syncRecorder
	Logger   *logger.Logger
	Config   config.SyncConfig
}

// Coordinator pulls orders for connected stores into the mirror and drives
// the wallet for ledger-relevant statuses.
type Coordinator struct {
	stores      storeLister
	fetcher     orderFetcher
	orders      orderMirror
	statuses    statusObserver
	metrics     syncRecorder
	logg        *logger.Logger
	concurrency int
	lookback    time.Duration
	now         func() time.Time
}

// NewCoordinator wires the sync coordinator. Metrics may be nil.
func NewCoordinator(p CoordinatorParams) (*Coordinator, error) {
	if p.Stores == nil {
		return nil, fmt.Errorf("store lister required")
	}
	if p.Fetcher == nil {
		return nil, fmt.Errorf("order fetcher required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order mirror required")
	}
	if p.Statuses == nil {
		return nil, fmt.Errorf("status observer required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	concurrency := p.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{
		stores:      p.Stores,
		fetcher:     p.Fetcher,
		orders:      p.Orders,
		statuses:    p.Statuses,
		metrics:     p.Metrics,
		logg:        p.Logger,
		concurrency: concurrency,
		lookback:    p.Config.Lookback,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run syncs the requested stores. When the run finds no relevant orders it
// re-syncs exactly once without the date window.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	requested := normalizeStores(req.Stores)
	conns, err := c.stores.ListActive(ctx, requested)
	if err != nil {
		return nil, err
	}

	since := req.Since
	if since == nil && c.lookback > 0 {
		from := c.now().Add(-c.lookback)
		since = &from
	}
	scope := newProductScope(req.SupplierProductIDs)

	result := c.syncAll(ctx, conns, since, scope)
	if result.TotalOrders == 0 && len(conns) > 0 && ctx.Err() == nil {
		c.logg.Warn(ctx, "sync found no relevant orders, re-syncing once without date window")
		result = c.syncAll(ctx, conns, nil, scope)
		result.Resynced = true
	}

	result.Stores = append(result.Stores, missingStores(requested, conns)...)
	for _, s := range result.Stores {
		if !s.OK() {
			result.FailedCount++
		}
	}
	result.FinishedAt = c.now()

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"stores":        len(result.Stores),
		"failed_stores": result.FailedCount,
		"orders":        result.TotalOrders,
		"resynced":      result.Resynced,
	})
	if errs := result.Err(); errs != nil {
		c.logg.Error(logCtx, "order sync finished with store failures", errs)
	} else {
		c.logg.Info(logCtx, "order sync finished")
	}
	return result, nil
}

func (c *Coordinator) syncAll(ctx context.Context, conns []models.StoreConnection, since *time.Time, scope productScope) *Result {
	result := &Result{StartedAt: c.now(), Stores: make([]StoreResult, len(conns))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	var mu sync.Mutex
	for i := range conns {
		i, conn := i, conns[i]
		g.Go(func() error {
			res := c.syncStore(gctx, conn, since, scope)
			mu.Lock()
			result.Stores[i] = res
			result.TotalOrders += res.Orders
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (c *Coordinator) syncStore(ctx context.Context, conn models.StoreConnection, since *time.Time, scope productScope) StoreResult {
	ctx = c.logg.WithStoreID(ctx, conn.StoreDomain)
	res := StoreResult{Store: conn.StoreDomain}

	fetched, err := c.fetcher.FetchOrders(ctx, storefront.Credentials{
		StoreDomain: conn.StoreDomain,
		AccessToken: conn.AccessToken,
	}, storefront.OrderQuery{CreatedAtMin: since})
	if err != nil {
		res.Error = err.Error()
		c.logg.Error(ctx, "store order fetch failed", err)
		c.observe(false, 0)
		return res
	}
	res.Fetched = len(fetched)

	for _, order := range fetched {
		order, ok := scope.apply(order)
		if !ok {
			continue
		}
		res.ScopedItems += len(order.LineItems)

		stored, err := c.orders.Mirror(ctx, order)
		if err != nil {
			res.Failed++
			c.logg.Error(c.logg.WithOrderID(ctx, order.PlatformOrderID), "order mirror upsert failed", err)
			continue
		}
		res.Orders++

		_, outcome, err := c.statuses.Observe(ctx, *stored, syncActor)
		if err != nil {
			res.Failed++
			c.logg.Error(c.logg.WithOrderID(ctx, order.PlatformOrderID), "order status resolution failed", err)
			continue
		}
		switch outcome {
		case orderstatus.OutcomeApplied:
			res.Applied++
		case orderstatus.OutcomeDuplicate:
			res.Duplicates++
		case orderstatus.OutcomeQueued, orderstatus.OutcomeFailed:
			res.Queued++
		}
	}
	if !scope.active() {
		res.ScopedItems = 0
	}

	if err := c.stores.MarkSynced(ctx, conn.StoreDomain, c.now()); err != nil {
		c.logg.Warn(ctx, "failed to record store sync time")
	}
	c.observe(true, res.Orders)
	return res
}

func (c *Coordinator) observe(ok bool, orders int) {
	if c.metrics != nil {
		c.metrics.ObserveStoreSync(ok, orders)
	}
}

func missingStores(requested []string, conns []models.StoreConnection) []StoreResult {
	if len(requested) == 0 {
		return nil
	}
	connected := make(map[string]bool, len(conns))
	for _, c := range conns {
		connected[c.StoreDomain] = true
	}
	var out []StoreResult
	for _, store := range requested {
		if !connected[store] {
			out = append(out, StoreResult{Store: store, Error: "store is not connected"})
		}
	}
	return out
}

func normalizeStores(stores []string) []string {
	seen := make(map[string]bool, len(stores))
	out := make([]string, 0, len(stores))
	for _, s := range stores {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
