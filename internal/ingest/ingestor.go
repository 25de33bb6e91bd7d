// Package ingest runs the snapshot ingestion cycle: fetch each tracked
// item's order book, reconcile it against stored lifecycle state, and hand
// the resulting price points to the writer. Item fetches fan out
// concurrently but share one rate limiter, so aggregate request rate stays
// bounded regardless of fan-out width. Reconciliation is sequential per
// item and parallel across items.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tmoretti/wfm-data/internal/api"
	"github.com/tmoretti/wfm-data/internal/cache"
	"github.com/tmoretti/wfm-data/internal/metrics"
	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/queue"
	"github.com/tmoretti/wfm-data/internal/reconcile"
	"github.com/tmoretti/wfm-data/internal/storage"
)

// ErrCycleInProgress is returned when RunCycle is called while a previous
// cycle has not finished. Cycles are strictly serialized.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")

// Fetcher is the API surface the ingestor needs.
type Fetcher interface {
	GetItemOrders(ctx context.Context, urlName string) ([]api.APIOrder, error)
}

// ItemSource provides the items to ingest each cycle.
type ItemSource interface {
	TrackedItems() []model.Item
}

// Config holds ingestion cycle configuration.
type Config struct {
	Concurrency int
	// ItemTimeout bounds one item's fetch-and-reconcile.
	ItemTimeout time.Duration
	// StaleOrderAge drops snapshot entries whose upstream last_update is
	// older than this; such listings are effectively abandoned.
	StaleOrderAge time.Duration
	Reconcile     reconcile.Config
}

// Ingestor executes ingestion cycles.
type Ingestor struct {
	cfg     Config
	fetcher Fetcher
	items   ItemSource
	store   storage.Store
	sink    *queue.Buffer[model.PricePoint]
	cache   *cache.Cache
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
}

// New creates an ingestor. cache may be nil.
func New(cfg Config, fetcher Fetcher, items ItemSource, store storage.Store, sink *queue.Buffer[model.PricePoint], c *cache.Cache, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Ingestor{
		cfg:     cfg,
		fetcher: fetcher,
		items:   items,
		store:   store,
		sink:    sink,
		cache:   c,
		logger:  logger,
		now:     time.Now,
	}
}

// RunCycle ingests every tracked item once. Per-item failures are
// collected in the result, never aborting sibling items. Returns
// ErrCycleInProgress when invoked concurrently.
func (i *Ingestor) RunCycle(ctx context.Context) (*model.CycleResult, error) {
	if !i.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer i.running.Store(false)

	start := i.now()
	result := &model.CycleResult{
		CycleID: uuid.New(),
		Started: start,
	}

	items := i.items.TrackedItems()
	if len(items) == 0 {
		i.logger.Debug("no tracked items, skipping cycle", "cycle_id", result.CycleID)
		result.Duration = i.now().Sub(start)
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			res, err := i.processItem(gctx, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.ItemsFailed++
				result.Failures = append(result.Failures, model.ItemFailure{
					Item: item.Name,
					Err:  err.Error(),
				})
				metrics.CycleItems.WithLabelValues("failed").Inc()
				i.logger.Warn("item ingestion failed",
					"cycle_id", result.CycleID, "item", item.Name, "error", err)
				return nil // isolation: siblings keep going
			}
			result.ItemsSucceeded++
			result.OrdersCreated += res.Created
			result.OrdersUpdated += res.Updated
			result.PriceChanges += res.PriceChanges
			result.OrdersFulfilled += res.Fulfilled
			result.OrdersDead += res.Dead
			result.PricePoints += len(res.PricePoints)
			metrics.CycleItems.WithLabelValues("succeeded").Inc()
			return nil
		})
	}

	// Item errors never propagate; only context cancellation can.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = i.now().Sub(start)
	metrics.CycleDuration.Observe(result.Duration.Seconds())
	metrics.Transitions.WithLabelValues("created").Add(float64(result.OrdersCreated))
	metrics.Transitions.WithLabelValues("fulfilled").Add(float64(result.OrdersFulfilled))
	metrics.Transitions.WithLabelValues("dead").Add(float64(result.OrdersDead))

	i.logger.Info("ingestion cycle complete",
		"cycle_id", result.CycleID,
		"items", len(items),
		"succeeded", result.ItemsSucceeded,
		"failed", result.ItemsFailed,
		"orders_created", result.OrdersCreated,
		"orders_updated", result.OrdersUpdated,
		"price_points", result.PricePoints,
		"duration", result.Duration,
	)
	return result, nil
}

// processItem fetches one item's snapshot and reconciles it. The same item
// is never processed by two goroutines in one cycle, which keeps per-item
// reconciliation sequential.
func (i *Ingestor) processItem(ctx context.Context, item model.Item) (reconcile.Result, error) {
	if i.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.ItemTimeout)
		defer cancel()
	}

	orders, err := i.fetcher.GetItemOrders(ctx, item.Name)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("fetch orders: %w", err)
	}

	now := i.now().UTC()
	entries := i.snapshotEntries(item, orders, now)

	prior, err := i.store.ActiveOrderRecords(ctx, item.ID)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("load active records: %w", err)
	}
	terminal, err := i.store.TerminalOrderRecordsSince(ctx, item.ID, now.Add(-i.cfg.Reconcile.RelistWindow))
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("load terminal records: %w", err)
	}

	res := reconcile.Apply(i.cfg.Reconcile, prior, terminal, entries, now)
	if res.InvariantViolations > 0 {
		metrics.InvariantViolations.Add(float64(res.InvariantViolations))
		i.logger.Warn("closed orders reappeared in snapshot, restarted",
			"item", item.Name, "count", res.InvariantViolations)
	}

	for _, rec := range res.Records {
		if err := i.store.UpsertOrderRecord(ctx, rec); err != nil {
			return reconcile.Result{}, fmt.Errorf("upsert order %s: %w", rec.OrderID, err)
		}
	}
	dropped := 0
	for _, p := range res.PricePoints {
		if !i.sink.Push(p) {
			dropped++
		}
	}
	if dropped > 0 {
		// The buffer only rejects pushes after Close, i.e. mid-shutdown.
		i.logger.Warn("price points rejected by closed buffer",
			"item", item.Name, "dropped", dropped)
	}

	i.refreshCache(ctx, item, entries, now)
	return res, nil
}

// snapshotEntries converts upstream orders, dropping hidden listings,
// entries stale beyond the configured age, and malformed orders. The
// upstream last_update doubles as the observation timestamp so an
// unchanged order re-fetched next cycle reconciles as a no-op.
func (i *Ingestor) snapshotEntries(item model.Item, orders []api.APIOrder, now time.Time) []model.OrderSnapshotEntry {
	entries := make([]model.OrderSnapshotEntry, 0, len(orders))
	for _, o := range orders {
		if !o.Visible {
			continue
		}
		observedAt := now
		if updated, err := o.LastUpdateTime(); err != nil {
			i.logger.Debug("unparseable last_update, using fetch time",
				"item", item.Name, "order", o.ID, "error", err)
		} else if !updated.IsZero() {
			if i.cfg.StaleOrderAge > 0 && now.Sub(updated) > i.cfg.StaleOrderAge {
				continue
			}
			observedAt = updated
		}
		entry, err := o.ToSnapshotEntry(item.ID, observedAt)
		if err != nil {
			i.logger.Debug("dropping malformed order", "item", item.Name, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// refreshCache writes the item's best prices to redis. Failures only log;
// the cache is advisory.
func (i *Ingestor) refreshCache(ctx context.Context, item model.Item, entries []model.OrderSnapshotEntry, now time.Time) {
	lp := cache.LatestPrice{Item: item.Name, UpdatedAt: now}
	for _, e := range entries {
		switch e.Side {
		case model.SideSell:
			if lp.SellCount == 0 || e.Price < lp.BestSell {
				lp.BestSell = e.Price
			}
			lp.SellCount++
		case model.SideBuy:
			if lp.BuyCount == 0 || e.Price > lp.BestBuy {
				lp.BestBuy = e.Price
			}
			lp.BuyCount++
		}
	}
	if err := i.cache.SetLatestPrice(ctx, lp); err != nil {
		i.logger.Warn("latest-price cache refresh failed", "item", item.Name, "error", err)
	}
}
