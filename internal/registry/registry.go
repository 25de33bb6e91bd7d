// Package registry discovers and maintains the set of tracked items. An
// initial blocking sync seeds the catalog; a background loop reconciles
// periodically so newly listed items get picked up without a restart.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmoretti/wfm-data/internal/api"
	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/storage"
)

// Config holds item discovery configuration.
type Config struct {
	ReconcileInterval time.Duration
	// Tag restricts tracking to set items carrying this tag in their
	// item detail. Empty tracks every set item.
	Tag string
}

// DefaultConfig returns the defaults: warframe sets, hourly reconcile.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: time.Hour,
		Tag:               "warframe",
	}
}

// Registry tracks the items the ingestor should fetch.
type Registry struct {
	cfg    Config
	client *api.Client
	store  storage.Store
	logger *slog.Logger

	mu    sync.RWMutex
	items map[string]model.Item // by url_name

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a registry backed by client and store.
func New(cfg Config, client *api.Client, store storage.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger,
		items:  make(map[string]model.Item),
	}
}

// Start runs the initial blocking sync, then launches the reconcile loop.
func (r *Registry) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.sync(r.ctx); err != nil {
		r.cancel()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconcileLoop(r.ctx)
	}()

	r.logger.Info("item registry started", "tracked_items", r.Count())
	return nil
}

// Stop cancels the loop and waits for it, bounded by ctx.
func (r *Registry) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("item registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrackedItems returns the tracked items ordered by id.
func (r *Registry) TrackedItems() []model.Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]model.Item, 0, len(r.items))
	for _, it := range r.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// Count returns the number of tracked items.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.sync(ctx); err != nil {
				r.logger.Error("registry reconcile failed", "error", err)
			}
		}
	}
}

// sync lists the upstream catalog and adopts qualifying set items that are
// not tracked yet. Per-item detail failures skip the item; it is retried
// on the next pass.
func (r *Registry) sync(ctx context.Context) error {
	start := time.Now()
	catalog, err := r.client.GetItems(ctx)
	if err != nil {
		return err
	}

	adopted := 0
	for _, item := range catalog {
		if !strings.HasSuffix(item.URLName, "_set") {
			continue
		}
		if r.tracked(item.URLName) {
			continue
		}
		ok, err := r.qualifies(ctx, item.URLName)
		if err != nil {
			r.logger.Warn("item detail fetch failed, skipping",
				"item", item.URLName, "error", err)
			continue
		}
		if !ok {
			continue
		}
		id, err := r.store.UpsertItem(ctx, item.URLName)
		if err != nil {
			r.logger.Error("item upsert failed", "item", item.URLName, "error", err)
			continue
		}
		r.mu.Lock()
		r.items[item.URLName] = model.Item{ID: id, Name: item.URLName}
		r.mu.Unlock()
		adopted++
	}

	if adopted > 0 {
		r.logger.Info("registry sync adopted items",
			"adopted", adopted,
			"tracked", r.Count(),
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("registry sync complete",
			"tracked", r.Count(),
			"duration", time.Since(start),
		)
	}
	return nil
}

func (r *Registry) tracked(urlName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[urlName]
	return ok
}

// qualifies fetches the item detail and checks its set members for the
// configured tag.
func (r *Registry) qualifies(ctx context.Context, urlName string) (bool, error) {
	if r.cfg.Tag == "" {
		return true, nil
	}
	detail, err := r.client.GetItemDetail(ctx, urlName)
	if err != nil {
		return false, err
	}
	for _, member := range detail.ItemsInSet {
		for _, tag := range member.Tags {
			if tag == r.cfg.Tag {
				return true, nil
			}
		}
	}
	return false, nil
}
