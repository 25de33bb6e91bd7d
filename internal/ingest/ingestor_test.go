package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tmoretti/wfm-data/internal/api"
	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/queue"
	"github.com/tmoretti/wfm-data/internal/reconcile"
	"github.com/tmoretti/wfm-data/internal/storage"
)

type staticItems []model.Item

func (s staticItems) TrackedItems() []model.Item { return s }

type fakeFetcher struct {
	mu     sync.Mutex
	orders map[string][]api.APIOrder
	errs   map[string]error
	gate   chan struct{} // when set, GetItemOrders blocks until closed
	calls  int
}

func (f *fakeFetcher) GetItemOrders(ctx context.Context, urlName string) ([]api.APIOrder, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	err := f.errs[urlName]
	orders := f.orders[urlName]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func sellOrder(id string, price float64, qty int, lastUpdate time.Time) api.APIOrder {
	return api.APIOrder{
		ID:         id,
		Platinum:   price,
		Quantity:   qty,
		OrderType:  "sell",
		Visible:    true,
		LastUpdate: lastUpdate.Format(time.RFC3339),
		User:       api.APIUser{ID: "user-" + id},
	}
}

func testConfig() Config {
	return Config{
		Concurrency:   4,
		ItemTimeout:   5 * time.Second,
		StaleOrderAge: 30 * 24 * time.Hour,
		Reconcile: reconcile.Config{
			RelistWindow:             7 * 24 * time.Hour,
			RelistPriceBand:          0.1,
			DepletionMinObservations: 2,
		},
	}
}

func newTestIngestor(fetcher *fakeFetcher, items staticItems, store storage.Store, now time.Time) (*Ingestor, *queue.Buffer[model.PricePoint]) {
	buf := queue.New[model.PricePoint](16)
	ing := New(testConfig(), fetcher, items, store, buf, nil, nil)
	ing.now = func() time.Time { return now }
	return ing, buf
}

func TestRunCycleCreatesRecords(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")

	fetcher := &fakeFetcher{orders: map[string][]api.APIOrder{
		"ash_prime_set": {
			sellOrder("o1", 100, 3, now.Add(-time.Hour)),
			sellOrder("o2", 110, 1, now.Add(-2*time.Hour)),
		},
	}}
	ing, buf := newTestIngestor(fetcher, staticItems{{ID: itemID, Name: "ash_prime_set"}}, store, now)

	result, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.ItemsSucceeded != 1 || result.ItemsFailed != 0 {
		t.Errorf("outcome = %d/%d, want 1 succeeded, 0 failed",
			result.ItemsSucceeded, result.ItemsFailed)
	}
	if result.OrdersCreated != 2 {
		t.Errorf("OrdersCreated = %d, want 2", result.OrdersCreated)
	}
	if result.PricePoints != 2 || buf.Len() != 2 {
		t.Errorf("price points = %d (buffered %d), want 2", result.PricePoints, buf.Len())
	}

	active, err := store.ActiveOrderRecords(context.Background(), itemID)
	if err != nil {
		t.Fatalf("ActiveOrderRecords: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("stored %d active records, want 2", len(active))
	}
}

func TestRunCycleIdempotentAcrossCycles(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")

	fetcher := &fakeFetcher{orders: map[string][]api.APIOrder{
		"ash_prime_set": {sellOrder("o1", 100, 3, now.Add(-time.Hour))},
	}}
	ing, buf := newTestIngestor(fetcher, staticItems{{ID: itemID, Name: "ash_prime_set"}}, store, now)

	if _, err := ing.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	second, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	// Same upstream last_update, same price: cycle two observes nothing new.
	if second.OrdersCreated != 0 || second.OrdersUpdated != 0 || second.PricePoints != 0 {
		t.Errorf("second cycle = %+v, want no new observations", second)
	}
	if buf.Len() != 1 {
		t.Errorf("buffered %d points after two cycles, want 1", buf.Len())
	}
}

func TestPerItemFailureIsolation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	goodID, _ := store.UpsertItem(context.Background(), "ash_prime_set")
	badID, _ := store.UpsertItem(context.Background(), "ember_prime_set")

	fetcher := &fakeFetcher{
		orders: map[string][]api.APIOrder{
			"ash_prime_set": {sellOrder("o1", 100, 1, now.Add(-time.Hour))},
		},
		errs: map[string]error{
			"ember_prime_set": errors.New("upstream exploded"),
		},
	}
	ing, _ := newTestIngestor(fetcher, staticItems{
		{ID: goodID, Name: "ash_prime_set"},
		{ID: badID, Name: "ember_prime_set"},
	}, store, now)

	result, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.ItemsSucceeded != 1 || result.ItemsFailed != 1 {
		t.Errorf("outcome = %d/%d, want 1 succeeded, 1 failed",
			result.ItemsSucceeded, result.ItemsFailed)
	}
	if len(result.Failures) != 1 || result.Failures[0].Item != "ember_prime_set" {
		t.Errorf("failures = %v, want ember_prime_set only", result.Failures)
	}
	if result.OrdersCreated != 1 {
		t.Errorf("OrdersCreated = %d, the healthy item should still ingest", result.OrdersCreated)
	}
}

func TestStaleAndHiddenOrdersDropped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")

	hidden := sellOrder("hidden", 100, 1, now.Add(-time.Hour))
	hidden.Visible = false
	stale := sellOrder("stale", 100, 1, now.Add(-31*24*time.Hour))
	fresh := sellOrder("fresh", 100, 1, now.Add(-time.Hour))

	fetcher := &fakeFetcher{orders: map[string][]api.APIOrder{
		"ash_prime_set": {hidden, stale, fresh},
	}}
	ing, _ := newTestIngestor(fetcher, staticItems{{ID: itemID, Name: "ash_prime_set"}}, store, now)

	result, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.OrdersCreated != 1 {
		t.Errorf("OrdersCreated = %d, want only the fresh visible order", result.OrdersCreated)
	}
	active, _ := store.ActiveOrderRecords(context.Background(), itemID)
	if len(active) != 1 || active[0].OrderID != "fresh" {
		t.Errorf("active records = %v, want just the fresh order", active)
	}
}

func TestClosedSinkDoesNotAbortCycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")

	fetcher := &fakeFetcher{orders: map[string][]api.APIOrder{
		"ash_prime_set": {sellOrder("o1", 100, 3, now.Add(-time.Hour))},
	}}
	ing, buf := newTestIngestor(fetcher, staticItems{{ID: itemID, Name: "ash_prime_set"}}, store, now)
	buf.Close()

	result, err := ing.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.ItemsSucceeded != 1 || result.ItemsFailed != 0 {
		t.Errorf("outcome = %d/%d, a closed sink must not fail the item",
			result.ItemsSucceeded, result.ItemsFailed)
	}
	if buf.Len() != 0 {
		t.Errorf("buffered %d points, closed buffer should reject all", buf.Len())
	}

	// Storage still recorded the observation.
	active, _ := store.ActiveOrderRecords(context.Background(), itemID)
	if len(active) != 1 {
		t.Errorf("stored %d active records, want 1", len(active))
	}
}

func TestCyclesSerialized(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")

	gate := make(chan struct{})
	fetcher := &fakeFetcher{gate: gate}
	ing, _ := newTestIngestor(fetcher, staticItems{{ID: itemID, Name: "ash_prime_set"}}, store, now)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := ing.RunCycle(context.Background())
		done <- err
	}()
	<-started
	// Wait until the blocked fetch is actually in flight.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fetcher.mu.Lock()
		inFlight := fetcher.calls > 0
		fetcher.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := ing.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("concurrent RunCycle error = %v, want ErrCycleInProgress", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}

func TestLifecycleAcrossCycles(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")
	items := staticItems{{ID: itemID, Name: "ash_prime_set"}}

	fetcher := &fakeFetcher{orders: map[string][]api.APIOrder{
		"ash_prime_set": {sellOrder("o1", 100, 3, t0)},
	}}
	buf := queue.New[model.PricePoint](16)
	ing := New(testConfig(), fetcher, items, store, buf, nil, nil)

	steps := []struct {
		now    time.Time
		orders []api.APIOrder
	}{
		{t0.Add(time.Minute), []api.APIOrder{sellOrder("o1", 100, 3, t0)}},
		{t0.Add(10 * time.Minute), []api.APIOrder{sellOrder("o1", 90, 2, t0.Add(9*time.Minute))}},
		{t0.Add(20 * time.Minute), nil},
	}
	for n, step := range steps {
		ing.now = func() time.Time { return step.now }
		fetcher.mu.Lock()
		fetcher.orders["ash_prime_set"] = step.orders
		fetcher.mu.Unlock()
		if _, err := ing.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", n+1, err)
		}
	}

	records, err := store.QueryOrderRecords(context.Background(), itemID, storage.OrderFilter{})
	if err != nil {
		t.Fatalf("QueryOrderRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Status != model.StatusFulfilled {
		t.Errorf("status = %v, want fulfilled (quantity trended down)", rec.Status)
	}
	if rec.PriceChangeCount != 1 || rec.FinalPrice != 90 {
		t.Errorf("price history = %d changes, final %v; want 1 change ending at 90",
			rec.PriceChangeCount, rec.FinalPrice)
	}
}
