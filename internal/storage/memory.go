package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
)

type priceKey struct {
	itemID     int64
	recordedAt time.Time
	price      float64
	side       model.Side
}

// Memory is an in-process Store used by tests and the dry-run mode. It
// applies the same dedup rule as the Postgres implementation.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	itemIDs map[string]int64
	items   map[int64]model.Item
	orders  map[string]model.OrderRecord
	seen    map[priceKey]struct{}
	prices  []model.PricePoint
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		itemIDs: make(map[string]int64),
		items:   make(map[int64]model.Item),
		orders:  make(map[string]model.OrderRecord),
		seen:    make(map[priceKey]struct{}),
	}
}

func (m *Memory) UpsertItem(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.itemIDs[name]; ok {
		return id, nil
	}
	m.nextID++
	m.itemIDs[name] = m.nextID
	m.items[m.nextID] = model.Item{ID: m.nextID, Name: name}
	return m.nextID, nil
}

func (m *Memory) Items(_ context.Context) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]model.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *Memory) UpsertOrderRecord(_ context.Context, rec model.OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[rec.OrderID] = rec
	return nil
}

func (m *Memory) ActiveOrderRecords(_ context.Context, itemID int64) ([]model.OrderRecord, error) {
	return m.selectOrders(itemID, func(rec model.OrderRecord) bool {
		return rec.Status == model.StatusActive
	})
}

func (m *Memory) TerminalOrderRecordsSince(_ context.Context, itemID int64, since time.Time) ([]model.OrderRecord, error) {
	return m.selectOrders(itemID, func(rec model.OrderRecord) bool {
		return rec.Status.Terminal() && !rec.LastSeen.Before(since)
	})
}

func (m *Memory) selectOrders(itemID int64, keep func(model.OrderRecord) bool) ([]model.OrderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []model.OrderRecord
	for _, rec := range m.orders {
		if rec.ItemID == itemID && keep(rec) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeen.Before(records[j].FirstSeen)
	})
	return records, nil
}

func (m *Memory) AppendPricePoint(ctx context.Context, p model.PricePoint) error {
	_, err := m.AppendPricePoints(ctx, []model.PricePoint{p})
	return err
}

func (m *Memory) AppendPricePoints(_ context.Context, points []model.PricePoint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, p := range points {
		key := priceKey{p.ItemID, p.RecordedAt, p.Price, p.Side}
		if _, dup := m.seen[key]; dup {
			continue
		}
		m.seen[key] = struct{}{}
		m.prices = append(m.prices, p)
		inserted++
	}
	return inserted, nil
}

func (m *Memory) QueryPricePoints(_ context.Context, itemID int64, from time.Time) ([]model.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var points []model.PricePoint
	for _, p := range m.prices {
		if p.ItemID == itemID && !p.RecordedAt.Before(from) {
			points = append(points, p)
		}
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})
	return points, nil
}

func (m *Memory) QueryOrderRecords(_ context.Context, itemID int64, f OrderFilter) ([]model.OrderRecord, error) {
	return m.selectOrders(itemID, f.Matches)
}

func (m *Memory) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	kept := m.prices[:0]
	for _, p := range m.prices {
		if p.RecordedAt.Before(cutoff) {
			delete(m.seen, priceKey{p.ItemID, p.RecordedAt, p.Price, p.Side})
			removed++
			continue
		}
		kept = append(kept, p)
	}
	m.prices = kept
	for id, rec := range m.orders {
		if rec.Status.Terminal() && rec.LastSeen.Before(cutoff) {
			delete(m.orders, id)
			removed++
		}
	}
	return removed, nil
}
