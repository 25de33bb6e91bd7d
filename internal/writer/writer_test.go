package writer

import (
	"context"
	"testing"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/queue"
	"github.com/tmoretti/wfm-data/internal/storage"
)

func testPoint(itemID int64, minute int, price float64) model.PricePoint {
	return model.PricePoint{
		ItemID:     itemID,
		RecordedAt: time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC),
		Price:      price,
		Quantity:   1,
		Side:       model.SideSell,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestFlushOnBatchSize(t *testing.T) {
	store := storage.NewMemory()
	buf := queue.New[model.PricePoint](8)
	w := NewPricePointWriter(Config{BatchSize: 3, FlushInterval: time.Hour}, buf, store, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	for i := 0; i < 3; i++ {
		buf.Push(testPoint(1, i, 100+float64(i)))
	}
	waitFor(t, func() bool { return w.Stats().Flushes >= 1 })

	points, err := store.QueryPricePoints(context.Background(), 1, time.Time{})
	if err != nil {
		t.Fatalf("QueryPricePoints: %v", err)
	}
	if len(points) != 3 {
		t.Errorf("stored %d points, want 3", len(points))
	}
}

func TestFlushOnInterval(t *testing.T) {
	store := storage.NewMemory()
	buf := queue.New[model.PricePoint](8)
	w := NewPricePointWriter(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, buf, store, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	buf.Push(testPoint(2, 0, 50))
	waitFor(t, func() bool { return w.Stats().Inserts == 1 })
}

func TestStopFlushesRemainder(t *testing.T) {
	store := storage.NewMemory()
	buf := queue.New[model.PricePoint](8)
	w := NewPricePointWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, buf, store, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	buf.Push(testPoint(3, 0, 10))
	buf.Push(testPoint(3, 1, 11))
	waitFor(t, func() bool { return buf.Len() == 0 })

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	points, err := store.QueryPricePoints(context.Background(), 3, time.Time{})
	if err != nil {
		t.Fatalf("QueryPricePoints: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("stored %d points after Stop, want 2", len(points))
	}
}

func TestDuplicatesCounted(t *testing.T) {
	store := storage.NewMemory()
	buf := queue.New[model.PricePoint](8)
	w := NewPricePointWriter(Config{BatchSize: 2, FlushInterval: time.Hour}, buf, store, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	p := testPoint(4, 0, 75)
	buf.Push(p)
	buf.Push(p)
	waitFor(t, func() bool { return w.Stats().Flushes >= 1 })

	stats := w.Stats()
	if stats.Inserts != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want 1 insert and 1 duplicate", stats)
	}
}
