package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/tmoretti/wfm-data/internal/storage"
)

func TestSchedulerRunsRepeatedCycles(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	itemID, _ := store.UpsertItem(context.Background(), "ash_prime_set")

	fetcher := &fakeFetcher{}
	ing, _ := newTestIngestor(fetcher, staticItems{{ID: itemID, Name: "ash_prime_set"}}, store, now)

	sched := NewScheduler(SchedulerConfig{Interval: 10 * time.Millisecond}, ing, store, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fetcher.mu.Lock()
		calls := fetcher.calls
		fetcher.mu.Unlock()
		if calls >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	fetcher.mu.Lock()
	calls := fetcher.calls
	fetcher.mu.Unlock()
	if calls < 3 {
		t.Errorf("fetcher called %d times, want repeated cycles", calls)
	}
}
