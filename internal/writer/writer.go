// Package writer drains buffered price points into storage in batches.
// One batch insert per flush keeps the database round-trips proportional
// to flush frequency rather than observation volume.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tmoretti/wfm-data/internal/metrics"
	"github.com/tmoretti/wfm-data/internal/model"
	"github.com/tmoretti/wfm-data/internal/queue"
	"github.com/tmoretti/wfm-data/internal/storage"
)

// Config controls batching behavior.
type Config struct {
	// BatchSize triggers an immediate flush once this many points are
	// pending.
	BatchSize int
	// FlushInterval flushes whatever is pending on a timer so quiet
	// periods still reach the database promptly.
	FlushInterval time.Duration
}

// Stats counts writer activity since Start.
type Stats struct {
	Inserts    int64
	Duplicates int64
	Flushes    int64
	Errors     int64
}

// PricePointWriter consumes price points from the hand-off buffer and
// batch-appends them to the store.
type PricePointWriter struct {
	cfg    Config
	input  *queue.Buffer[model.PricePoint]
	store  storage.Store
	logger *slog.Logger

	pending []model.PricePoint
	mu      sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticker *time.Ticker
}

// NewPricePointWriter creates a writer reading from input.
func NewPricePointWriter(cfg Config, input *queue.Buffer[model.PricePoint], store storage.Store, logger *slog.Logger) *PricePointWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricePointWriter{
		cfg:     cfg,
		input:   input,
		store:   store,
		logger:  logger,
		pending: make([]model.PricePoint, 0, cfg.BatchSize),
	}
}

// Start launches the consume and flush goroutines.
func (w *PricePointWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.ticker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("price writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the loops, then flushes everything still pending. The
// context bounds how long to wait for the goroutines.
func (w *PricePointWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.ticker != nil {
		w.ticker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("price writer stop timed out")
	}

	// Whatever landed in the buffer before Close still belongs to us.
	for _, p := range w.input.Drain(0) {
		w.append(p)
	}
	w.flush(context.WithoutCancel(w.ctx))

	w.logger.Info("price writer stopped")
	return nil
}

// Stats returns a snapshot of writer counters.
func (w *PricePointWriter) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *PricePointWriter) consumeLoop() {
	defer w.wg.Done()
	for {
		p, ok := w.input.TryPop()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		if w.append(p) {
			w.flush(w.ctx)
		}
	}
}

func (w *PricePointWriter) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.ticker.C:
			w.flush(w.ctx)
		}
	}
}

// append adds a point and reports whether the batch is full.
func (w *PricePointWriter) append(p model.PricePoint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, p)
	return len(w.pending) >= w.cfg.BatchSize
}

func (w *PricePointWriter) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make([]model.PricePoint, 0, w.cfg.BatchSize)
	w.mu.Unlock()

	start := time.Now()
	inserted, err := w.store.AppendPricePoints(ctx, batch)
	elapsed := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.Errors++
		w.logger.Error("price batch insert failed", "error", err, "count", len(batch))
		return
	}
	w.stats.Inserts += int64(inserted)
	w.stats.Duplicates += int64(len(batch) - inserted)
	w.stats.Flushes++

	metrics.WriterBatchSize.Observe(float64(len(batch)))
	metrics.WriterFlushSeconds.Observe(elapsed.Seconds())

	w.logger.Debug("flushed price points",
		"count", len(batch),
		"duplicates", len(batch)-inserted,
		"duration", elapsed,
	)
}
