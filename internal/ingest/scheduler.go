package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tmoretti/wfm-data/internal/storage"
)

// SchedulerConfig holds the cycle cadence and retention policy.
type SchedulerConfig struct {
	Interval time.Duration
	// RetentionMaxAge is how long price points and closed orders are kept.
	// Zero disables purging.
	RetentionMaxAge time.Duration
	// PurgeInterval is how often the retention purge runs.
	PurgeInterval time.Duration
}

// Scheduler drives the ingestor on a ticker and runs the periodic
// retention purge. A tick that arrives while a cycle is still running is
// skipped, keeping cycles serialized.
type Scheduler struct {
	cfg      SchedulerConfig
	ingestor *Ingestor
	store    storage.Store
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler around ingestor.
func NewScheduler(cfg SchedulerConfig, ingestor *Ingestor, store storage.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 24 * time.Hour
	}
	return &Scheduler{
		cfg:      cfg,
		ingestor: ingestor,
		store:    store,
		logger:   logger,
	}
}

// Start launches the cycle and purge loops. The first cycle runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.cycleLoop()

	if s.cfg.RetentionMaxAge > 0 {
		s.wg.Add(1)
		go s.purgeLoop()
	}

	s.logger.Info("ingestion scheduler started",
		"interval", s.cfg.Interval,
		"retention", s.cfg.RetentionMaxAge,
	)
	return nil
}

// Stop cancels the loops; a cycle in flight finishes its in-progress items.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("ingestion scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) cycleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runOnce()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	if _, err := s.ingestor.RunCycle(s.ctx); err != nil {
		switch {
		case errors.Is(err, ErrCycleInProgress):
			s.logger.Warn("previous cycle still running, tick skipped")
		case errors.Is(err, context.Canceled):
		default:
			s.logger.Error("ingestion cycle failed", "error", err)
		}
	}
}

func (s *Scheduler) purgeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.RetentionMaxAge)
			removed, err := s.store.PurgeOlderThan(s.ctx, cutoff)
			if err != nil {
				s.logger.Error("retention purge failed", "error", err)
				continue
			}
			s.logger.Info("retention purge complete",
				"cutoff", cutoff.Format(time.RFC3339),
				"removed", removed,
			)
		}
	}
}
