package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *TrackerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.CallsPerSecond <= 0 {
		return errors.New("api.calls_per_second must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RetryDelay < 0 {
		return errors.New("api.retry_delay must be >= 0")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Ingest.Concurrency < 1 {
		return errors.New("ingest.concurrency must be >= 1")
	}
	if c.Ingest.Interval <= 0 {
		return errors.New("ingest.interval must be > 0")
	}

	if c.Reconcile.RelistPriceBand < 0 || c.Reconcile.RelistPriceBand > 1 {
		return fmt.Errorf("reconcile.relist_price_band must be in [0, 1], got %g", c.Reconcile.RelistPriceBand)
	}
	if c.Reconcile.DepletionMinObservations < 2 {
		return errors.New("reconcile.depletion_min_observations must be >= 2")
	}

	if c.Analytics.OutlierThreshold <= 0 {
		return errors.New("analytics.outlier_threshold must be > 0")
	}
	if c.Analytics.PriceChangeThreshold <= 0 {
		return errors.New("analytics.price_change_threshold must be > 0")
	}
	if c.Analytics.MinDataPoints < 1 {
		return errors.New("analytics.min_data_points must be >= 1")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
