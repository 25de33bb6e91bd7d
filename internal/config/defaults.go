package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL        = "https://api.warframe.market/v1"
	DefaultPlatform       = "pc"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultCallsPerSecond = 2.0

	DefaultDBPort   = 5432
	DefaultDBSSL    = "prefer"
	DefaultMaxConns = 10
	DefaultMinConns = 2

	DefaultRedisTTL = 15 * time.Minute

	DefaultIngestInterval = 10 * time.Minute
	DefaultConcurrency    = 4
	DefaultItemTimeout    = 30 * time.Second
	DefaultStaleOrderAge  = 30 * 24 * time.Hour

	DefaultRelistWindow    = 7 * 24 * time.Hour
	DefaultRelistPriceBand = 0.1
	DefaultDepletionMinObs = 2

	DefaultOutlierThreshold     = 2.0
	DefaultPriceChangeThreshold = 0.1
	DefaultMinDataPoints        = 10

	DefaultBatchSize     = 500
	DefaultFlushInterval = 1 * time.Second
	DefaultBufferSize    = 4096

	DefaultRetentionMaxAge = 365 * 24 * time.Hour

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *TrackerConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Platform == "" {
		c.API.Platform = DefaultPlatform
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryDelay == 0 {
		c.API.RetryDelay = DefaultRetryDelay
	}
	if c.API.CallsPerSecond == 0 {
		c.API.CallsPerSecond = DefaultCallsPerSecond
	}

	// Database defaults
	db := &c.Database.Postgres
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSL
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}

	// Redis defaults
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}

	// Ingest defaults
	if c.Ingest.Interval == 0 {
		c.Ingest.Interval = DefaultIngestInterval
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = DefaultConcurrency
	}
	if c.Ingest.ItemTimeout == 0 {
		c.Ingest.ItemTimeout = DefaultItemTimeout
	}
	if c.Ingest.StaleOrderAge == 0 {
		c.Ingest.StaleOrderAge = DefaultStaleOrderAge
	}

	// Reconcile defaults
	if c.Reconcile.RelistWindow == 0 {
		c.Reconcile.RelistWindow = DefaultRelistWindow
	}
	if c.Reconcile.RelistPriceBand == 0 {
		c.Reconcile.RelistPriceBand = DefaultRelistPriceBand
	}
	if c.Reconcile.DepletionMinObservations == 0 {
		c.Reconcile.DepletionMinObservations = DefaultDepletionMinObs
	}

	// Analytics defaults
	if c.Analytics.OutlierThreshold == 0 {
		c.Analytics.OutlierThreshold = DefaultOutlierThreshold
	}
	if c.Analytics.PriceChangeThreshold == 0 {
		c.Analytics.PriceChangeThreshold = DefaultPriceChangeThreshold
	}
	if c.Analytics.MinDataPoints == 0 {
		c.Analytics.MinDataPoints = DefaultMinDataPoints
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Retention defaults
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = DefaultRetentionMaxAge
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
