// Package config loads and validates the tracker's YAML configuration.
package config

import "time"

// TrackerConfig is the root configuration for a tracker instance.
type TrackerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Writers   WritersConfig   `yaml:"writers"`
	Retention RetentionConfig `yaml:"retention"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this tracker.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds upstream API settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Platform       string        `yaml:"platform"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	CallsPerSecond float64       `yaml:"calls_per_second"`
}

// DatabaseConfig holds the Postgres connection for durable history.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds the optional latest-price cache. An empty Addr
// disables caching.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// IngestConfig holds ingestion cycle settings.
type IngestConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Concurrency   int           `yaml:"concurrency"`
	ItemTimeout   time.Duration `yaml:"item_timeout"`
	StaleOrderAge time.Duration `yaml:"stale_order_age"`
}

// ReconcileConfig holds lifecycle heuristics.
type ReconcileConfig struct {
	RelistWindow             time.Duration `yaml:"relist_window"`
	RelistPriceBand          float64       `yaml:"relist_price_band"`
	DepletionMinObservations int           `yaml:"depletion_min_observations"`
}

// AnalyticsConfig holds analysis thresholds.
type AnalyticsConfig struct {
	OutlierThreshold     float64 `yaml:"outlier_threshold"`
	PriceChangeThreshold float64 `yaml:"price_change_threshold"`
	MinDataPoints        int     `yaml:"min_data_points"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// RetentionConfig holds history retention settings.
type RetentionConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// MetricsConfig holds the metrics/health HTTP server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
