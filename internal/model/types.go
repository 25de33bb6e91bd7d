package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// Side is the market side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known market side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus is the lifecycle state of a tracked order. It is derived by
// reconciliation and never set directly by callers.
type OrderStatus string

const (
	// StatusActive means the order was present in the most recent snapshot.
	StatusActive OrderStatus = "active"
	// StatusFulfilled means the order disappeared with its quantity trending
	// down, suggesting it was bought out.
	StatusFulfilled OrderStatus = "fulfilled"
	// StatusDead means the order disappeared without evidence of depletion
	// (withdrawn or expired).
	StatusDead OrderStatus = "dead"
)

// Terminal reports whether the status is a final lifecycle state.
func (s OrderStatus) Terminal() bool {
	return s == StatusFulfilled || s == StatusDead
}

// ListingType distinguishes a fresh listing from a reappearing one.
type ListingType string

const (
	ListingNew    ListingType = "new"
	ListingRelist ListingType = "relist"
)

// TimeRange selects the analysis window.
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)

// Duration returns the window length for the range.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case RangeDay:
		return 24 * time.Hour
	case RangeWeek:
		return 7 * 24 * time.Hour
	case RangeMonth:
		return 30 * 24 * time.Hour
	case RangeYear:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Valid reports whether r is a recognized range.
func (r TimeRange) Valid() bool {
	switch r {
	case RangeDay, RangeWeek, RangeMonth, RangeYear:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Item is a tradable item tracked by the pipeline. Created once when first
// observed, immutable afterward. Name is the upstream url_name and is unique.
type Item struct {
	ID   int64
	Name string
}

// -----------------------------------------------------------------------------
// Snapshot and Lifecycle Types
// -----------------------------------------------------------------------------

// OrderSnapshotEntry is one currently-listed order as observed at fetch time.
// Entries are ephemeral: they feed reconciliation and are not stored directly.
type OrderSnapshotEntry struct {
	OrderID    string
	ItemID     int64
	UserID     string
	Price      float64
	Quantity   int
	Side       Side
	ObservedAt time.Time
}

// QuantityHistoryCap bounds the recent-quantity observations kept on an
// OrderRecord. The depletion heuristic only needs the tail of the series.
const QuantityHistoryCap = 4

// OrderRecord is the durable lifecycle entity for one upstream order,
// keyed by OrderID.
//
// Invariants maintained by reconciliation:
//   - FirstSeen <= LastSeen
//   - PriceChangeCount increments only when an observed price differs from
//     the previously recorded FinalPrice
//   - Status is derived from observations, never assigned by callers
type OrderRecord struct {
	OrderID      string
	ItemID       int64
	UserID       string
	Side         Side
	InitialPrice float64
	FinalPrice   float64
	Quantity     int

	FirstSeen          time.Time
	LastSeen           time.Time
	VisibilityDuration time.Duration
	PriceChangeCount   int

	ListingType ListingType
	Status      OrderStatus

	// RecentQuantities holds the last few observed quantities, oldest first,
	// capped at QuantityHistoryCap. Used to decide fulfilled vs dead when the
	// order disappears.
	RecentQuantities []int
}

// PricePoint is an immutable append-only observation, one per snapshot entry.
// Duplicates are collapsed on (ItemID, RecordedAt, Price, Side).
type PricePoint struct {
	ItemID     int64
	RecordedAt time.Time
	Price      float64
	Quantity   int
	Side       Side
}

// -----------------------------------------------------------------------------
// Ingestion Outcome Types
// -----------------------------------------------------------------------------

// ItemFailure records one item's failure within an ingestion cycle.
type ItemFailure struct {
	Item string
	Err  string
}

// CycleResult is the structured outcome of one ingestion cycle. Per-item
// failures are collected here; they never abort sibling items.
type CycleResult struct {
	CycleID        uuid.UUID
	Started        time.Time
	Duration       time.Duration
	ItemsSucceeded int
	ItemsFailed    int
	Failures       []ItemFailure

	OrdersCreated   int
	OrdersUpdated   int
	PriceChanges    int
	OrdersFulfilled int
	OrdersDead      int
	PricePoints     int
}

// -----------------------------------------------------------------------------
// Analytics Types
// -----------------------------------------------------------------------------

// DailyTrend summarizes one day's worth of observed prices for an item.
type DailyTrend struct {
	Date          time.Time
	AvgPrice      float64
	MedianPrice   float64
	MinPrice      float64
	MaxPrice      float64
	Volatility    float64
	Volume        int
	MarketSpread  float64
	BestBuyPrice  float64
	BestSellPrice float64
}

// TrendDirection is the sign of the fitted price slope.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// MarketTrend describes the fitted direction of a price series.
type MarketTrend struct {
	Direction TrendDirection
	// Strength is the normalized slope magnitude, bounded to [0, 1].
	Strength float64
	// Duration is the length of the current monotonic run.
	Duration time.Duration
}

// MarketAnalysis is the computed, non-persisted view of an item's market
// over one time range. A nil MarketAnalysis means the window held too few
// data points; that is a legitimate outcome, not an error.
type MarketAnalysis struct {
	ItemID    int64
	Range     TimeRange
	Generated time.Time

	PriceTrends       []DailyTrend
	Trend             MarketTrend
	MovingAvg7d       float64
	MovingAvg30d      float64
	AvgDailyVolume    float64
	PriceVolatility   float64
	MarketSpreadTrend []float64
	BestBuyTime       string
	BestSellTime      string
	DemandStrength    float64
	SeasonalPatterns  map[string]float64
	Outliers          []PricePoint
	RapidChanges      []time.Time
}
