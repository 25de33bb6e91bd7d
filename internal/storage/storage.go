// Package storage persists the order lifecycle history and the append-only
// price-point series. The pipeline depends only on the Store interface;
// Postgres is the production engine and Memory backs tests.
package storage

import (
	"context"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
)

// OrderFilter narrows a QueryOrderRecords call. Zero values mean "any".
type OrderFilter struct {
	Status model.OrderStatus
	Side   model.Side
	Since  time.Time
}

// Matches reports whether rec passes the filter.
func (f OrderFilter) Matches(rec model.OrderRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Side != "" && rec.Side != f.Side {
		return false
	}
	if !f.Since.IsZero() && rec.LastSeen.Before(f.Since) {
		return false
	}
	return true
}

// Store is the storage collaborator for the ingestion and analytics
// pipelines.
type Store interface {
	// UpsertItem creates the item on first observation and returns its id.
	// Items are unique by name and immutable once created.
	UpsertItem(ctx context.Context, name string) (int64, error)

	// Items returns all known items.
	Items(ctx context.Context) ([]model.Item, error)

	// UpsertOrderRecord inserts or replaces the lifecycle record keyed by
	// its OrderID.
	UpsertOrderRecord(ctx context.Context, rec model.OrderRecord) error

	// ActiveOrderRecords returns the records with status active for an item.
	ActiveOrderRecords(ctx context.Context, itemID int64) ([]model.OrderRecord, error)

	// TerminalOrderRecordsSince returns fulfilled/dead records for an item
	// whose last_seen is at or after since. Used for relist detection.
	TerminalOrderRecordsSince(ctx context.Context, itemID int64, since time.Time) ([]model.OrderRecord, error)

	// AppendPricePoint records one observation. Duplicate observations on
	// (item, recorded_at, price, side) are collapsed silently.
	AppendPricePoint(ctx context.Context, p model.PricePoint) error

	// AppendPricePoints batch-appends observations and returns how many
	// were newly inserted (duplicates excluded).
	AppendPricePoints(ctx context.Context, points []model.PricePoint) (int, error)

	// QueryPricePoints returns the observations for an item recorded at or
	// after from, ordered by recorded_at ascending.
	QueryPricePoints(ctx context.Context, itemID int64, from time.Time) ([]model.PricePoint, error)

	// QueryOrderRecords returns an item's lifecycle records passing the
	// filter.
	QueryOrderRecords(ctx context.Context, itemID int64, f OrderFilter) ([]model.OrderRecord, error)

	// PurgeOlderThan deletes price points and terminal order records last
	// seen before cutoff. Returns the number of rows removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
