// Package reconcile diffs an item's order snapshot against its stored
// lifecycle records. Apply is a pure function so the transition rules are
// testable without storage or network.
package reconcile

import (
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
)

// Config holds the reconciliation thresholds.
type Config struct {
	// RelistWindow bounds how far back a terminal record can be and still
	// mark a reappearing listing as a relist.
	RelistWindow time.Duration
	// RelistPriceBand is the relative price tolerance for relist matching,
	// e.g. 0.1 accepts prices within 10% of the terminal record's final
	// price.
	RelistPriceBand float64
	// DepletionMinObservations is the minimum number of recorded quantity
	// observations required before a disappearance can be classified as
	// fulfilled.
	DepletionMinObservations int
}

// Result is the outcome of applying one snapshot.
type Result struct {
	// Records holds every record that changed and must be upserted.
	Records []model.OrderRecord
	// PricePoints holds one observation per non-redundant snapshot entry.
	PricePoints []model.PricePoint

	Created             int
	Updated             int
	PriceChanges        int
	Fulfilled           int
	Dead                int
	InvariantViolations int
}

// Apply reconciles snapshot against the stored state for one item.
// prior holds the item's active records, recentTerminal its recently
// closed ones (for relist detection and violation checks). Re-applying an
// identical snapshot is a no-op: entries whose observed_at matches the
// stored last_seen with an unchanged price produce no updates and no
// price points.
func Apply(cfg Config, prior, recentTerminal []model.OrderRecord, snapshot []model.OrderSnapshotEntry, now time.Time) Result {
	active := make(map[string]model.OrderRecord, len(prior))
	for _, rec := range prior {
		active[rec.OrderID] = rec
	}
	terminal := make(map[string]model.OrderRecord, len(recentTerminal))
	for _, rec := range recentTerminal {
		terminal[rec.OrderID] = rec
	}

	var res Result
	seen := make(map[string]bool, len(snapshot))

	for _, entry := range snapshot {
		seen[entry.OrderID] = true

		if rec, ok := active[entry.OrderID]; ok {
			if entry.ObservedAt.Equal(rec.LastSeen) && entry.Price == rec.FinalPrice {
				continue // identical re-observation
			}
			if entry.Price != rec.FinalPrice {
				rec.FinalPrice = entry.Price
				rec.PriceChangeCount++
				res.PriceChanges++
			}
			rec.Quantity = entry.Quantity
			// The upstream may reorder observations; last_seen only moves
			// forward so first_seen <= last_seen always holds.
			if entry.ObservedAt.After(rec.LastSeen) {
				rec.LastSeen = entry.ObservedAt
				rec.VisibilityDuration = rec.LastSeen.Sub(rec.FirstSeen)
			}
			rec.RecentQuantities = pushQuantity(rec.RecentQuantities, entry.Quantity)
			active[entry.OrderID] = rec
			res.Records = append(res.Records, rec)
			res.PricePoints = append(res.PricePoints, entryPoint(entry))
			res.Updated++
			continue
		}

		// An id matching a closed record should never reappear. Restart it
		// as a fresh lifecycle and let the caller log the violation.
		if _, was := terminal[entry.OrderID]; was {
			res.InvariantViolations++
		}

		rec := newRecord(cfg, entry, recentTerminal, now)
		active[entry.OrderID] = rec
		res.Records = append(res.Records, rec)
		res.PricePoints = append(res.PricePoints, entryPoint(entry))
		res.Created++
	}

	// Disappeared orders close out. last_seen stays frozen at the final
	// observation.
	for _, rec := range prior {
		if seen[rec.OrderID] {
			continue
		}
		if depleted(cfg, rec.RecentQuantities) {
			rec.Status = model.StatusFulfilled
			res.Fulfilled++
		} else {
			rec.Status = model.StatusDead
			res.Dead++
		}
		res.Records = append(res.Records, rec)
	}

	return res
}

func newRecord(cfg Config, entry model.OrderSnapshotEntry, recentTerminal []model.OrderRecord, now time.Time) model.OrderRecord {
	listing := model.ListingNew
	if isRelist(cfg, entry, recentTerminal, now) {
		listing = model.ListingRelist
	}
	return model.OrderRecord{
		OrderID:          entry.OrderID,
		ItemID:           entry.ItemID,
		UserID:           entry.UserID,
		Side:             entry.Side,
		InitialPrice:     entry.Price,
		FinalPrice:       entry.Price,
		Quantity:         entry.Quantity,
		FirstSeen:        entry.ObservedAt,
		LastSeen:         entry.ObservedAt,
		ListingType:      listing,
		Status:           model.StatusActive,
		RecentQuantities: []int{entry.Quantity},
	}
}

// isRelist reports whether the same user closed out a similarly priced
// listing of this item inside the relist window.
func isRelist(cfg Config, entry model.OrderSnapshotEntry, recentTerminal []model.OrderRecord, now time.Time) bool {
	cutoff := now.Add(-cfg.RelistWindow)
	for _, rec := range recentTerminal {
		if rec.UserID != entry.UserID || rec.Side != entry.Side {
			continue
		}
		if rec.LastSeen.Before(cutoff) {
			continue
		}
		band := cfg.RelistPriceBand * rec.FinalPrice
		if diff := entry.Price - rec.FinalPrice; diff >= -band && diff <= band {
			return true
		}
	}
	return false
}

// depleted reports whether the quantity trend suggests the listing sold
// out: strictly decreasing across enough recorded observations.
func depleted(cfg Config, quantities []int) bool {
	minObs := cfg.DepletionMinObservations
	if minObs < 2 {
		minObs = 2
	}
	if len(quantities) < minObs {
		return false
	}
	for i := 1; i < len(quantities); i++ {
		if quantities[i] >= quantities[i-1] {
			return false
		}
	}
	return true
}

func pushQuantity(history []int, q int) []int {
	history = append(history, q)
	if len(history) > model.QuantityHistoryCap {
		history = history[len(history)-model.QuantityHistoryCap:]
	}
	return history
}

func entryPoint(entry model.OrderSnapshotEntry) model.PricePoint {
	return model.PricePoint{
		ItemID:     entry.ItemID,
		RecordedAt: entry.ObservedAt,
		Price:      entry.Price,
		Quantity:   entry.Quantity,
		Side:       entry.Side,
	}
}
