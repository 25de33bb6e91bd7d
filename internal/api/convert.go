package api

import (
	"fmt"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
)

// LastUpdateTime parses the order's upstream last_update timestamp.
// Returns the zero time when the field is absent.
func (o APIOrder) LastUpdateTime() (time.Time, error) {
	if o.LastUpdate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, o.LastUpdate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last_update %q: %w", o.LastUpdate, err)
	}
	return t.UTC(), nil
}

// ToSnapshotEntry converts an upstream order to the pipeline's snapshot
// representation. observedAt is the fetch instant for the whole snapshot.
func (o APIOrder) ToSnapshotEntry(itemID int64, observedAt time.Time) (model.OrderSnapshotEntry, error) {
	side := model.Side(o.OrderType)
	if !side.Valid() {
		return model.OrderSnapshotEntry{}, fmt.Errorf("order %s: unknown order_type %q", o.ID, o.OrderType)
	}
	if o.ID == "" {
		return model.OrderSnapshotEntry{}, fmt.Errorf("order without id for item %d", itemID)
	}
	if o.Quantity < 0 || o.Platinum < 0 {
		return model.OrderSnapshotEntry{}, fmt.Errorf("order %s: negative quantity or price", o.ID)
	}

	return model.OrderSnapshotEntry{
		OrderID:    o.ID,
		ItemID:     itemID,
		UserID:     o.User.ID,
		Price:      o.Platinum,
		Quantity:   o.Quantity,
		Side:       side,
		ObservedAt: observedAt.UTC(),
	}, nil
}
