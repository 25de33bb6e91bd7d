package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tmoretti/wfm-data/internal/model"
)

// The pipeline treats the cache as optional; every method must be a safe
// no-op on a nil receiver.
func TestNilCacheIsNoOp(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	if err := c.SetLatestPrice(ctx, LatestPrice{Item: "ash_prime_set", UpdatedAt: time.Now()}); err != nil {
		t.Errorf("SetLatestPrice on nil cache: %v", err)
	}
	lp, err := c.GetLatestPrice(ctx, "ash_prime_set")
	if err != nil || lp != nil {
		t.Errorf("GetLatestPrice on nil cache = %v, %v, want nil, nil", lp, err)
	}
	if err := c.SetAnalysis(ctx, &model.MarketAnalysis{ItemID: 1, Range: model.RangeWeek}); err != nil {
		t.Errorf("SetAnalysis on nil cache: %v", err)
	}
	a, err := c.GetAnalysis(ctx, 1, model.RangeWeek)
	if err != nil || a != nil {
		t.Errorf("GetAnalysis on nil cache = %v, %v, want nil, nil", a, err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil cache: %v", err)
	}
}
