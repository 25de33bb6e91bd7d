// Package cache is an optional Redis layer for the hot read paths: the
// latest per-item price summary written each ingestion cycle and recent
// analysis results. A nil *Cache is a valid no-op, so redis stays optional.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmoretti/wfm-data/internal/model"
)

// LatestPrice is the cycle-fresh summary of one item's market.
type LatestPrice struct {
	Item      string    `json:"item"`
	BestSell  float64   `json:"best_sell"`
	BestBuy   float64   `json:"best_buy"`
	SellCount int       `json:"sell_count"`
	BuyCount  int       `json:"buy_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache wraps a redis client. All methods are nil-safe.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect dials redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Close releases the redis connection. Safe on nil.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// SetLatestPrice stores the item's price summary under its own key.
func (c *Cache) SetLatestPrice(ctx context.Context, lp LatestPrice) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(lp)
	if err != nil {
		return fmt.Errorf("marshal latest price: %w", err)
	}
	key := "wfm:latest:" + lp.Item
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set latest price: %w", err)
	}
	return nil
}

// GetLatestPrice reads an item's summary. A cache miss returns (nil, nil).
func (c *Cache) GetLatestPrice(ctx context.Context, item string) (*LatestPrice, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, "wfm:latest:"+item).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest price: %w", err)
	}
	var lp LatestPrice
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, fmt.Errorf("unmarshal latest price: %w", err)
	}
	return &lp, nil
}

func analysisKey(itemID int64, r model.TimeRange) string {
	return fmt.Sprintf("wfm:analysis:%d:%s", itemID, r)
}

// SetAnalysis caches a computed analysis for its item and range.
func (c *Cache) SetAnalysis(ctx context.Context, a *model.MarketAnalysis) error {
	if c == nil || c.client == nil || a == nil {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := c.client.Set(ctx, analysisKey(a.ItemID, a.Range), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set analysis: %w", err)
	}
	return nil
}

// GetAnalysis reads a cached analysis. A cache miss returns (nil, nil).
func (c *Cache) GetAnalysis(ctx context.Context, itemID int64, r model.TimeRange) (*model.MarketAnalysis, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, analysisKey(itemID, r)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	var a model.MarketAnalysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return &a, nil
}
