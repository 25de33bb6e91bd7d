// Package ratelimit bounds the aggregate request rate against the upstream
// API. A single Limiter instance is shared by every fetcher goroutine and is
// the sole throttling authority for the pipeline.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCallsPerSecond is the upstream-safe request rate.
const DefaultCallsPerSecond = 2.0

// Limiter admits callers no faster than the configured rate. Capacity is a
// token bucket with burst 1: two concurrent acquirers can never both be
// admitted inside the same 1/callsPerSecond interval. Queued callers are
// admitted in arrival order.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter admitting callsPerSecond requests per second.
// Non-positive values fall back to DefaultCallsPerSecond.
func New(callsPerSecond float64) *Limiter {
	if callsPerSecond <= 0 {
		callsPerSecond = DefaultCallsPerSecond
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(callsPerSecond), 1)}
}

// Acquire blocks until one unit of capacity is reserved for the caller.
// It never fails on its own; the only error is ctx being canceled while
// waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Interval returns the minimum spacing between admissions.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.bucket.Limit()))
}
