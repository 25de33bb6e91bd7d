// Package model defines shared data types used across the tracker.
//
// Conventions:
//   - Prices: platinum as float64 (the upstream API reports whole platinum,
//     but averages and analytics produce fractional values)
//   - Timestamps: time.Time in UTC
//   - IDs: int64 for item rows, string for upstream order and user IDs
package model
