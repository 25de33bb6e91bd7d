// Package database provides connection pool management for PostgreSQL.
//
// The tracker keeps all durable state in one database: items, order
// lifecycle history, and the append-only price-point series.
package database
