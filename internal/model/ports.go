package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the ingestor and query service from the concrete store
// (SQLite or in-memory) and from the optional Redis publisher.

// Order is the timestamp ordering of a query result.
type Order int

const (
	Descending Order = iota // newest first (default)
	Ascending
)

// QueryOptions bounds and orders a candle query. Limit <= 0 means unbounded.
type QueryOptions struct {
	Order Order
	Limit int
}

// CandleStore is durable keyed storage for candles.
// Implementations must be safe for one writer and many concurrent readers.
type CandleStore interface {
	// Upsert inserts or replaces the candle identified by (resolution, timestamp).
	Upsert(ctx context.Context, c Candle) error

	// UpsertBatch upserts all candles or none of them.
	UpsertBatch(ctx context.Context, candles []Candle) error

	// Query returns candles of one resolution ordered by timestamp.
	Query(ctx context.Context, res Resolution, opts QueryOptions) ([]Candle, error)

	// Retain deletes, per resolution, candles older than
	// max(timestamp of that resolution) - horizonMs.
	// Returns the number of deleted rows per resolution.
	Retain(ctx context.Context, horizonMs int64) (map[Resolution]int64, error)

	// Count returns the number of stored candles for a resolution.
	Count(ctx context.Context, res Resolution) (int64, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}

// LatestPublisher receives the newest candle of a resolution after every
// successful ingest. Best effort.
type LatestPublisher interface {
	PublishLatest(ctx context.Context, c Candle) error
}
