package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"kline-service/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to kline_data for the query path.
type Reader struct {
	db *sql.DB
}

// NewReader opens a pooled SQLite connection for reading.
func NewReader(dbPath string, maxConns int) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	slog.Info("opened reader", "component", "sqlite", "path", dbPath, "max_conns", maxConns)
	return &Reader{db: db}, nil
}

// Query reads candles for one resolution ordered by timestamp.
// A non-positive limit reads every stored candle.
func (r *Reader) Query(ctx context.Context, res model.Resolution, opts model.QueryOptions) ([]model.Candle, error) {
	q := `
		SELECT resolution, timestamp, open, high, low, close, volume
		FROM kline_data
		WHERE resolution = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	if opts.Order == model.Ascending {
		q = `
		SELECT resolution, timestamp, open, high, low, close, volume
		FROM kline_data
		WHERE resolution = ?
		ORDER BY timestamp ASC
		LIMIT ?
	`
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx, q, string(res), limit)
	if err != nil {
		return nil, &model.StorageError{Op: "query", Err: err}
	}
	defer rows.Close()

	candles := make([]model.Candle, 0, max(opts.Limit, 0))
	for rows.Next() {
		var c model.Candle
		var resStr string
		if err := rows.Scan(&resStr, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, &model.StorageError{Op: "scan", Err: err}
		}
		c.Resolution = model.Resolution(resStr)
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "query", Err: err}
	}
	return candles, nil
}

// Count returns the number of stored candles for a resolution.
func (r *Reader) Count(ctx context.Context, res model.Resolution) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kline_data WHERE resolution = ?`, string(res),
	).Scan(&n)
	if err != nil {
		return 0, &model.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
