// Package sqlite implements model.CandleStore on a local SQLite file.
//
// One Writer connection performs every mutation; a small pool of Reader
// connections serves queries. WAL journaling lets readers proceed while the
// writer commits, and each row is observed either fully written or absent.
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"kline-service/internal/model"
)

// Config configures the SQLite candle store.
type Config struct {
	DBPath         string
	MaxReaderConns int
}

// Store is the SQLite-backed model.CandleStore.
type Store struct {
	*Writer
	reader *Reader
}

var _ model.CandleStore = (*Store)(nil)

// Open creates the database directory if needed, migrates the schema and
// opens both the writer and the reader pool.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &model.StorageError{Op: "open", Err: err}
		}
	}

	w, err := NewWriter(ctx, WriterConfig{DBPath: cfg.DBPath})
	if err != nil {
		return nil, &model.StorageError{Op: "open", Err: err}
	}
	r, err := NewReader(cfg.DBPath, cfg.MaxReaderConns)
	if err != nil {
		w.Close()
		return nil, &model.StorageError{Op: "open", Err: err}
	}
	return &Store{Writer: w, reader: r}, nil
}

// Query reads candles through the reader pool.
func (s *Store) Query(ctx context.Context, res model.Resolution, opts model.QueryOptions) ([]model.Candle, error) {
	return s.reader.Query(ctx, res, opts)
}

// Count returns the number of stored candles for a resolution.
func (s *Store) Count(ctx context.Context, res model.Resolution) (int64, error) {
	return s.reader.Count(ctx, res)
}

// Ping checks both pools.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Writer.DB().PingContext(ctx); err != nil {
		return &model.StorageError{Op: "ping", Err: err}
	}
	if err := s.reader.DB().PingContext(ctx); err != nil {
		return &model.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Close closes the reader pool and the writer.
func (s *Store) Close() error {
	return errors.Join(s.reader.Close(), s.Writer.Close())
}
