package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kline-service/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// dsnParams keeps readers and the single writer from blocking each other.
const dsnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/crypto_data.db"
}

// Writer is the single-connection SQLite writer. All mutations of
// kline_data go through it, so writes are serialized by the pool itself.
type Writer struct {
	db *sql.DB

	// OnCommit is called after every committed batch (optional, for metrics).
	OnCommit func(rows int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// NewWriter opens the database with WAL mode and applies migrations.
func NewWriter(ctx context.Context, cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("opened database", "component", "sqlite", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

const upsertSQL = `
	INSERT OR REPLACE INTO kline_data (resolution, timestamp, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// Upsert inserts or replaces a single candle.
func (w *Writer) Upsert(ctx context.Context, c model.Candle) error {
	_, err := w.db.ExecContext(ctx, upsertSQL,
		string(c.Resolution), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return &model.StorageError{Op: "upsert", Err: err}
	}
	return nil
}

// UpsertBatch upserts candles in a single transaction: all or none.
func (w *Writer) UpsertBatch(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()
	if err := w.insertBatch(ctx, candles); err != nil {
		return &model.StorageError{Op: "upsert batch", Err: err}
	}
	if w.OnCommit != nil {
		w.OnCommit(len(candles), time.Since(start))
	}
	return nil
}

func (w *Writer) insertBatch(ctx context.Context, candles []model.Candle) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, string(c.Resolution), c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Retain deletes, for each resolution independently, every candle older
// than that resolution's newest timestamp minus horizonMs. The cutoff is
// computed inside the DELETE so a concurrent upsert of a newer candle can
// only move it forward, never delete the newer row.
func (w *Writer) Retain(ctx context.Context, horizonMs int64) (map[model.Resolution]int64, error) {
	if horizonMs < 0 {
		return nil, &model.StorageError{Op: "retain", Err: errors.New("negative retention horizon")}
	}

	deleted := make(map[model.Resolution]int64, len(model.AllResolutions))
	for _, res := range model.AllResolutions {
		result, err := w.db.ExecContext(ctx, `
			DELETE FROM kline_data
			WHERE resolution = ?
			  AND timestamp < (SELECT MAX(timestamp) FROM kline_data WHERE resolution = ?) - ?
		`, string(res), string(res), horizonMs)
		if err != nil {
			return deleted, &model.StorageError{Op: "retain " + string(res), Err: err}
		}
		n, err := result.RowsAffected()
		if err != nil {
			return deleted, &model.StorageError{Op: "retain " + string(res), Err: err}
		}
		deleted[res] = n
	}
	return deleted, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
