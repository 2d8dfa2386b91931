// Package memory is an in-process model.CandleStore used by tests and by
// STORE_DRIVER=memory deployments that do not need durability.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"kline-service/internal/model"
)

// Store keeps candles in a map keyed by (resolution, timestamp).
type Store struct {
	mu      sync.RWMutex
	candles map[model.CandleKey]model.Candle
	closed  bool
}

var _ model.CandleStore = (*Store)(nil)

var errClosed = errors.New("store closed")

// New returns an empty store.
func New() *Store {
	return &Store{candles: make(map[model.CandleKey]model.Candle)}
}

func (s *Store) Upsert(ctx context.Context, c model.Candle) error {
	return s.UpsertBatch(ctx, []model.Candle{c})
}

// UpsertBatch applies the whole batch under one lock, so readers see all of
// it or none of it.
func (s *Store) UpsertBatch(ctx context.Context, candles []model.Candle) error {
	if err := ctx.Err(); err != nil {
		return &model.StorageError{Op: "upsert batch", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &model.StorageError{Op: "upsert batch", Err: errClosed}
	}
	for _, c := range candles {
		s.candles[c.Key()] = c
	}
	return nil
}

func (s *Store) Query(ctx context.Context, res model.Resolution, opts model.QueryOptions) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.StorageError{Op: "query", Err: err}
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, &model.StorageError{Op: "query", Err: errClosed}
	}
	out := make([]model.Candle, 0)
	for k, c := range s.candles {
		if k.Resolution == res {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	if opts.Order == model.Ascending {
		sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) Retain(ctx context.Context, horizonMs int64) (map[model.Resolution]int64, error) {
	if horizonMs < 0 {
		return nil, &model.StorageError{Op: "retain", Err: errors.New("negative retention horizon")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &model.StorageError{Op: "retain", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &model.StorageError{Op: "retain", Err: errClosed}
	}

	newest := make(map[model.Resolution]int64)
	for k := range s.candles {
		if ts, ok := newest[k.Resolution]; !ok || k.Timestamp > ts {
			newest[k.Resolution] = k.Timestamp
		}
	}

	deleted := make(map[model.Resolution]int64, len(model.AllResolutions))
	for _, res := range model.AllResolutions {
		deleted[res] = 0
	}
	for k := range s.candles {
		if k.Timestamp < newest[k.Resolution]-horizonMs {
			delete(s.candles, k)
			deleted[k.Resolution]++
		}
	}
	return deleted, nil
}

func (s *Store) Count(ctx context.Context, res model.Resolution) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &model.StorageError{Op: "count", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, &model.StorageError{Op: "count", Err: errClosed}
	}
	var n int64
	for k := range s.candles {
		if k.Resolution == res {
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &model.StorageError{Op: "ping", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &model.StorageError{Op: "ping", Err: errClosed}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
