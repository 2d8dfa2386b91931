// Package query serves candles and indicator rows from a CandleStore.
package query

import (
	"context"
	"log/slog"
	"strconv"

	"kline-service/internal/indicator"
	"kline-service/internal/model"
)

// AllowedLimits are the only accepted page sizes.
var AllowedLimits = []int{50, 100, 200}

// ParseLimit parses the optional limit query value. Empty means unbounded
// (0). Anything that is not one of AllowedLimits is rejected, not clamped.
func ParseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &model.ValidationError{Field: "limit", Value: s, Message: "Invalid limit format. Must be an integer."}
	}
	for _, allowed := range AllowedLimits {
		if n == allowed {
			return n, nil
		}
	}
	return 0, &model.ValidationError{Field: "limit", Value: s, Message: "Invalid limit. Must be 50, 100, or 200"}
}

// Service is the read path: store → indicator engine → caller.
type Service struct {
	store  model.CandleStore
	engine *indicator.Engine
	log    *slog.Logger

	// OnQuery is called after every query (optional, for metrics).
	OnQuery func(kind string, res model.Resolution, rows int, err error)
}

// NewService creates a query service. A nil engine uses the defaults.
func NewService(store model.CandleStore, engine *indicator.Engine, logger *slog.Logger) *Service {
	if engine == nil {
		engine = indicator.DefaultEngine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, log: logger.With("component", "query")}
}

// Candles returns the newest limit candles, newest first. limit <= 0
// returns every stored candle.
func (s *Service) Candles(ctx context.Context, res model.Resolution, limit int) (candles []model.Candle, err error) {
	defer func() { s.observe(ctx, "kline", res, len(candles), err) }()

	if !res.Valid() {
		return nil, &model.ValidationError{Field: "resolution", Value: string(res), Message: "Invalid interval"}
	}
	return s.store.Query(ctx, res, model.QueryOptions{Order: model.Descending, Limit: limit})
}

// MACD returns the newest limit MACD rows, newest first. It reads limit+26
// candles so the recurrence is warmed up before the first returned row.
func (s *Service) MACD(ctx context.Context, res model.Resolution, limit int) (rows []model.MACDRow, err error) {
	defer func() { s.observe(ctx, "macd", res, len(rows), err) }()

	candles, err := s.window(ctx, res, limit, s.engine.MACDLookback())
	if err != nil {
		return nil, err
	}
	all, err := s.engine.ComputeMACD(candles)
	if err != nil {
		return nil, err
	}
	return newestFirst(all, limit), nil
}

// RSI returns the newest limit RSI rows, newest first, with a 14-candle
// warm-up read ahead of them.
func (s *Service) RSI(ctx context.Context, res model.Resolution, limit int) (rows []model.RSIRow, err error) {
	defer func() { s.observe(ctx, "rsi", res, len(rows), err) }()

	candles, err := s.window(ctx, res, limit, s.engine.RSILookback())
	if err != nil {
		return nil, err
	}
	all, err := s.engine.ComputeRSI(candles)
	if err != nil {
		return nil, err
	}
	return newestFirst(all, limit), nil
}

// window reads limit+lookback newest candles (all when unbounded) and
// rejects windows shorter than lookback.
func (s *Service) window(ctx context.Context, res model.Resolution, limit, lookback int) ([]model.Candle, error) {
	if !res.Valid() {
		return nil, &model.ValidationError{Field: "resolution", Value: string(res), Message: "Invalid interval"}
	}
	read := 0
	if limit > 0 {
		read = limit + lookback
	}
	candles, err := s.store.Query(ctx, res, model.QueryOptions{Order: model.Descending, Limit: read})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

func (s *Service) observe(ctx context.Context, kind string, res model.Resolution, rows int, err error) {
	if err != nil && !model.IsValidation(err) && !model.IsInsufficientData(err) {
		s.log.ErrorContext(ctx, "query failed", "kind", kind, "resolution", res, "error", err)
	}
	if s.OnQuery != nil {
		s.OnQuery(kind, res, rows, err)
	}
}

// newestFirst keeps the last limit rows of an ascending series and
// reverses them. limit <= 0 keeps all rows.
func newestFirst[T any](asc []T, limit int) []T {
	n := len(asc)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = asc[len(asc)-1-i]
	}
	return out
}
