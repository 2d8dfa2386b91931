package query

import (
	"context"
	"errors"
	"testing"

	"kline-service/internal/model"
	"kline-service/internal/store/memory"
)

func seed(t *testing.T, res model.Resolution, n int) *memory.Store {
	t.Helper()
	s := memory.New()
	step := res.Duration().Milliseconds()
	batch := make([]model.Candle, n)
	for i := range batch {
		c := float64(100 + i%7 + i/3)
		batch[i] = model.Candle{Resolution: res, Timestamp: int64(i) * step, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	if err := s.UpsertBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParseLimit(t *testing.T) {
	for _, s := range []string{"50", "100", "200"} {
		if _, err := ParseLimit(s); err != nil {
			t.Errorf("ParseLimit(%q): %v", s, err)
		}
	}
	if n, err := ParseLimit(""); err != nil || n != 0 {
		t.Errorf("ParseLimit(\"\") = %d, %v", n, err)
	}

	cases := map[string]string{
		"abc": "Invalid limit format. Must be an integer.",
		"1.5": "Invalid limit format. Must be an integer.",
		"75":  "Invalid limit. Must be 50, 100, or 200",
		"0":   "Invalid limit. Must be 50, 100, or 200",
		"-50": "Invalid limit. Must be 50, 100, or 200",
		"500": "Invalid limit. Must be 50, 100, or 200",
	}
	for in, msg := range cases {
		_, err := ParseLimit(in)
		if !model.IsValidation(err) {
			t.Errorf("ParseLimit(%q): expected ValidationError, got %v", in, err)
			continue
		}
		if err.Error() != msg {
			t.Errorf("ParseLimit(%q) message = %q, want %q", in, err.Error(), msg)
		}
	}
}

func TestCandles_NewestFirst(t *testing.T) {
	svc := NewService(seed(t, model.Res1m, 120), nil, nil)

	got, err := svc.Candles(context.Background(), model.Res1m, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 50 {
		t.Fatalf("expected 50 candles, got %d", len(got))
	}
	if got[0].Timestamp != 119*60000 || got[49].Timestamp != 70*60000 {
		t.Errorf("window = %d..%d", got[0].Timestamp, got[49].Timestamp)
	}

	all, _ := svc.Candles(context.Background(), model.Res1m, 0)
	if len(all) != 120 {
		t.Errorf("unbounded: got %d", len(all))
	}

	if _, err := svc.Candles(context.Background(), "2m", 0); !model.IsValidation(err) {
		t.Errorf("invalid resolution: %v", err)
	}
}

func TestMACD_PageAlignsWithFullHistory(t *testing.T) {
	store := seed(t, model.Res5m, 300)
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	page, err := svc.MACD(ctx, model.Res5m, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(page))
	}
	if page[0].Timestamp != 299*300000 {
		t.Errorf("first row ts = %d, want newest", page[0].Timestamp)
	}
	for i := 1; i < len(page); i++ {
		if page[i].Timestamp >= page[i-1].Timestamp {
			t.Fatalf("rows not newest-first at %d", i)
		}
	}

	full, err := svc.MACD(ctx, model.Res5m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(full) != 300 {
		t.Fatalf("unbounded: got %d rows", len(full))
	}
	// The page is computed from a shorter history, so only the rows it
	// covers are compared: same candles, same order.
	for i := range page {
		if page[i].Timestamp != full[i].Timestamp || page[i].Close != full[i].Close {
			t.Fatalf("row %d: page %+v, full %+v", i, page[i], full[i])
		}
	}
}

func TestRSI_Page(t *testing.T) {
	svc := NewService(seed(t, model.Res1h, 80), nil, nil)

	rows, err := svc.RSI(context.Background(), model.Res1h, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.RSI < 0 || r.RSI > 100 {
			t.Errorf("RSI out of range: %+v", r)
		}
	}
	// The window read is limit+14 = 64 rows, so every returned row has
	// at least 14 rows of history behind it and none is the neutral warm-up row.
	if rows[49].Timestamp != 30*3600000 {
		t.Errorf("oldest row ts = %d", rows[49].Timestamp)
	}
}

func TestIndicators_InsufficientData(t *testing.T) {
	ctx := context.Background()

	svc := NewService(seed(t, model.Res1m, 25), nil, nil)
	if _, err := svc.MACD(ctx, model.Res1m, 50); !model.IsInsufficientData(err) {
		t.Errorf("MACD with 25 candles: %v", err)
	}
	if _, err := svc.MACD(ctx, model.Res1m, 0); !model.IsInsufficientData(err) {
		t.Errorf("MACD unbounded with 25 candles: %v", err)
	}
	if _, err := svc.RSI(ctx, model.Res1m, 50); err != nil {
		t.Errorf("RSI with 25 candles: %v", err)
	}

	svc = NewService(seed(t, model.Res1m, 13), nil, nil)
	if _, err := svc.RSI(ctx, model.Res1m, 0); !model.IsInsufficientData(err) {
		t.Errorf("RSI with 13 candles: %v", err)
	}

	// Another resolution's data does not count.
	svc = NewService(seed(t, model.Res1h, 100), nil, nil)
	if _, err := svc.MACD(ctx, model.Res1m, 50); !model.IsInsufficientData(err) {
		t.Errorf("MACD on empty 1m: %v", err)
	}
}

func TestIndicators_StoreError(t *testing.T) {
	store := memory.New()
	store.Close()

	var observed error
	svc := NewService(store, nil, nil)
	svc.OnQuery = func(kind string, res model.Resolution, rows int, err error) { observed = err }

	_, err := svc.RSI(context.Background(), model.Res1m, 50)
	if !model.IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if !errors.Is(observed, err) {
		t.Errorf("OnQuery saw %v", observed)
	}
}

func TestNewestFirst(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	if got := newestFirst(in, 2); len(got) != 2 || got[0] != 5 || got[1] != 4 {
		t.Errorf("limit 2: %v", got)
	}
	if got := newestFirst(in, 0); len(got) != 5 || got[0] != 5 || got[4] != 1 {
		t.Errorf("unbounded: %v", got)
	}
	if got := newestFirst(in, 50); len(got) != 5 {
		t.Errorf("limit beyond length: %v", got)
	}
}
