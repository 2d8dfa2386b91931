package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kline-service/internal/breaker"
	"kline-service/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:        srv.URL,
		Symbol:         "BTCUSDT",
		RequestTimeout: 2 * time.Second,
		RatePerSec:     1000,
		Burst:          100,
	})
	return c, srv
}

func fetchKind(t *testing.T, err error) model.FetchKind {
	t.Helper()
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *model.FetchError, got %T: %v", err, err)
	}
	return fe.Kind
}

func TestFetchKlines_StringAndNumberFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "5m" || q.Get("limit") != "2" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			[1700000000000, "100.5", "101", "99.25", "100.75", "12.5", 1700000299999, "0", 10, "0", "0", "0"],
			[1700000300000, 100.75, 102, 100, 101.5, 0]
		]`))
	})

	got, err := c.FetchKlines(context.Background(), model.Res5m, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	want := model.Candle{Resolution: model.Res5m, Timestamp: 1700000000000,
		Open: 100.5, High: 101, Low: 99.25, Close: 100.75, Volume: 12.5}
	if got[0] != want {
		t.Errorf("candle 0 = %+v, want %+v", got[0], want)
	}
	if got[1].Timestamp != 1700000300000 || got[1].Close != 101.5 || got[1].Volume != 0 {
		t.Errorf("candle 1 = %+v", got[1])
	}
}

func TestFetchKlines_MalformedFailsWholeResponse(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>`,
		"object":          `{"code":-1121,"msg":"Invalid symbol."}`,
		"short row":       `[[1700000000000, "1", "1", "1", "1"]]`,
		"non numeric":     `[[1700000000000, "1", "abc", "1", "1", "1"]]`,
		"null field":      `[[1700000000000, "1", "1", null, "1", "1"]]`,
		"fractional time": `[[1700000000000.5, "1", "1", "1", "1", "1"]]`,
		"zero price":      `[[1700000000000, "1", "1", "1", "0", "1"]]`,
		"negative volume": `[[1700000000000, "1", "1", "1", "1", "-2"]]`,
		"infinite high":   `[[1700000000000, "1", "1e400", "1", "1", "1"]]`,
		"infinite volume": `[[1700000000000, "1", "1", "1", "1", 1e400]]`,
		"time overflow":   `[[18446744073709611616, "1", "1", "1", "1", "1"]]`,
		"time underflow":  `[[-9223372036854775809, "1", "1", "1", "1", "1"]]`,
		"one bad row": `[[1700000000000, "1", "1", "1", "1", "1"],
		                 [1700000060000, "1", "1", "1", "x", "1"]]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			got, err := c.FetchKlines(context.Background(), model.Res1m, 10)
			if err == nil {
				t.Fatalf("expected error, got %d candles", len(got))
			}
			if got != nil {
				t.Errorf("partial result returned: %d candles", len(got))
			}
			if k := fetchKind(t, err); k != model.FetchMalformed {
				t.Errorf("kind = %s, want malformed", k)
			}
		})
	}
}

func TestFetchKlines_EmptyArray(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	got, err := c.FetchKlines(context.Background(), model.Res1h, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candles, got %d", len(got))
	}
}

func TestFetchKlines_Status(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.FetchKlines(context.Background(), model.Res1m, 10)
	if k := fetchKind(t, err); k != model.FetchStatus {
		t.Errorf("kind = %s, want status", k)
	}
	var fe *model.FetchError
	errors.As(err, &fe)
	if fe.Status != http.StatusBadGateway {
		t.Errorf("status = %d", fe.Status)
	}
}

func TestFetchKlines_RateLimitedPauses(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchKlines(context.Background(), model.Res1m, 10)
	if k := fetchKind(t, err); k != model.FetchRateLimited {
		t.Fatalf("kind = %s, want rate_limited", k)
	}
	if until := c.PausedUntil(); time.Until(until) < 100*time.Second {
		t.Errorf("pause ends too early: %v", until)
	}

	// Paused: no request leaves the client.
	_, err = c.FetchKlines(context.Background(), model.Res5m, 10)
	if k := fetchKind(t, err); k != model.FetchRateLimited {
		t.Errorf("kind = %s, want rate_limited", k)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times during pause", hits.Load())
	}
}

func TestFetchKlines_Network(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()
	_, err := c.FetchKlines(context.Background(), model.Res1m, 10)
	if k := fetchKind(t, err); k != model.FetchNetwork {
		t.Errorf("kind = %s, want network", k)
	}
}

func TestFetchKlines_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond, RatePerSec: 100})

	_, err := c.FetchKlines(context.Background(), model.Res1m, 10)
	if k := fetchKind(t, err); k != model.FetchNetwork {
		t.Errorf("kind = %s, want network", k)
	}
}

func TestFetchKlines_CircuitOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cb := breaker.New("binance", 3, time.Minute)
	c := New(Config{BaseURL: srv.URL, RatePerSec: 1000, Burst: 10, Breaker: cb})

	for i := 0; i < 3; i++ {
		c.FetchKlines(context.Background(), model.Res1m, 10)
	}
	_, err := c.FetchKlines(context.Background(), model.Res1m, 10)
	if k := fetchKind(t, err); k != model.FetchCircuitOpen {
		t.Errorf("kind = %s, want circuit_open", k)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
	if cb.State() != breaker.StateOpen {
		t.Errorf("breaker = %v", cb.State())
	}
}

func TestFetchKlines_CallerCancelDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	cb := breaker.New("binance", 1, time.Minute)
	c := New(Config{BaseURL: srv.URL, RatePerSec: 1000, Burst: 10, Breaker: cb})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := c.FetchKlines(ctx, model.Res1m, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cb.State() != breaker.StateClosed || cb.Failures() != 0 {
		t.Errorf("breaker = %v with %d failures, want closed with 0", cb.State(), cb.Failures())
	}
}

func TestUpstreamFailure(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&model.FetchError{Kind: model.FetchStatus, Status: 503, Err: errors.New("down")}, true},
		{&model.FetchError{Kind: model.FetchNetwork, Err: context.DeadlineExceeded}, true},
		{&model.FetchError{Kind: model.FetchMalformed, Err: errors.New("bad row")}, true},
		{&model.FetchError{Kind: model.FetchRateLimited, Status: 429, Err: errors.New("slow down")}, false},
		{&model.FetchError{Kind: model.FetchNetwork, Err: context.Canceled}, false},
	}
	for i, tc := range cases {
		if got := upstreamFailure(tc.err); got != tc.want {
			t.Errorf("case %d (%v): got %v, want %v", i, tc.err, got, tc.want)
		}
	}
}

func TestFetchKlines_InvalidResolution(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.FetchKlines(context.Background(), "15m", 10)
	if !model.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":    time.Minute,
		"5":   5 * time.Second,
		"abc": time.Minute,
		"-1":  time.Minute,
	}
	for in, want := range cases {
		if got := retryAfter(in); got != want {
			t.Errorf("retryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDecodeKlines_RejectsOutOfRange(t *testing.T) {
	// 2^64+60000 would wrap to 60000 if truncated to int64.
	if got, err := decodeKlines([]byte(`[[18446744073709611616,"1","1","1","1","1"]]`), model.Res1m); err == nil {
		t.Errorf("wrapped open time accepted: %+v", got)
	}
	if got, err := decodeKlines([]byte(`[[60000,"1","1e400","1","1","1"]]`), model.Res1m); err == nil {
		t.Errorf("infinite high accepted: %+v", got)
	}

	got, err := decodeKlines([]byte(`[[9223372036854775807,"1","1","1","1","1"]]`), model.Res1m)
	if err != nil {
		t.Fatalf("max int64 open time rejected: %v", err)
	}
	if got[0].Timestamp != 9223372036854775807 {
		t.Errorf("timestamp = %d", got[0].Timestamp)
	}
}
