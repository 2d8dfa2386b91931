package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kline-service/internal/breaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func fixedHealth(now time.Time) *HealthStatus {
	h := NewHealthStatus(3 * time.Minute)
	h.now = func() time.Time { return now }
	h.StartedAt = now.Add(-time.Hour)
	return h
}

func TestHealth_Healthy(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := fixedHealth(now)
	h.CheckStore(context.Background(), pingerFunc(func(context.Context) error { return nil }))
	h.RecordIngest("1m", nil)
	h.RecordIngest("5m", nil)

	report, code := h.Report()
	if code != http.StatusOK || report.Status != "healthy" {
		t.Fatalf("status = %s/%d", report.Status, code)
	}
	if len(report.Ingest) != 2 || report.Ingest[0].Resolution != "1m" {
		t.Errorf("ingest = %+v", report.Ingest)
	}
	if report.Uptime != "1h0m0s" {
		t.Errorf("uptime = %s", report.Uptime)
	}
}

func TestHealth_StaleAndErrors(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := fixedHealth(now)
	h.SetStoreOK(true)

	h.now = func() time.Time { return now.Add(-10 * time.Minute) }
	h.RecordIngest("1h", nil)
	h.now = func() time.Time { return now }
	h.RecordIngest("1h", errors.New("fetch 1h (network): timeout"))

	report, code := h.Report()
	if code != http.StatusServiceUnavailable || report.Status != "degraded" {
		t.Fatalf("status = %s/%d", report.Status, code)
	}
	rh := report.Ingest[0]
	if !rh.Stale || rh.LastError == "" || rh.Age != "10m0s" {
		t.Errorf("resolution health = %+v", rh)
	}

	h.RecordIngest("1h", nil)
	if report, _ := h.Report(); report.Ingest[0].LastError != "" || report.Status != "healthy" {
		t.Errorf("after recovery: %+v", report)
	}
}

func TestHealth_StoreDownIsUnhealthy(t *testing.T) {
	h := fixedHealth(time.Now())
	h.CheckStore(context.Background(), pingerFunc(func(context.Context) error { return errors.New("closed") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "unhealthy" || body["store_ok"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestHealth_RedisDown(t *testing.T) {
	h := fixedHealth(time.Now())
	h.SetStoreOK(true)
	h.SetRedisEnabled(true)
	h.SetRedisConnected(false)
	if report, _ := h.Report(); report.Status != "degraded" {
		t.Errorf("status = %s", report.Status)
	}
}

func TestMetrics_RegisterAndServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FetchTotal.WithLabelValues("1m", "ok").Inc()
	m.CandlesUpserted.WithLabelValues("1m").Add(1000)
	m.ObserveHTTP("/kline/:resolution", 200, 5*time.Millisecond)

	hook := m.BreakerHook()
	hook("binance", breaker.StateClosed, breaker.StateOpen)
	hook("binance", breaker.StateOpen, breaker.StateHalfOpen)

	if v := testutil.ToFloat64(m.CandlesUpserted.WithLabelValues("1m")); v != 1000 {
		t.Errorf("candles upserted = %v", v)
	}
	if v := testutil.ToFloat64(m.BreakerState.WithLabelValues("binance")); v != 2 {
		t.Errorf("breaker state = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.BreakerTrips.WithLabelValues("binance")); v != 1 {
		t.Errorf("breaker trips = %v, want 1", v)
	}

	srv := NewServer(":0", NewHealthStatus(0), reg)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `klined_fetch_total{resolution="1m",result="ok"} 1`) {
		t.Errorf("metrics output missing fetch counter:\n%s", body)
	}
}
