package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Pinger is anything whose reachability can be checked (the candle store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StoreOK        bool
	StoreLatencyMs float64
	RedisEnabled   bool
	RedisConnected bool
	RedisLatencyMs float64

	// Per-resolution ingest state
	LastIngest    map[string]time.Time
	LastIngestErr map[string]string

	// StaleAfter marks a resolution stale when its last successful ingest
	// is older than this. Zero disables the check.
	StaleAfter time.Duration

	LastCheckAt time.Time
	StartedAt   time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		LastIngest:    make(map[string]time.Time),
		LastIngestErr: make(map[string]string),
		StaleAfter:    staleAfter,
		StartedAt:     time.Now(),
		now:           time.Now,
	}
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// RecordIngest records the outcome of one ingest for a resolution.
func (h *HealthStatus) RecordIngest(resolution string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.LastIngestErr[resolution] = err.Error()
		return
	}
	h.LastIngest[resolution] = h.now()
	delete(h.LastIngestErr, resolution)
}

// CheckStore pings the candle store and records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, store Pinger) {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb may be nil.
// onTick, when set, runs after each round of checks (e.g. to refresh
// stored-candle gauges).
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store Pinger, rdb *goredis.Client, interval time.Duration, onTick func(ctx context.Context)) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if store != nil {
			h.CheckStore(checkCtx, store)
		}
		if rdb != nil {
			h.CheckRedis(checkCtx, rdb)
		}
		if onTick != nil {
			onTick(checkCtx)
		}
	}

	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ResolutionHealth is the ingest state of one resolution.
type ResolutionHealth struct {
	Resolution string `json:"resolution"`
	LastIngest string `json:"last_ingest,omitempty"`
	Age        string `json:"age,omitempty"`
	Stale      bool   `json:"stale"`
	LastError  string `json:"last_error,omitempty"`
}

// HealthReport is the JSON body served on /healthz.
type HealthReport struct {
	Status         string             `json:"status"`
	Uptime         string             `json:"uptime"`
	StoreOK        bool               `json:"store_ok"`
	StoreLatencyMs float64            `json:"store_latency_ms"`
	RedisEnabled   bool               `json:"redis_enabled"`
	RedisConnected bool               `json:"redis_connected"`
	RedisLatencyMs float64            `json:"redis_latency_ms"`
	Ingest         []ResolutionHealth `json:"ingest"`
	LastCheckAt    string             `json:"last_check_at"`
}

// Report builds the health document and the HTTP status to serve it with.
// healthy: store up, Redis up or disabled, no stale resolution.
// degraded: store up but something else is off (503).
// unhealthy: store down (503).
func (h *HealthStatus) Report() (HealthReport, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	names := make(map[string]struct{})
	for r := range h.LastIngest {
		names[r] = struct{}{}
	}
	for r := range h.LastIngestErr {
		names[r] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for r := range names {
		sorted = append(sorted, r)
	}
	sort.Strings(sorted)

	anyStale := false
	ingest := make([]ResolutionHealth, 0, len(sorted))
	for _, r := range sorted {
		rh := ResolutionHealth{Resolution: r, LastError: h.LastIngestErr[r]}
		last, ok := h.LastIngest[r]
		if ok {
			rh.LastIngest = last.UTC().Format(time.RFC3339)
			rh.Age = now.Sub(last).Round(time.Second).String()
		}
		if h.StaleAfter > 0 && (!ok || now.Sub(last) > h.StaleAfter) {
			rh.Stale = true
			anyStale = true
		}
		ingest = append(ingest, rh)
	}

	status, code := "healthy", http.StatusOK
	if anyStale || (h.RedisEnabled && !h.RedisConnected) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if !h.StoreOK {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	lastCheck := ""
	if !h.LastCheckAt.IsZero() {
		lastCheck = h.LastCheckAt.UTC().Format(time.RFC3339)
	}

	return HealthReport{
		Status:         status,
		Uptime:         now.Sub(h.StartedAt).Round(time.Second).String(),
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		RedisEnabled:   h.RedisEnabled,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		Ingest:         ingest,
		LastCheckAt:    lastCheck,
	}, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
