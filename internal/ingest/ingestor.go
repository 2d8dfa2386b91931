// Package ingest runs the background fetch-and-upsert loop: every interval
// it fetches each configured resolution from the market-data source,
// upserts the candles, publishes the newest one, then sweeps retention.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"kline-service/internal/logger"
	"kline-service/internal/metrics"
	"kline-service/internal/model"
	"kline-service/internal/notification"
)

// RetentionHorizon is how far behind a resolution's newest candle data is kept.
const RetentionHorizon = 30 * 24 * time.Hour

var errAlreadyStarted = errors.New("ingestor already started")

// Source fetches the most recent candles of one resolution, ascending.
type Source interface {
	FetchKlines(ctx context.Context, res model.Resolution, limit int) ([]model.Candle, error)
}

// Config configures the ingest loop.
type Config struct {
	Symbol      string
	Resolutions []model.Resolution
	FetchLimit  int           // candles per fetch, default 1000
	Interval    time.Duration // cycle cadence, default 60s
	Retention   time.Duration // retention horizon, default 30 days
	AlertAfter  int           // consecutive failures before alerting, default 5
}

// Deps are the collaborators of an Ingestor. Source and Store are
// required; the rest are optional.
type Deps struct {
	Source    Source
	Store     model.CandleStore
	Publisher model.LatestPublisher
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Logger    *slog.Logger
}

// Ingestor owns the write path of the candle store.
type Ingestor struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// writes to the same resolution never interleave
	resLocks map[model.Resolution]*sync.Mutex

	failMu   sync.Mutex
	failures map[model.Resolution]int
	alerted  map[model.Resolution]bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// New creates an Ingestor, filling in config defaults.
func New(cfg Config, deps Deps) *Ingestor {
	if len(cfg.Resolutions) == 0 {
		cfg.Resolutions = model.AllResolutions
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 1000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = RetentionHorizon
	}
	if cfg.AlertAfter <= 0 {
		cfg.AlertAfter = 5
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	locks := make(map[model.Resolution]*sync.Mutex, len(model.AllResolutions))
	for _, res := range model.AllResolutions {
		locks[res] = &sync.Mutex{}
	}

	return &Ingestor{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With("component", "ingest"),
		resLocks: locks,
		failures: make(map[model.Resolution]int),
		alerted:  make(map[model.Resolution]bool),
		now:      time.Now,
	}
}

// FetchAndStore performs one fetch+upsert for res and returns the number
// of candles stored. On failure nothing is written for this cycle.
func (in *Ingestor) FetchAndStore(ctx context.Context, res model.Resolution) (int, error) {
	mu, ok := in.resLocks[res]
	if !ok {
		return 0, &model.ValidationError{Field: "resolution", Value: string(res), Message: "Invalid interval"}
	}
	mu.Lock()
	defer mu.Unlock()

	start := in.now()
	n, newest, err := in.fetchAndStore(ctx, res)
	took := in.now().Sub(start)

	in.observe(ctx, res, n, took, err)
	if err != nil {
		in.log.WarnContext(ctx, "ingest failed", "resolution", res, "error", err, "took", took)
		return 0, err
	}
	if newest == nil {
		in.log.InfoContext(ctx, "ingested", "resolution", res, "count", 0, "took", took)
		return 0, nil
	}
	in.log.InfoContext(ctx, "ingested", "resolution", res, "count", n, "newest", newest.OpenTime(), "took", took)

	if in.deps.Publisher != nil {
		if err := in.deps.Publisher.PublishLatest(ctx, *newest); err != nil {
			in.log.DebugContext(ctx, "publish latest failed", "resolution", res, "error", err)
		}
	}
	return n, nil
}

func (in *Ingestor) fetchAndStore(ctx context.Context, res model.Resolution) (int, *model.Candle, error) {
	candles, err := in.deps.Source.FetchKlines(ctx, res, in.cfg.FetchLimit)
	if err != nil {
		return 0, nil, err
	}
	if len(candles) == 0 {
		return 0, nil, nil
	}
	step := res.Duration().Milliseconds()
	for i := range candles {
		if candles[i].Resolution != res {
			return 0, nil, &model.FetchError{Kind: model.FetchMalformed, Resolution: res,
				Err: fmt.Errorf("candle %d has resolution %q", i, candles[i].Resolution)}
		}
		if err := candles[i].Validate(); err != nil {
			return 0, nil, &model.FetchError{Kind: model.FetchMalformed, Resolution: res,
				Err: fmt.Errorf("candle %d: %w", i, err)}
		}
		if candles[i].Timestamp%step != 0 {
			return 0, nil, &model.FetchError{Kind: model.FetchMalformed, Resolution: res,
				Err: fmt.Errorf("candle %d open time %d is not on a %s boundary", i, candles[i].Timestamp, res)}
		}
	}
	if err := in.deps.Store.UpsertBatch(ctx, candles); err != nil {
		return 0, nil, err
	}

	newest := &candles[0]
	for i := range candles {
		if candles[i].Timestamp > newest.Timestamp {
			newest = &candles[i]
		}
	}
	return len(candles), newest, nil
}

// RunCycle fetches every configured resolution, then sweeps retention.
// A failing resolution does not stop the others. The returned error joins
// the per-resolution failures; retention failures are only logged.
func (in *Ingestor) RunCycle(ctx context.Context) error {
	start := in.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("ingest", start))

	var errs []error
	for _, res := range in.cfg.Resolutions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := in.FetchAndStore(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}

	if ctx.Err() == nil {
		if _, err := in.Retain(ctx); err != nil {
			in.log.ErrorContext(ctx, "retention failed", "error", err)
		}
	}

	took := in.now().Sub(start)
	if in.deps.Metrics != nil {
		in.deps.Metrics.IngestCycleDur.Observe(took.Seconds())
	}
	in.log.DebugContext(ctx, "cycle done", "took", took, "failed", len(errs))
	return errors.Join(errs...)
}

// Retain deletes, per resolution, candles older than the retention horizon
// behind that resolution's newest candle.
func (in *Ingestor) Retain(ctx context.Context) (map[model.Resolution]int64, error) {
	deleted, err := in.deps.Store.Retain(ctx, in.cfg.Retention.Milliseconds())
	for res, n := range deleted {
		if in.deps.Metrics != nil {
			in.deps.Metrics.RetentionDeleted.WithLabelValues(string(res)).Add(float64(n))
		}
		if n > 0 {
			in.log.InfoContext(ctx, "retention sweep", "resolution", res, "deleted", n)
		}
	}
	return deleted, err
}

// Start launches the loop: one cycle immediately, then one per Interval,
// until ctx is cancelled or Stop is called.
func (in *Ingestor) Start(ctx context.Context) error {
	in.runMu.Lock()
	defer in.runMu.Unlock()
	if in.done != nil {
		return errAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.done = make(chan struct{})
	go in.loop(ctx, in.done)

	in.log.Info("started", "symbol", in.cfg.Symbol, "resolutions", in.cfg.Resolutions, "interval", in.cfg.Interval)
	return nil
}

func (in *Ingestor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	in.RunCycle(ctx)

	ticker := time.NewTicker(in.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			in.log.Info("stopped")
			return
		case <-ticker.C:
			in.RunCycle(ctx)
		}
	}
}

// Stop cancels the loop and waits for the in-flight cycle to finish or
// abort. Safe to call more than once, or before Start.
func (in *Ingestor) Stop() {
	in.runMu.Lock()
	cancel, done := in.cancel, in.done
	in.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the loop has exited. Nil before Start.
func (in *Ingestor) Done() <-chan struct{} {
	in.runMu.Lock()
	defer in.runMu.Unlock()
	return in.done
}

func (in *Ingestor) observe(ctx context.Context, res model.Resolution, n int, took time.Duration, err error) {
	if m := in.deps.Metrics; m != nil {
		m.FetchTotal.WithLabelValues(string(res), resultLabel(err)).Inc()
		m.FetchDur.WithLabelValues(string(res)).Observe(took.Seconds())
		if err == nil {
			m.CandlesUpserted.WithLabelValues(string(res)).Add(float64(n))
			m.LastIngest.WithLabelValues(string(res)).Set(float64(in.now().Unix()))
		}
	}
	if in.deps.Health != nil {
		in.deps.Health.RecordIngest(string(res), err)
	}

	in.failMu.Lock()
	var alert *notification.Alert
	if err != nil {
		in.failures[res]++
		if in.failures[res] >= in.cfg.AlertAfter && !in.alerted[res] {
			in.alerted[res] = true
			alert = &notification.Alert{
				Level:   notification.AlertCritical,
				Title:   "kline ingest failing",
				Message: strconv.Itoa(in.failures[res]) + " consecutive failures: " + err.Error(),
				Labels:  map[string]string{"symbol": in.cfg.Symbol, "resolution": string(res)},
			}
		}
	} else {
		if in.alerted[res] {
			alert = &notification.Alert{
				Level:   notification.AlertInfo,
				Title:   "kline ingest recovered",
				Message: "ingest succeeded after " + strconv.Itoa(in.failures[res]) + " failures",
				Labels:  map[string]string{"symbol": in.cfg.Symbol, "resolution": string(res)},
			}
		}
		in.failures[res] = 0
		in.alerted[res] = false
	}
	failures := in.failures[res]
	in.failMu.Unlock()

	if in.deps.Metrics != nil {
		in.deps.Metrics.ConsecutiveFailures.WithLabelValues(string(res)).Set(float64(failures))
	}
	if alert != nil {
		in.sendAlert(ctx, *alert)
	}
}

func (in *Ingestor) sendAlert(ctx context.Context, alert notification.Alert) {
	if in.deps.Notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := in.deps.Notifier.Send(sendCtx, alert); err != nil {
		in.log.ErrorContext(ctx, "alert delivery failed", "title", alert.Title, "error", err)
		return
	}
	if in.deps.Metrics != nil {
		in.deps.Metrics.AlertsSent.WithLabelValues(string(alert.Level)).Inc()
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var fe *model.FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	if model.IsStorage(err) {
		return "storage"
	}
	return "error"
}
