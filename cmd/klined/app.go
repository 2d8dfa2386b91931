package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kline-service/config"
	"kline-service/internal/breaker"
	"kline-service/internal/ingest"
	"kline-service/internal/logger"
	"kline-service/internal/marketdata/binance"
	"kline-service/internal/metrics"
	"kline-service/internal/model"
	"kline-service/internal/notification"
	"kline-service/internal/store/memory"
	redisstore "kline-service/internal/store/redis"
	sqlitestore "kline-service/internal/store/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	reg       *prometheus.Registry
	prom      *metrics.Metrics
	health    *metrics.HealthStatus
	store     model.CandleStore
	publisher *redisstore.Publisher
	ingestor  *ingest.Ingestor
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.Init("klined", logger.ParseLevel(cfg.LogLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(2 * cfg.FetchInterval)

	a := &app{cfg: cfg, log: log, reg: reg, prom: prom, health: health}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	health.SetStoreOK(true)

	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		cb := breaker.New("redis", 5, 10*time.Second)
		cb.OnStateChange = prom.BreakerHook()
		pub, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Symbol:   cfg.Symbol,
		}, cb)
		if err != nil {
			log.Warn("redis unavailable, continuing without it", "error", err)
			health.SetRedisConnected(false)
		} else {
			pub.OnPublish = func(err error) {
				result := "ok"
				if err != nil {
					result = "error"
				}
				prom.RedisPublishTotal.WithLabelValues(result).Inc()
				prom.RedisPending.Set(float64(pub.Pending()))
			}
			a.publisher = pub
			health.SetRedisConnected(true)
		}
	}

	fetchBreaker := breaker.New("binance", 5, 30*time.Second)
	fetchBreaker.OnStateChange = prom.BreakerHook()
	source := binance.New(binance.Config{
		BaseURL:        cfg.BinanceBaseURL,
		Symbol:         cfg.Symbol,
		RequestTimeout: cfg.HTTPTimeout,
		RatePerSec:     cfg.FetchRatePerSec,
		Breaker:        fetchBreaker,
	})

	deps := ingest.Deps{
		Source:   source,
		Store:    store,
		Notifier: a.notifier(),
		Metrics:  prom,
		Health:   health,
		Logger:   log,
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	a.ingestor = ingest.New(ingest.Config{
		Symbol:      source.Symbol(),
		Resolutions: cfg.Resolutions,
		FetchLimit:  cfg.FetchLimit,
		Interval:    cfg.FetchInterval,
		Retention:   cfg.Retention(),
		AlertAfter:  cfg.AlertAfterFailures,
	}, deps)

	return a, nil
}

func (a *app) openStore(ctx context.Context) (model.CandleStore, error) {
	switch a.cfg.StoreDriver {
	case "memory":
		a.log.Warn("using in-memory store, candles are lost on exit")
		return memory.New(), nil
	case "sqlite":
		s, err := sqlitestore.Open(ctx, sqlitestore.Config{DBPath: a.cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		s.OnCommit = func(rows int, took time.Duration) {
			a.prom.SQLiteCommitDur.Observe(took.Seconds())
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}
}

func (a *app) notifier() notification.Notifier {
	notifiers := notification.Multi{notification.NewLogNotifier(a.log)}
	if a.cfg.AlertWebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(a.cfg.AlertWebhookURL))
	}
	if a.cfg.TelegramBotToken != "" && a.cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(a.cfg.TelegramBotToken, a.cfg.TelegramChatID))
	}
	return notifiers
}

// refreshGauges updates the stored-candle gauge per resolution.
func (a *app) refreshGauges(ctx context.Context) {
	for _, res := range model.AllResolutions {
		n, err := a.store.Count(ctx, res)
		if err != nil {
			a.log.DebugContext(ctx, "count failed", "resolution", res, "error", err)
			continue
		}
		a.prom.StoredCandles.WithLabelValues(string(res)).Set(float64(n))
	}
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("store close failed", "error", err)
	}
}

func (a *app) observeQuery(kind string, res model.Resolution, rows int, err error) {
	result := "ok"
	switch {
	case err == nil:
	case model.IsValidation(err):
		result = "invalid"
	case model.IsInsufficientData(err):
		result = "insufficient"
	default:
		result = "error"
	}
	a.prom.QueryTotal.WithLabelValues(kind, result).Inc()
}
