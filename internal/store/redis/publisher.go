// Package redis publishes the newest candle of each resolution to Redis so
// dashboards and other processes can follow the series without polling
// SQLite.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kline-service/internal/breaker"
	"kline-service/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute
	// roughly a day of 5m bars; 1m and 1h streams trim to the same count
	streamMaxLen = 300
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Symbol   string
}

// Publisher writes each resolution's newest candle with one pipeline:
// SET latest (with TTL), XADD to a trimmed stream, PUBLISH on pubsub.
//
// Publishes go through a breaker. While it is open the newest candle per
// resolution is parked and sent with the next successful publish; older
// parked candles are superseded, not queued.
type Publisher struct {
	client *goredis.Client
	cb     *breaker.Breaker
	symbol string
	log    *slog.Logger

	mu      sync.Mutex
	pending map[model.Resolution]model.Candle

	// OnPublish is called after every pipeline, once pending reflects its
	// outcome (optional, for metrics).
	OnPublish func(err error)
}

var _ model.LatestPublisher = (*Publisher)(nil)

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config, cb *breaker.Breaker) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := NewWithClient(client, cfg.Symbol, cb)
	p.log.Info("connected", "addr", cfg.Addr)
	return p, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, symbol string, cb *breaker.Breaker) *Publisher {
	if cb == nil {
		cb = breaker.New("redis", 5, 10*time.Second)
	}
	return &Publisher{
		client:  client,
		cb:      cb,
		symbol:  symbol,
		log:     slog.Default().With("component", "redis"),
		pending: make(map[model.Resolution]model.Candle),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// LatestKey is the key holding the newest candle JSON for a resolution.
func (p *Publisher) LatestKey(res model.Resolution) string {
	return "kline:latest:" + p.symbol + ":" + string(res)
}

// StreamKey is the trimmed stream of recent candles for a resolution.
func (p *Publisher) StreamKey(res model.Resolution) string {
	return "kline:" + p.symbol + ":" + string(res)
}

// Channel is the pubsub channel announcing new candles for a resolution.
func (p *Publisher) Channel(res model.Resolution) string {
	return "pub:kline:" + p.symbol + ":" + string(res)
}

// PublishLatest publishes c together with any parked candles of other
// resolutions. On failure c is parked for the next attempt.
func (p *Publisher) PublishLatest(ctx context.Context, c model.Candle) error {
	p.mu.Lock()
	if prev, ok := p.pending[c.Resolution]; !ok || prev.Timestamp <= c.Timestamp {
		p.pending[c.Resolution] = c
	}
	batch := make([]model.Candle, 0, len(p.pending))
	for _, pc := range p.pending {
		batch = append(batch, pc)
	}
	p.mu.Unlock()

	err := p.cb.Execute(func() error { return p.write(ctx, batch) })
	if err == nil {
		p.mu.Lock()
		for _, sent := range batch {
			if cur, ok := p.pending[sent.Resolution]; ok && cur.Timestamp == sent.Timestamp {
				delete(p.pending, sent.Resolution)
			}
		}
		p.mu.Unlock()
	}
	if p.OnPublish != nil {
		p.OnPublish(err)
	}
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", c.Resolution, err)
	}
	return nil
}

func (p *Publisher) write(ctx context.Context, batch []model.Candle) error {
	pipe := p.client.Pipeline()
	for i := range batch {
		c := &batch[i]
		data := string(c.JSON())
		pipe.Set(ctx, p.LatestKey(c.Resolution), data, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.StreamKey(c.Resolution),
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, p.Channel(c.Resolution), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Pending returns the number of parked candles waiting for Redis.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
