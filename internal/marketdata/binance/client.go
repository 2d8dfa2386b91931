// Package binance fetches klines from the Binance spot REST API.
// API Doc: https://developers.binance.com/docs/binance-spot-api-docs/rest-api/market-data-endpoints#klinecandlestick-data
//
// Response format (one array per bar, trailing fields ignored):
//
//	[
//	  [1499040000000, "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815", ...],
//	  ...
//	]
package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"kline-service/internal/breaker"
	"kline-service/internal/model"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"

	// maxLimit is the largest page the klines endpoint serves.
	maxLimit = 1000

	// maxBodyBytes bounds how much of an untrusted response is read.
	maxBodyBytes = 8 << 20
)

var errPaused = errors.New("upstream asked us to back off")

// Config configures the Binance client.
type Config struct {
	BaseURL        string
	Symbol         string
	RequestTimeout time.Duration
	RatePerSec     float64
	Burst          int
	HTTPClient     *http.Client     // optional, defaults to one with RequestTimeout
	Breaker        *breaker.Breaker // optional, defaults to 5 failures / 30s
}

// Client fetches klines for a single symbol.
type Client struct {
	baseURL string
	symbol  string
	http    *http.Client
	limiter *rate.Limiter
	cb      *breaker.Breaker
	log     *slog.Logger

	mu          sync.Mutex
	pausedUntil time.Time

	now func() time.Time
}

// New builds a Client, filling in defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}
	cb := cfg.Breaker
	if cb == nil {
		cb = breaker.New("binance", 5, 30*time.Second)
	}
	if cb.IsFailure == nil {
		cb.IsFailure = upstreamFailure
	}
	return &Client{
		baseURL: cfg.BaseURL,
		symbol:  cfg.Symbol,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cb:      cb,
		log:     slog.Default().With("component", "binance", "symbol", cfg.Symbol),
		now:     time.Now,
	}
}

// Symbol returns the instrument this client fetches.
func (c *Client) Symbol() string { return c.symbol }

// PausedUntil returns the end of the back-off requested by the last
// rate-limit response, or the zero time.
func (c *Client) PausedUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedUntil
}

// FetchKlines returns up to limit of the most recent candles for res,
// ascending by open time. Any malformed row fails the whole response.
func (c *Client) FetchKlines(ctx context.Context, res model.Resolution, limit int) ([]model.Candle, error) {
	if !res.Valid() {
		return nil, &model.ValidationError{Field: "resolution", Value: string(res), Message: "Invalid interval"}
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	if until := c.PausedUntil(); c.now().Before(until) {
		return nil, &model.FetchError{Kind: model.FetchRateLimited, Resolution: res, Err: errPaused}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.FetchError{Kind: model.FetchNetwork, Resolution: res, Err: err}
	}

	var candles []model.Candle
	err := c.cb.Execute(func() error {
		var ferr error
		candles, ferr = c.fetch(ctx, res, limit)
		return ferr
	})
	if errors.Is(err, breaker.ErrOpen) {
		return nil, &model.FetchError{Kind: model.FetchCircuitOpen, Resolution: res, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return candles, nil
}

func (c *Client) fetch(ctx context.Context, res model.Resolution, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("interval", string(res))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + klinesPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchNetwork, Resolution: res, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchNetwork, Resolution: res, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		wait := retryAfter(resp.Header.Get("Retry-After"))
		c.pause(wait)
		c.log.Warn("rate limited", "resolution", res, "status", resp.StatusCode, "retry_after", wait)
		return nil, &model.FetchError{Kind: model.FetchRateLimited, Resolution: res, Status: resp.StatusCode,
			Err: fmt.Errorf("retry after %s", wait)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &model.FetchError{Kind: model.FetchStatus, Resolution: res, Status: resp.StatusCode,
			Err: fmt.Errorf("unexpected status: %s", body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchNetwork, Resolution: res, Status: resp.StatusCode, Err: err}
	}

	candles, err := decodeKlines(body, res)
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchMalformed, Resolution: res, Status: resp.StatusCode, Err: err}
	}

	c.log.Debug("fetched klines", "resolution", res, "count", len(candles), "took", c.now().Sub(start))
	return candles, nil
}

// upstreamFailure reports whether err says something about Binance's
// health. Rate limiting is handled by the pause and a cancelled caller
// says nothing about the upstream.
func upstreamFailure(err error) bool {
	var fe *model.FetchError
	if errors.As(err, &fe) && fe.Kind == model.FetchRateLimited {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) pause(d time.Duration) {
	c.mu.Lock()
	c.pausedUntil = c.now().Add(d)
	c.mu.Unlock()
}

// retryAfter parses a Retry-After header given in seconds. Missing or
// unparseable values fall back to one minute.
func retryAfter(h string) time.Duration {
	if n, err := strconv.Atoi(h); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return time.Minute
}
