package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Candle represents one OHLCV bar for a single resolution.
// Timestamp is the bar open time in milliseconds since the Unix epoch.
type Candle struct {
	Resolution Resolution `json:"resolution"`
	Timestamp  int64      `json:"timestamp"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     float64    `json:"volume"`
}

// CandleKey is the identity of a candle. Two resolutions may share a
// timestamp, so the timestamp alone is never a key.
type CandleKey struct {
	Resolution Resolution
	Timestamp  int64
}

// Key returns the (resolution, timestamp) identity of this candle.
func (c *Candle) Key() CandleKey {
	return CandleKey{Resolution: c.Resolution, Timestamp: c.Timestamp}
}

// OpenTime returns the bar open time as a UTC time.Time.
func (c *Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Validate checks the price and volume invariants of a market candle.
func (c *Candle) Validate() error {
	if !c.Resolution.Valid() {
		return &ValidationError{Field: "resolution", Value: string(c.Resolution), Message: "unsupported resolution"}
	}
	if c.Timestamp < 0 {
		return &ValidationError{Field: "timestamp", Value: strconv.FormatInt(c.Timestamp, 10), Message: "must not be negative"}
	}
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "price", Value: strconv.FormatInt(c.Timestamp, 10), Message: "prices and volume must be finite"}
		}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return &ValidationError{Field: "price", Value: strconv.FormatInt(c.Timestamp, 10), Message: "prices must be positive"}
	}
	if c.Volume < 0 {
		return &ValidationError{Field: "volume", Value: strconv.FormatInt(c.Timestamp, 10), Message: "must not be negative"}
	}
	return nil
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// MACDRow is one derived MACD point. Never persisted.
type MACDRow struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"macd_signal"`
	Histogram float64 `json:"macd_histogram"`
}

// RSIRow is one derived RSI point, rounded to two decimals. Never persisted.
type RSIRow struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
	RSI       float64 `json:"rsi"`
}
