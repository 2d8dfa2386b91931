package api

import "kline-service/internal/model"

// CandleOut is the wire shape of a raw candle. Volume is stored but not
// served.
type CandleOut struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

func newCandleOut(c model.Candle) CandleOut {
	return CandleOut{
		Timestamp: c.Timestamp,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
	}
}
