package indicator

import (
	"sort"

	"kline-service/internal/model"
)

// Engine turns candle series into indicator rows. It is stateless between
// calls and safe for concurrent use.
type Engine struct {
	MACD      MACDConfig
	RSIPeriod int
}

// NewEngine creates an engine with the given MACD spans and RSI period.
func NewEngine(macd MACDConfig, rsiPeriod int) *Engine {
	return &Engine{MACD: macd, RSIPeriod: rsiPeriod}
}

// DefaultEngine is MACD 12/26/9 and RSI 14.
func DefaultEngine() *Engine {
	return NewEngine(DefaultMACDConfig, 14)
}

// MACDLookback is the minimum number of candles ComputeMACD accepts.
func (e *Engine) MACDLookback() int { return e.MACD.Long }

// RSILookback is the minimum number of candles ComputeRSI accepts.
func (e *Engine) RSILookback() int { return e.RSIPeriod }

// ComputeMACD returns one row per candle, ascending by timestamp. The input
// may be in any order and is not modified.
func (e *Engine) ComputeMACD(candles []model.Candle) ([]model.MACDRow, error) {
	if len(candles) < e.MACDLookback() {
		return nil, &model.InsufficientDataError{Indicator: "MACD", Need: e.MACDLookback(), Have: len(candles)}
	}
	sorted := chronological(candles)
	macd, signal, hist := MACDSeries(closes(sorted), e.MACD)

	rows := make([]model.MACDRow, len(sorted))
	for i, c := range sorted {
		rows[i] = model.MACDRow{
			Timestamp: c.Timestamp,
			Close:     c.Close,
			MACD:      macd[i],
			Signal:    signal[i],
			Histogram: hist[i],
		}
	}
	return rows, nil
}

// ComputeRSI returns one row per candle, ascending by timestamp. The input
// may be in any order and is not modified.
func (e *Engine) ComputeRSI(candles []model.Candle) ([]model.RSIRow, error) {
	if len(candles) < e.RSILookback() {
		return nil, &model.InsufficientDataError{Indicator: "RSI", Need: e.RSILookback(), Have: len(candles)}
	}
	sorted := chronological(candles)
	rsi := RSISeries(closes(sorted), e.RSIPeriod)

	rows := make([]model.RSIRow, len(sorted))
	for i, c := range sorted {
		rows[i] = model.RSIRow{Timestamp: c.Timestamp, Close: c.Close, RSI: rsi[i]}
	}
	return rows, nil
}

func chronological(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
