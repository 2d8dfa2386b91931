package indicator

import (
	"math"
	"strconv"
)

// MACDConfig holds the MACD spans.
type MACDConfig struct {
	Short  int
	Long   int
	Signal int
}

// DefaultMACDConfig is 12/26/9.
var DefaultMACDConfig = MACDConfig{Short: 12, Long: 26, Signal: 9}

// MACD tracks the short and long EMAs of closes and the signal EMA of
// their difference.
type MACD struct {
	cfg    MACDConfig
	short  *EMA
	long   *EMA
	signal *EMA
}

// NewMACD creates a MACD stream.
func NewMACD(cfg MACDConfig) *MACD {
	return &MACD{
		cfg:    cfg,
		short:  NewEMA(cfg.Short),
		long:   NewEMA(cfg.Long),
		signal: NewEMA(cfg.Signal),
	}
}

func (m *MACD) Name() string {
	return "MACD_" + strconv.Itoa(m.cfg.Short) + "_" + strconv.Itoa(m.cfg.Long) + "_" + strconv.Itoa(m.cfg.Signal)
}

func (m *MACD) Update(price float64) {
	m.short.Update(price)
	m.long.Update(price)
	m.signal.Update(m.short.Value() - m.long.Value())
}

// Value returns the MACD line.
func (m *MACD) Value() float64 {
	return m.short.Value() - m.long.Value()
}

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns MACD minus signal.
func (m *MACD) Histogram() float64 {
	v := m.Value()
	if math.IsNaN(v) {
		return v
	}
	return v - m.signal.Value()
}

func (m *MACD) Ready() bool { return m.long.Ready() }

func (m *MACD) Reset() {
	m.short.Reset()
	m.long.Reset()
	m.signal.Reset()
}

// MACDSeries computes the MACD, signal and histogram lines for closes in
// chronological order. Each output has the length of closes.
func MACDSeries(closes []float64, cfg MACDConfig) (macd, signal, hist []float64) {
	m := NewMACD(cfg)
	macd = make([]float64, len(closes))
	signal = make([]float64, len(closes))
	hist = make([]float64, len(closes))
	for i, c := range closes {
		m.Update(c)
		macd[i] = m.Value()
		signal[i] = m.Signal()
		hist[i] = m.Histogram()
	}
	return macd, signal, hist
}
