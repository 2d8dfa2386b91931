package indicator

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	// noLossRS stands in for gain/loss when the window has no losses.
	noLossRS = 100.0
	// neutralRSI is reported when RSI is undefined.
	neutralRSI = 50.0
)

// RSI is the relative strength index over simple rolling means of gains
// and losses. The first update has no delta, so its value is neutral.
// Values are clamped to [0, 100] and rounded to two decimals.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gains     *RollingMean
	losses    *RollingMean
	current   float64
}

// NewRSI creates an RSI with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewRollingMean(period),
		losses: NewRollingMean(period),
	}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(price float64) {
	r.count++

	delta := math.NaN()
	if r.count > 1 {
		delta = price - r.prevClose
	}
	r.prevClose = price

	gain, loss := math.NaN(), math.NaN()
	if !math.IsNaN(delta) {
		gain = math.Max(delta, 0)
		loss = math.Max(-delta, 0)
	}
	r.gains.Update(gain)
	r.losses.Update(loss)

	r.current = rsiValue(r.gains.Value(), r.losses.Value())
}

func (r *RSI) Value() float64 {
	if r.count == 0 {
		return math.NaN()
	}
	return r.current
}

func (r *RSI) Ready() bool { return r.count >= r.period }

func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.current = 0
	r.gains.Reset()
	r.losses.Reset()
}

func rsiValue(avgGain, avgLoss float64) float64 {
	rs := noLossRS
	if avgLoss != 0 {
		rs = avgGain / avgLoss // NaN propagates
	}
	v := 100 - 100/(1+rs)
	if math.IsNaN(v) {
		return neutralRSI
	}
	v = math.Min(math.Max(v, 0), 100)
	return round2(v)
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// RSISeries computes RSI for closes in chronological order.
// No minimum length is enforced; a single close yields 50.
func RSISeries(closes []float64, period int) []float64 {
	r := NewRSI(period)
	out := make([]float64, len(closes))
	for i, c := range closes {
		r.Update(c)
		out[i] = r.Value()
	}
	return out
}
