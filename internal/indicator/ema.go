package indicator

import (
	"math"
	"strconv"
)

// EMA is an exponential moving average seeded with the first value:
// ema[0] = v[0], ema[i] = alpha*v[i] + (1-alpha)*ema[i-1], alpha = 2/(span+1).
type EMA struct {
	span    int
	alpha   float64
	current float64
	count   int
}

// NewEMA creates an EMA with the given span.
func NewEMA(span int) *EMA {
	return &EMA{
		span:  span,
		alpha: Alpha(span),
	}
}

// Alpha is the smoothing factor for a span.
func Alpha(span int) float64 {
	return 2.0 / float64(span+1)
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.span) }

func (e *EMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	e.current = e.alpha*v + (1-e.alpha)*e.current
}

func (e *EMA) Value() float64 {
	if e.count == 0 {
		return math.NaN()
	}
	return e.current
}

// Ready reports whether span values have been seen. The value is defined
// from the first update; Ready marks the end of the warm-up.
func (e *EMA) Ready() bool { return e.count >= e.span }

func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
