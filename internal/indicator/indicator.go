// Package indicator computes MACD and RSI over candle closes.
//
// The building blocks (EMA, RollingMean, RSI, MACD) are streaming: each
// Update is O(1) and needs no history scan. The series functions and the
// Engine feed whole close series through them in chronological order.
package indicator

// Stream is an incremental indicator fed one value at a time.
type Stream interface {
	// Name returns the indicator name (e.g., "EMA_12", "RSI_14").
	Name() string

	// Update feeds the next value in chronological order.
	Update(v float64)

	// Value returns the current value. NaN when nothing is defined yet.
	Value() float64

	// Ready returns true once the stream has seen its warm-up window.
	Ready() bool

	// Reset clears all state for reuse.
	Reset()
}
