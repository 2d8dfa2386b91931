package indicator

import (
	"math"
	"strconv"
)

// RollingMean is the mean over the trailing window of the last period
// updates. NaN updates occupy a slot but are skipped by the mean, and the
// window shrinks to the updates seen so far during warm-up. The mean is
// recomputed from the window on every read, so a window of zeros averages
// to exactly 0.
type RollingMean struct {
	period int
	buf    []float64
	idx    int
	count  int
}

// NewRollingMean creates a rolling mean with the given window.
func NewRollingMean(period int) *RollingMean {
	if period < 1 {
		period = 1
	}
	return &RollingMean{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *RollingMean) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *RollingMean) Update(v float64) {
	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++
}

// Value is the mean of the defined values in the window, NaN if none.
func (s *RollingMean) Value() float64 {
	var sum float64
	defined := 0
	for _, v := range s.buf[:min(s.count, s.period)] {
		if !math.IsNaN(v) {
			sum += v
			defined++
		}
	}
	if defined == 0 {
		return math.NaN()
	}
	return sum / float64(defined)
}

func (s *RollingMean) Ready() bool { return s.count >= s.period }

func (s *RollingMean) Reset() {
	s.idx = 0
	s.count = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
