package model

import "time"

// Resolution is the bucket width of a candle series. The set is closed.
type Resolution string

const (
	Res1m Resolution = "1m"
	Res5m Resolution = "5m"
	Res1h Resolution = "1h"
)

// AllResolutions lists every supported resolution, finest first.
var AllResolutions = []Resolution{Res1m, Res5m, Res1h}

// ParseResolution converts a caller-supplied string into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if !r.Valid() {
		return "", &ValidationError{Field: "resolution", Value: s, Message: "Invalid interval"}
	}
	return r, nil
}

// Valid reports whether r is one of the supported resolutions.
func (r Resolution) Valid() bool {
	switch r {
	case Res1m, Res5m, Res1h:
		return true
	}
	return false
}

// Duration returns the bar width.
func (r Resolution) Duration() time.Duration {
	switch r {
	case Res1m:
		return time.Minute
	case Res5m:
		return 5 * time.Minute
	case Res1h:
		return time.Hour
	}
	return 0
}

func (r Resolution) String() string { return string(r) }
