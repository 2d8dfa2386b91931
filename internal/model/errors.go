package model

import (
	"errors"
	"fmt"
)

// FetchKind classifies why an upstream fetch failed.
type FetchKind string

const (
	FetchNetwork     FetchKind = "network"
	FetchStatus      FetchKind = "status"
	FetchRateLimited FetchKind = "rate_limited"
	FetchMalformed   FetchKind = "malformed"
	FetchCircuitOpen FetchKind = "circuit_open"
)

// FetchError reports a failed market-data fetch. It is never fatal: the
// ingestor logs it and retries on the next cycle.
type FetchError struct {
	Kind       FetchKind
	Resolution Resolution
	Status     int // HTTP status, 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s (%s, status %d): %v", e.Resolution, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Resolution, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError wraps an I/O failure of the candle store.
type StorageError struct {
	Op  string // e.g. "upsert", "query", "retain"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError reports bad caller input. Surfaced as HTTP 400.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientDataError reports that too few candles exist to compute an
// indicator. It is a caller-visible precondition, surfaced as HTTP 400.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("Insufficient data for %s calculation", e.Indicator)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientData reports whether err is (or wraps) an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
