package measure

import (
	"context"
	"errors"
)

// ErrTimeout indicates the device test did not finish within its budget.
var ErrTimeout = errors.New("device test timed out")

// ErrTransport indicates the measurement service could not be reached
// or returned an unusable response.
var ErrTransport = errors.New("measurement transport error")

// ErrDeviceBusy indicates the device is held by another process.
var ErrDeviceBusy = errors.New("device busy")

// Reason is the classified cause of a failed device test
type Reason string

const (
	ReasonTimeout   Reason = "timeout"
	ReasonTransport Reason = "transport_error"
	ReasonBusy      Reason = "device_busy"
)

// Classify maps a Test error to its failure reason.
// Unknown errors count as transport failures.
func Classify(err error) Reason {
	switch {
	case errors.Is(err, ErrDeviceBusy):
		return ReasonBusy
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonTransport
	}
}

// retryableError marks a transport failure worth another attempt
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}
