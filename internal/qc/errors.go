package qc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPipeline is returned when a request names a pipeline that
	// was not loaded at startup.
	ErrUnknownPipeline = errors.New("pipeline not recognised")
	// ErrUnknownCheck is returned when a pipeline step names a check with
	// no registered capability.
	ErrUnknownCheck = errors.New("check not recognised")
	// ErrUnknownSource is returned when a request names a data source with
	// no connector in the data switch.
	ErrUnknownSource = errors.New("data source not registered")
	// ErrUnsupportedSpaceSpec is returned by connectors that cannot serve
	// the requested spatial restriction.
	ErrUnsupportedSpaceSpec = errors.New("space spec not supported by this data source")
	// ErrDeadlineExceeded is returned when the whole-request cancellation
	// fires; no partial response is delivered.
	ErrDeadlineExceeded = errors.New("request deadline exceeded")
)

// ValidationError rejects a request before any data is fetched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// SourceError is a connector failure affecting the primary target set.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("data source %q: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TransportError is a transient failure reaching a remote runner. The
// dispatcher retries these; check-logic failures are never wrapped in it.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a retryable transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// CheckError is a non-retryable failure to evaluate a whole invocation,
// such as an unregistered check capability on the executing runner.
type CheckError struct {
	Check string
	Err   error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check %q: %v", e.Check, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }
