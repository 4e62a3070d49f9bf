package connectivity

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by DirHandler for paths it cannot serve.
var ErrNotFound = errors.New("connectivity: resource not found")

// ErrStatus is returned when the backend answers with a non-2xx status.
type ErrStatus struct {
	Path string
	Code int
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("connectivity: %s -> %d", e.Path, e.Code)
}

// ErrCircuitOpen is returned when the circuit breaker is open, rejecting the
// call without reaching the backend.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler panicked: %v", e.Value)
}

// IsClientError reports whether err is a 4xx answer. Retrying those is
// pointless.
func IsClientError(err error) bool {
	var se *ErrStatus
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}
