// Package errs defines the error taxonomy shared across the kairos core.
// Callers classify failures with errors.As against the typed errors here and
// with errors.Is against the sentinels.
package errs

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned by indicator computations when the trailing
// window is shorter than the required period.
var ErrInsufficientData = errors.New("insufficient data")

// ErrRejected is wrapped by the simulated exchange when an intent is refused
// for a recoverable reason (zero quantity, below minimum trade amount).
var ErrRejected = errors.New("intent rejected")

// ErrCircuitOpen is returned by the circuit breaker while it is failing fast.
var ErrCircuitOpen = errors.New("circuit open")

// ConfigError reports an invalid or out-of-range run parameter. It is raised
// before any simulation starts and always names the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataError reports missing or unusable price history for a symbol. Whether a
// DataError aborts the run or skips the symbol is decided per strategy family.
type DataError struct {
	Symbol string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data: symbol %q: %s", e.Symbol, e.Reason)
}

// NewDataError creates a DataError for the given symbol.
func NewDataError(symbol, format string, args ...any) *DataError {
	return &DataError{Symbol: symbol, Reason: fmt.Sprintf(format, args...)}
}

// InvariantViolation reports an attempted fill that would corrupt cash or
// position bookkeeping. It is fatal: the run aborts and its partial ledger is
// discarded, because the condition indicates an upstream sizing bug rather
// than a market outcome.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

// NewInvariantViolation creates an InvariantViolation for the given operation.
func NewInvariantViolation(op, format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ExternalError reports a data-provider or connectivity failure after retries
// were exhausted. Live mode only.
type ExternalError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// NewExternalError wraps an upstream failure with the operation name and
// how many attempts were made.
func NewExternalError(op string, attempts int, err error) *ExternalError {
	return &ExternalError{Op: op, Attempts: attempts, Err: err}
}
