// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data availability errors. These always reach the caller.
	ErrEmptyPriceSeries         = &Error{Code: "EMPTY_PRICE_SERIES", Message: "price series is empty"}
	ErrNoPriceData              = &Error{Code: "NO_PRICE_DATA", Message: "no price data available"}
	ErrNoPriorPriceData         = &Error{Code: "NO_PRIOR_PRICE_DATA", Message: "no price data before evaluation date"}
	ErrNoPriceForEvaluationDate = &Error{Code: "NO_PRICE_FOR_EVALUATION_DATE", Message: "no price data for evaluation date"}

	// Strategy configuration errors
	ErrInvalidSpacingConfig = &Error{Code: "INVALID_SPACING_CONFIG", Message: "minimum spacing days must be positive"}
	ErrInvalidTriggerConfig = &Error{Code: "INVALID_TRIGGER_CONFIG", Message: "trigger fraction must be in (0, 1]"}

	// Collector errors
	ErrCollectorFailed = &Error{Code: "COLLECTOR_FAILED", Message: "collector failed"}

	// Persistence errors. Logged and reported as booleans, never returned by the store.
	ErrPersistenceWrite      = &Error{Code: "PERSISTENCE_WRITE_FAILURE", Message: "failed to persist state"}
	ErrPersistenceCorruption = &Error{Code: "PERSISTENCE_CORRUPTION", Message: "persisted state is corrupted"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
