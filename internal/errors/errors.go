// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrMarketClosed      = errors.New("market is closed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderRejected     = errors.New("order rejected")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionExists    = errors.New("position already exists for symbol")
	ErrNoBars            = errors.New("no bars available")
	ErrStaleBars         = errors.New("bars are stale")
	ErrTimeout           = errors.New("operation timed out")
	ErrDatabaseError     = errors.New("database error")
)

// ConfigError represents an invalid configuration. It is fatal at
// startup; the engine never starts with a partial configuration.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// DataError represents missing, stale, or malformed market data. The
// engine skips the current tick and retries on the next interval; a
// signal is never computed from incomplete data.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{DataType: dataType, Symbol: symbol, Message: message, Err: err}
}

// GatewayError represents a failure at the broker/market-data boundary,
// surfaced after the gateway's own retry policy is exhausted. Transient
// failures leave state unchanged and are retried next tick; persistent
// failures (auth, rejected credentials) stop the loop.
type GatewayError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "persistent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("gateway error [%s] %s: %v", kind, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(op string, transient bool, err error) *GatewayError {
	return &GatewayError{Op: op, Transient: transient, Err: err}
}

// IsTransient reports whether err is a transient gateway failure.
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}

// StateError represents a disagreement between local position state and
// the broker-reported state that could not be reconciled.
type StateError struct {
	Symbol  string
	Local   string
	Remote  string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state inconsistency [%s]: local=%s remote=%s: %s", e.Symbol, e.Local, e.Remote, e.Message)
}

// NewStateError creates a new StateError.
func NewStateError(symbol, local, remote, message string) *StateError {
	return &StateError{Symbol: symbol, Local: local, Remote: remote, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
