// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPositionNotFound   = errors.New("position not found")
	ErrOversell           = errors.New("sell quantity exceeds held quantity")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidLeverage    = errors.New("invalid leverage")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrDatabaseError      = errors.New("database error")
)

// InsufficientMarginError carries the margin amounts behind a rejected open.
type InsufficientMarginError struct {
	Required  float64
	Available float64
}

func (e *InsufficientMarginError) Error() string {
	return fmt.Sprintf("insufficient free margin: required %.2f, available %.2f", e.Required, e.Available)
}

func (e *InsufficientMarginError) Unwrap() error {
	return ErrInsufficientMargin
}

// NewInsufficientMarginError creates a new InsufficientMarginError.
func NewInsufficientMarginError(required, available float64) *InsufficientMarginError {
	return &InsufficientMarginError{Required: required, Available: available}
}

// InsufficientFundsError carries the cash amounts behind a rejected buy.
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %.2f, available %.2f", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewInsufficientFundsError creates a new InsufficientFundsError.
func NewInsufficientFundsError(required, available float64) *InsufficientFundsError {
	return &InsufficientFundsError{Required: required, Available: available}
}

// OversellError carries the quantities behind a rejected sell.
type OversellError struct {
	Symbol string
	Held   float64
	Sell   float64
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("cannot sell %.8g %s: only %.8g held", e.Sell, e.Symbol, e.Held)
}

func (e *OversellError) Unwrap() error {
	return ErrOversell
}

// NewOversellError creates a new OversellError.
func NewOversellError(symbol string, held, sell float64) *OversellError {
	return &OversellError{Symbol: symbol, Held: held, Sell: sell}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
