package domain

import "github.com/pkg/errors"

var (
	// ErrInsufficientBalance is returned when an order would drive a balance negative.
	// Callers treat it as a no-op and never retry.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDataUnavailable marks fetch or feature failures; the symbol is skipped for the tick.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrExecutionFailure marks a live order that failed after the client's own retries.
	ErrExecutionFailure = errors.New("execution failure")
	// ErrPersistenceFailure marks a failed disk write; in-memory state stays authoritative.
	ErrPersistenceFailure = errors.New("persistence failure")

	ErrInvalidSymbol   = errors.New("invalid symbol, expected BASE/QUOTE")
	ErrInvalidSide     = errors.New("invalid order side")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
