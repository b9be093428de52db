package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicate         = errors.New("duplicate resource")
	ErrInvalidInput      = errors.New("invalid input data")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTotalMismatch     = errors.New("total amount mismatch")
)

// StockError reports how far a requested quantity exceeds available stock.
type StockError struct {
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d, Requested: %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// TotalMismatchError reports the server-computed total against the one the
// caller claimed.
type TotalMismatchError struct {
	Calculated float64
	Provided   float64
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total amount mismatch. Calculated: %.2f, Provided: %.2f",
		e.Calculated, e.Provided)
}

func (e *TotalMismatchError) Unwrap() error { return ErrTotalMismatch }
