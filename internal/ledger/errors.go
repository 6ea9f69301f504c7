package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type UnsupportedSymbolError struct {
	Symbol string
}

func (e *UnsupportedSymbolError) Error() string {
	return fmt.Sprintf("symbol %s is not supported", e.Symbol)
}

type AccountNotFoundError struct {
	AccountID string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

type PositionAlreadyOpenError struct {
	Symbol string
}

func (e *PositionAlreadyOpenError) Error() string {
	return fmt.Sprintf("position in %s is already open, close it first", e.Symbol)
}

type NoOpenPositionError struct {
	Symbol string
}

func (e *NoOpenPositionError) Error() string {
	return fmt.Sprintf("no open position in %s", e.Symbol)
}

type PositionNotFoundError struct {
	PositionID string
}

func (e *PositionNotFoundError) Error() string {
	return fmt.Sprintf("position %s not found", e.PositionID)
}

type InvalidQuantityError struct {
	Quantity decimal.Decimal
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %s", e.Quantity)
}

type InvalidPriceError struct {
	Symbol string
	Price  decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("price of %s must be positive, got %s", e.Symbol, e.Price)
}

type InvalidSideError struct {
	Side string
}

func (e *InvalidSideError) Error() string {
	return fmt.Sprintf("side must be BUY or SELL, got %q", e.Side)
}

// IsRejection reports whether err is a refused trade request rather than a
// storage or transport failure.
func IsRejection(err error) bool {
	var (
		unsupported *UnsupportedSymbolError
		alreadyOpen *PositionAlreadyOpenError
		noOpen      *NoOpenPositionError
		quantity    *InvalidQuantityError
		price       *InvalidPriceError
		side        *InvalidSideError
	)
	return errors.As(err, &unsupported) ||
		errors.As(err, &alreadyOpen) ||
		errors.As(err, &noOpen) ||
		errors.As(err, &quantity) ||
		errors.As(err, &price) ||
		errors.As(err, &side)
}

// IsNotFound reports whether err names a missing account or position.
func IsNotFound(err error) bool {
	var (
		account  *AccountNotFoundError
		position *PositionNotFoundError
	)
	return errors.As(err, &account) || errors.As(err, &position)
}
