package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TradeValue is the signed notional of a fill on this side, positive for BUY.
func (s Side) TradeValue(price, quantity decimal.Decimal) decimal.Decimal {
	v := price.Mul(quantity)
	if s == Buy {
		return v
	}
	return v.Neg()
}

// PnL is the directional profit of moving from entry to price on quantity units.
func (s Side) PnL(entry, price, quantity decimal.Decimal) decimal.Decimal {
	if s == Buy {
		return price.Sub(entry).Mul(quantity)
	}
	return entry.Sub(price).Mul(quantity)
}

type Position struct {
	ID            string          `db:"id" json:"id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	Symbol        string          `db:"symbol" json:"symbol"`
	Side          Side            `db:"side" json:"side"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	EntryPrice    decimal.Decimal `db:"entry_price" json:"entry_price"`
	CurrentPrice  decimal.Decimal `db:"current_price" json:"current_price"`
	UnrealizedPnL decimal.Decimal `db:"unrealized_pnl" json:"unrealized_pnl"`
	Leverage      int             `db:"leverage" json:"leverage"`
	IsOpen        bool            `db:"is_open" json:"is_open"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}
