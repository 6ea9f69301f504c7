package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	Market OrderType = "MARKET"
)

type OrderStatus string

const (
	Pending OrderStatus = "PENDING"
	Filled  OrderStatus = "FILLED"
)

// Order is an append-only fill record.
type Order struct {
	ID                string              `db:"id" json:"id"`
	AccountID         string              `db:"account_id" json:"account_id"`
	AgentInvocationID *string             `db:"agent_invocation_id" json:"agent_invocation_id,omitempty"`
	PositionID        *string             `db:"position_id" json:"position_id,omitempty"`
	Symbol            string              `db:"symbol" json:"symbol"`
	Side              Side                `db:"side" json:"side"`
	OrderType         OrderType           `db:"order_type" json:"order_type"`
	Quantity          decimal.Decimal     `db:"quantity" json:"quantity"`
	Price             decimal.Decimal     `db:"price" json:"price"`
	FilledPrice       decimal.Decimal     `db:"filled_price" json:"filled_price"`
	Status            OrderStatus         `db:"status" json:"status"`
	RealizedPnL       decimal.NullDecimal `db:"realized_pnl" json:"realized_pnl"`
	TradeValue        decimal.Decimal     `db:"trade_value" json:"trade_value"`
	Metadata          *string             `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}

// CompletedTrade is a closing order joined with the position it closed.
type CompletedTrade struct {
	OrderID       string          `db:"order_id" json:"id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	Symbol        string          `db:"symbol" json:"symbol"`
	PositionSide  Side            `db:"position_side" json:"side"`
	EntryPrice    decimal.Decimal `db:"entry_price" json:"entry_price"`
	ExitPrice     decimal.Decimal `db:"exit_price" json:"exit_price"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	RealizedPnL   decimal.Decimal `db:"realized_pnl" json:"net_pnl"`
	OpenedAt      time.Time       `db:"opened_at" json:"opened_at"`
	CompletedAt   time.Time       `db:"completed_at" json:"completed_at"`
	NotionalEntry decimal.Decimal `db:"-" json:"notional_entry"`
	NotionalExit  decimal.Decimal `db:"-" json:"notional_exit"`
	HoldingTime   string          `db:"-" json:"holding_time"`
}
