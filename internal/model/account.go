package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single trading identity of a deployment.
// AccountValue, CryptoValue, TotalReturnPercent and SharpeRatio are a cache
// rewritten on every recompute; positions and orders are the source of truth.
type Account struct {
	ID                 string          `db:"id" json:"id"`
	InitialBalance     decimal.Decimal `db:"initial_balance" json:"initial_balance"`
	CurrentBalance     decimal.Decimal `db:"current_balance" json:"current_balance"`
	TotalPnL           decimal.Decimal `db:"total_pnl" json:"total_pnl"`
	AccountValue       decimal.Decimal `db:"account_value" json:"account_value"`
	CryptoValue        decimal.Decimal `db:"crypto_value" json:"crypto_value"`
	TotalReturnPercent decimal.Decimal `db:"total_return_percent" json:"total_return_percent"`
	SharpeRatio        decimal.Decimal `db:"sharpe_ratio" json:"sharpe_ratio"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}
