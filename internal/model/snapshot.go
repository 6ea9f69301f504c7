package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountSnapshot struct {
	ID                 string          `db:"id" json:"id"`
	AccountID          string          `db:"account_id" json:"account_id"`
	AccountValue       decimal.Decimal `db:"account_value" json:"account_value"`
	CurrentBalance     decimal.Decimal `db:"current_balance" json:"current_balance"`
	CryptoValue        decimal.Decimal `db:"crypto_value" json:"crypto_value"`
	TotalPnL           decimal.Decimal `db:"total_pnl" json:"total_pnl"`
	TotalReturnPercent decimal.Decimal `db:"total_return_percent" json:"total_return_percent"`
	SharpeRatio        decimal.Decimal `db:"sharpe_ratio" json:"sharpe_ratio"`
	SnapshotAt         time.Time       `db:"snapshot_at" json:"snapshot_at"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

// TimelinePoint is the account value of every account at one instant.
type TimelinePoint struct {
	Timestamp time.Time                  `json:"timestamp"`
	Accounts  map[string]decimal.Decimal `json:"accounts"`
}
