package model

import "github.com/shopspring/decimal"

type Metrics struct {
	AccountID          string          `json:"account_id"`
	AvailableCash      decimal.Decimal `json:"available_cash"`
	CryptoValue        decimal.Decimal `json:"crypto_value"`
	AccountValue       decimal.Decimal `json:"account_value"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	TotalReturnPercent decimal.Decimal `json:"total_return_percent"`
	SharpeRatio        decimal.Decimal `json:"sharpe_ratio"`
	InitialBalance     decimal.Decimal `json:"initial_balance"`
	Positions          []Position      `json:"positions"`
}
