package ledger

import (
	"context"
	"math"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/shopspring/decimal"
)

var _hundred = decimal.NewFromInt(100)

// GetAccountMetrics recomputes the metrics from positions and orders, rewrites
// the cached account fields and returns them.
func (l *Ledger) GetAccountMetrics(ctx context.Context, accountID string) (model.Metrics, error) {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	var m model.Metrics
	err := l.store.InTx(ctx, func(tx *store.Tx) error {
		account, err := getAccount(ctx, tx.Queries, accountID, true)
		if err != nil {
			return err
		}
		m, err = recompute(ctx, tx.Queries, account)
		return err
	})
	if err != nil {
		return model.Metrics{}, err
	}
	return m, nil
}

func recompute(ctx context.Context, q *store.Queries, account model.Account) (model.Metrics, error) {
	positions, err := q.ListOpenPositions(ctx, account.ID)
	if err != nil {
		return model.Metrics{}, err
	}
	closing, err := q.ListClosingOrders(ctx, account.ID)
	if err != nil {
		return model.Metrics{}, err
	}

	m := ComputeMetrics(account, positions, closing)
	if err := q.UpdateAccountMetrics(ctx, account.ID, m); err != nil {
		return model.Metrics{}, err
	}
	return m, nil
}

// ComputeMetrics derives the account metrics. positions are the open positions,
// closing the orders carrying realized PnL in the order they were filled.
func ComputeMetrics(account model.Account, positions []model.Position, closing []model.Order) model.Metrics {
	unrealized := decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	unrealized = round(unrealized)
	accountValue := account.CurrentBalance.Add(unrealized)

	totalReturn := decimal.Zero
	if account.InitialBalance.IsPositive() {
		totalReturn = accountValue.Sub(account.InitialBalance).
			Div(account.InitialBalance).
			Mul(_hundred)
	}

	return model.Metrics{
		AccountID:          account.ID,
		AvailableCash:      account.CurrentBalance,
		CryptoValue:        unrealized,
		AccountValue:       accountValue,
		TotalPnL:           account.TotalPnL,
		TotalReturnPercent: round(totalReturn),
		SharpeRatio:        round(SharpeRatio(account.InitialBalance, closing)),
		InitialBalance:     account.InitialBalance,
		Positions:          positions,
	}
}

// _sharpePrecision keeps tiny but non-zero variances from rounding to zero
// under the default 16 digit division.
const _sharpePrecision = 40

// SharpeRatio is mean over population standard deviation of the cumulative
// return after each closing order, with a zero risk-free rate. It is zero when
// there is nothing to measure or the series is flat.
func SharpeRatio(initialBalance decimal.Decimal, closing []model.Order) decimal.Decimal {
	if len(closing) == 0 || !initialBalance.IsPositive() {
		return decimal.Zero
	}

	returns := make([]decimal.Decimal, 0, len(closing))
	cumulative := decimal.Zero
	for _, o := range closing {
		if o.RealizedPnL.Valid {
			cumulative = cumulative.Add(o.RealizedPnL.Decimal)
		}
		returns = append(returns, cumulative.DivRound(initialBalance, _sharpePrecision))
	}

	n := decimal.NewFromInt(int64(len(returns)))
	mean := decimal.Sum(decimal.Zero, returns...).DivRound(n, _sharpePrecision)

	variance := decimal.Zero
	for _, r := range returns {
		diff := r.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.DivRound(n, _sharpePrecision)
	if variance.IsZero() {
		return decimal.Zero
	}

	stddev := math.Sqrt(variance.InexactFloat64())
	if stddev == 0 || math.IsNaN(stddev) || math.IsInf(stddev, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(mean.InexactFloat64() / stddev)
}
