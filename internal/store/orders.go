package store

import (
	"context"
	"fmt"

	"github.com/STTM-NSU/paper-trader/internal/model"
)

const (
	_orderColumns = `id, account_id, agent_invocation_id, position_id, symbol, side, order_type,
		quantity, price, filled_price, status, realized_pnl, trade_value, metadata, created_at`

	_queryOrders        = "SELECT " + _orderColumns + " FROM orders WHERE account_id = ? ORDER BY seq"
	_queryClosingOrders = "SELECT " + _orderColumns + ` FROM orders
							WHERE account_id = ? AND status = ? AND realized_pnl IS NOT NULL
							ORDER BY seq`
	_queryCompletedTrades = `SELECT
								o.id AS order_id,
								o.account_id,
								o.symbol,
								p.side AS position_side,
								p.entry_price,
								o.filled_price AS exit_price,
								o.quantity,
								o.realized_pnl,
								p.created_at AS opened_at,
								o.created_at AS completed_at
							FROM orders o
								JOIN positions p ON p.id = o.position_id
							WHERE o.account_id = ? AND o.realized_pnl IS NOT NULL
							ORDER BY o.seq`

	_insertOrder = `INSERT INTO orders (
						id, account_id, agent_invocation_id, position_id, symbol, side, order_type,
						quantity, price, filled_price, status, realized_pnl, trade_value, metadata, created_at
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

func (q *Queries) InsertOrder(ctx context.Context, o model.Order) error {
	if _, err := q.exec(ctx, _insertOrder,
		o.ID,
		o.AccountID,
		o.AgentInvocationID,
		o.PositionID,
		o.Symbol,
		o.Side,
		o.OrderType,
		o.Quantity,
		o.Price,
		o.FilledPrice,
		o.Status,
		o.RealizedPnL,
		o.TradeValue,
		o.Metadata,
		o.CreatedAt,
	); err != nil {
		return fmt.Errorf("%w: can't insert order", err)
	}
	return nil
}

// ListClosingOrders returns the filled orders that booked realized PnL, in the
// order they were written.
func (q *Queries) ListClosingOrders(ctx context.Context, accountID string) ([]model.Order, error) {
	orders := make([]model.Order, 0)
	if err := q.selectAll(ctx, &orders, _queryClosingOrders, accountID, model.Filled); err != nil {
		return nil, fmt.Errorf("%w: can't query closing orders", err)
	}
	return orders, nil
}

func (q *Queries) ListOrders(ctx context.Context, accountID string) ([]model.Order, error) {
	orders := make([]model.Order, 0)
	if err := q.selectAll(ctx, &orders, _queryOrders, accountID); err != nil {
		return nil, fmt.Errorf("%w: can't query orders", err)
	}
	return orders, nil
}

func (q *Queries) ListCompletedTrades(ctx context.Context, accountID string) ([]model.CompletedTrade, error) {
	trades := make([]model.CompletedTrade, 0)
	if err := q.selectAll(ctx, &trades, _queryCompletedTrades, accountID); err != nil {
		return nil, fmt.Errorf("%w: can't query completed trades", err)
	}
	return trades, nil
}
