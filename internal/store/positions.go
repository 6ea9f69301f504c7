package store

import (
	"context"
	"fmt"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	Open   PositionStatus = "open"
	Closed PositionStatus = "closed"
	All    PositionStatus = "all"
)

func ParsePositionStatus(s string) (PositionStatus, error) {
	switch PositionStatus(s) {
	case "":
		return Open, nil
	case Open, Closed, All:
		return PositionStatus(s), nil
	default:
		return "", fmt.Errorf("unknown position status %q", s)
	}
}

const (
	_positionColumns = `id, account_id, symbol, side, quantity, entry_price, current_price,
		unrealized_pnl, leverage, is_open, created_at, updated_at`

	_queryPosition      = "SELECT " + _positionColumns + " FROM positions WHERE id = ?"
	_queryOpenPosition  = "SELECT " + _positionColumns + " FROM positions WHERE account_id = ? AND symbol = ? AND is_open"
	_queryOpenPositions = "SELECT " + _positionColumns + " FROM positions WHERE account_id = ? AND is_open ORDER BY seq"
	_queryPositions     = "SELECT " + _positionColumns + " FROM positions WHERE account_id = ? ORDER BY seq"
	_queryClosed        = "SELECT " + _positionColumns + " FROM positions WHERE account_id = ? AND NOT is_open ORDER BY seq"

	_insertPosition = `INSERT INTO positions (
							id, account_id, symbol, side, quantity, entry_price, current_price,
							unrealized_pnl, leverage, is_open, created_at, updated_at
						) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_updatePositionQuantity = "UPDATE positions SET quantity = ?, unrealized_pnl = ?, updated_at = ? WHERE id = ? AND is_open"
	_closePosition          = "UPDATE positions SET is_open = ?, updated_at = ? WHERE id = ? AND is_open"
	_updatePositionPrice    = "UPDATE positions SET current_price = ?, unrealized_pnl = ?, updated_at = ? WHERE id = ?"
)

// InsertPosition fails with ErrConflict when the account already holds an open
// position in the symbol.
func (q *Queries) InsertPosition(ctx context.Context, p model.Position) error {
	if _, err := q.exec(ctx, _insertPosition,
		p.ID,
		p.AccountID,
		p.Symbol,
		p.Side,
		p.Quantity,
		p.EntryPrice,
		p.CurrentPrice,
		p.UnrealizedPnL,
		p.Leverage,
		p.IsOpen,
		p.CreatedAt,
		p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%w: can't insert position", err)
	}
	return nil
}

func (q *Queries) GetPosition(ctx context.Context, id string) (model.Position, error) {
	var p model.Position
	if err := q.get(ctx, &p, _queryPosition, id); err != nil {
		return p, err
	}
	return p, nil
}

func (q *Queries) GetPositionForUpdate(ctx context.Context, id string) (model.Position, error) {
	var p model.Position
	if err := q.get(ctx, &p, _queryPosition+q.forUpdate(), id); err != nil {
		return p, err
	}
	return p, nil
}

// GetOpenPosition returns ErrNotFound when nothing is open for the symbol.
func (q *Queries) GetOpenPosition(ctx context.Context, accountID, symbol string) (model.Position, error) {
	var p model.Position
	if err := q.get(ctx, &p, _queryOpenPosition+q.forUpdate(), accountID, symbol); err != nil {
		return p, err
	}
	return p, nil
}

func (q *Queries) ListOpenPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	return q.ListPositions(ctx, accountID, Open)
}

func (q *Queries) ListPositions(ctx context.Context, accountID string, status PositionStatus) ([]model.Position, error) {
	query := _queryOpenPositions
	switch status {
	case Closed:
		query = _queryClosed
	case All:
		query = _queryPositions
	}

	positions := make([]model.Position, 0)
	if err := q.selectAll(ctx, &positions, query, accountID); err != nil {
		return nil, fmt.Errorf("%w: can't query positions", err)
	}
	return positions, nil
}

// UpdatePositionQuantity shrinks an open position. The caller passes the
// unrealized PnL of what remains.
func (q *Queries) UpdatePositionQuantity(ctx context.Context, id string, quantity, unrealizedPnL decimal.Decimal, now time.Time) error {
	return q.updatePosition(ctx, "quantity", _updatePositionQuantity, quantity, unrealizedPnL, now, id)
}

// ClosePosition flips is_open and leaves quantity at its last value.
func (q *Queries) ClosePosition(ctx context.Context, id string, now time.Time) error {
	return q.updatePosition(ctx, "open flag", _closePosition, false, now, id)
}

func (q *Queries) UpdatePositionPrice(ctx context.Context, id string, price, unrealizedPnL decimal.Decimal, now time.Time) error {
	return q.updatePosition(ctx, "price", _updatePositionPrice, price, unrealizedPnL, now, id)
}

func (q *Queries) updatePosition(ctx context.Context, what, query string, args ...interface{}) error {
	n, err := q.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: can't update position %s", err, what)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
