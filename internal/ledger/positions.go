package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OpenRequest struct {
	AccountID string
	Symbol    string
	Side      model.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal

	// InvocationID links the fill to the decision that produced it.
	InvocationID string
	Reason       string
}

type OpenResult struct {
	Position model.Position `json:"position"`
	Order    model.Order    `json:"order"`
}

type CloseRequest struct {
	AccountID string
	Symbol    string
	// Quantity nil closes the whole position. Larger than open is capped.
	Quantity *decimal.Decimal

	InvocationID string
	Reason       string
}

type CloseResult struct {
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	ClosedQuantity decimal.Decimal `json:"closed_quantity"`
	Position       model.Position  `json:"position"`
	Order          model.Order     `json:"order"`
}

// OpenPosition books a market fill that opens a new position. BUY spends
// price*quantity of cash, SELL credits it. Averaging into an open position is
// refused with PositionAlreadyOpenError.
func (l *Ledger) OpenPosition(ctx context.Context, req OpenRequest) (OpenResult, error) {
	if _, err := l.Symbol(req.Symbol); err != nil {
		return OpenResult{}, l.rejected("open", req.Symbol, err)
	}
	if _, err := model.ParseSide(string(req.Side)); err != nil {
		return OpenResult{}, l.rejected("open", req.Symbol, &InvalidSideError{Side: string(req.Side)})
	}
	quantity, price := round(req.Quantity), round(req.Price)
	if !quantity.IsPositive() {
		return OpenResult{}, l.rejected("open", req.Symbol, &InvalidQuantityError{Quantity: req.Quantity})
	}
	if !price.IsPositive() {
		return OpenResult{}, l.rejected("open", req.Symbol, &InvalidPriceError{Symbol: req.Symbol, Price: req.Price})
	}
	metadata, err := encodeMetadata(req.Reason)
	if err != nil {
		return OpenResult{}, err
	}

	unlock := l.locks.Lock(req.AccountID)
	defer unlock()

	var (
		res     OpenResult
		balance decimal.Decimal
	)
	err = l.store.InTx(ctx, func(tx *store.Tx) error {
		now := l.timestamp()

		account, err := getAccount(ctx, tx.Queries, req.AccountID, true)
		if err != nil {
			return err
		}

		_, err = tx.GetOpenPosition(ctx, account.ID, req.Symbol)
		switch {
		case err == nil:
			return &PositionAlreadyOpenError{Symbol: req.Symbol}
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("%w: can't check open position", err)
		}

		position := model.Position{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			Symbol:       req.Symbol,
			Side:         req.Side,
			Quantity:     quantity,
			EntryPrice:   price,
			CurrentPrice: price,
			Leverage:     1,
			IsOpen:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertPosition(ctx, position); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return &PositionAlreadyOpenError{Symbol: req.Symbol}
			}
			return err
		}

		tradeValue := round(req.Side.TradeValue(price, quantity))
		balance = account.CurrentBalance.Sub(tradeValue)
		if err := tx.UpdateAccountBalance(ctx, account.ID, balance, account.TotalPnL, now); err != nil {
			return err
		}

		order := model.Order{
			ID:                uuid.NewString(),
			AccountID:         account.ID,
			AgentInvocationID: optional(req.InvocationID),
			PositionID:        &position.ID,
			Symbol:            req.Symbol,
			Side:              req.Side,
			OrderType:         model.Market,
			Quantity:          quantity,
			Price:             price,
			FilledPrice:       price,
			Status:            model.Filled,
			TradeValue:        tradeValue,
			Metadata:          metadata,
			CreatedAt:         now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		account.CurrentBalance = balance
		if _, err := recompute(ctx, tx.Queries, account); err != nil {
			return err
		}

		res = OpenResult{Position: position, Order: order}
		return nil
	})
	if err != nil {
		return OpenResult{}, l.rejected("open", req.Symbol, err)
	}

	l.logger.Infof("opened %s %s %s @ %s, cash %s", req.Side, quantity, req.Symbol, price, balance)
	return res, nil
}

// ClosePosition closes all or part of the open position in a symbol at its last
// marked price. The realized PnL is booked to cash together with the closing
// trade value. A fully closed position keeps its last quantity.
func (l *Ledger) ClosePosition(ctx context.Context, req CloseRequest) (CloseResult, error) {
	if _, err := l.Symbol(req.Symbol); err != nil {
		return CloseResult{}, l.rejected("close", req.Symbol, err)
	}
	var requested *decimal.Decimal
	if req.Quantity != nil {
		q := round(*req.Quantity)
		if !q.IsPositive() {
			return CloseResult{}, l.rejected("close", req.Symbol, &InvalidQuantityError{Quantity: *req.Quantity})
		}
		requested = &q
	}
	metadata, err := encodeMetadata(req.Reason)
	if err != nil {
		return CloseResult{}, err
	}

	unlock := l.locks.Lock(req.AccountID)
	defer unlock()

	var (
		res     CloseResult
		balance decimal.Decimal
	)
	err = l.store.InTx(ctx, func(tx *store.Tx) error {
		now := l.timestamp()

		account, err := getAccount(ctx, tx.Queries, req.AccountID, true)
		if err != nil {
			return err
		}

		position, err := tx.GetOpenPosition(ctx, account.ID, req.Symbol)
		if errors.Is(err, store.ErrNotFound) {
			return &NoOpenPositionError{Symbol: req.Symbol}
		}
		if err != nil {
			return fmt.Errorf("%w: can't get open position", err)
		}

		closing := position.Quantity
		if requested != nil && requested.LessThan(closing) {
			closing = *requested
		}
		remaining := position.Quantity.Sub(closing)
		realized := round(position.Side.PnL(position.EntryPrice, position.CurrentPrice, closing))

		if remaining.IsPositive() {
			unrealized := round(position.Side.PnL(position.EntryPrice, position.CurrentPrice, remaining))
			if err := tx.UpdatePositionQuantity(ctx, position.ID, remaining, unrealized, now); err != nil {
				return err
			}
			position.Quantity = remaining
			position.UnrealizedPnL = unrealized
		} else {
			if err := tx.ClosePosition(ctx, position.ID, now); err != nil {
				return err
			}
			position.IsOpen = false
		}
		position.UpdatedAt = now

		side := position.Side.Opposite()
		tradeValue := round(side.TradeValue(position.CurrentPrice, closing))
		balance = account.CurrentBalance.Sub(tradeValue).Add(realized)
		totalPnL := account.TotalPnL.Add(realized)
		if err := tx.UpdateAccountBalance(ctx, account.ID, balance, totalPnL, now); err != nil {
			return err
		}

		order := model.Order{
			ID:                uuid.NewString(),
			AccountID:         account.ID,
			AgentInvocationID: optional(req.InvocationID),
			PositionID:        &position.ID,
			Symbol:            req.Symbol,
			Side:              side,
			OrderType:         model.Market,
			Quantity:          closing,
			Price:             position.CurrentPrice,
			FilledPrice:       position.CurrentPrice,
			Status:            model.Filled,
			RealizedPnL:       decimal.NewNullDecimal(realized),
			TradeValue:        tradeValue,
			Metadata:          metadata,
			CreatedAt:         now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		account.CurrentBalance = balance
		account.TotalPnL = totalPnL
		if _, err := recompute(ctx, tx.Queries, account); err != nil {
			return err
		}

		res = CloseResult{
			RealizedPnL:    realized,
			ClosedQuantity: closing,
			Position:       position,
			Order:          order,
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, l.rejected("close", req.Symbol, err)
	}

	l.logger.Infof("closed %s %s @ %s, realized %s, cash %s",
		res.ClosedQuantity, req.Symbol, res.Order.FilledPrice, res.RealizedPnL, balance)
	return res, nil
}

// UpdatePositionPnL marks an open position to price. Cash is never touched.
func (l *Ledger) UpdatePositionPnL(ctx context.Context, positionID string, price decimal.Decimal) (model.Position, error) {
	position, err := l.store.GetPosition(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Position{}, &PositionNotFoundError{PositionID: positionID}
	}
	if err != nil {
		return model.Position{}, fmt.Errorf("%w: can't get position %s", err, positionID)
	}
	price = round(price)
	if !price.IsPositive() {
		return model.Position{}, &InvalidPriceError{Symbol: position.Symbol, Price: price}
	}

	unlock := l.locks.Lock(position.AccountID)
	defer unlock()

	err = l.store.InTx(ctx, func(tx *store.Tx) error {
		now := l.timestamp()

		account, err := getAccount(ctx, tx.Queries, position.AccountID, true)
		if err != nil {
			return err
		}

		position, err = tx.GetPositionForUpdate(ctx, positionID)
		if errors.Is(err, store.ErrNotFound) {
			return &PositionNotFoundError{PositionID: positionID}
		}
		if err != nil {
			return fmt.Errorf("%w: can't get position %s", err, positionID)
		}
		if !position.IsOpen {
			return &NoOpenPositionError{Symbol: position.Symbol}
		}

		unrealized := round(position.Side.PnL(position.EntryPrice, price, position.Quantity))
		if err := tx.UpdatePositionPrice(ctx, position.ID, price, unrealized, now); err != nil {
			return err
		}
		position.CurrentPrice = price
		position.UnrealizedPnL = unrealized
		position.UpdatedAt = now

		_, err = recompute(ctx, tx.Queries, account)
		return err
	})
	if err != nil {
		return model.Position{}, err
	}

	l.logger.Debugf("marked %s @ %s, unrealized %s", position.Symbol, price, position.UnrealizedPnL)
	return position, nil
}

// rejected logs refused requests; other errors pass through unlogged because
// the caller decides how to report them.
func (l *Ledger) rejected(op, symbol string, err error) error {
	if IsRejection(err) {
		l.logger.Warnf("%s: %s %s rejected", err, op, symbol)
	}
	return err
}
