// Package ledger keeps the simulated account consistent: it opens and closes
// positions, marks them to market, derives the performance metrics and records
// the snapshots the account-value history is rebuilt from.
//
// Every mutation of one account runs under that account's lock and inside a
// single store transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every stored amount is rounded to.
const Scale = 8

type Ledger struct {
	store   *store.Store
	symbols map[string]model.SymbolConfig
	locks   *accountLocks
	now     func() time.Time

	logger logger.Logger
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func New(s *store.Store, symbols []model.SymbolConfig, logger logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		symbols: make(map[string]model.SymbolConfig, len(symbols)),
		locks:   newAccountLocks(),
		now:     time.Now,
		logger:  logger,
	}
	for _, cfg := range symbols {
		l.symbols[cfg.Symbol] = cfg
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Symbols returns the trading universe sorted by symbol.
func (l *Ledger) Symbols() []model.SymbolConfig {
	symbols := make([]model.SymbolConfig, 0, len(l.symbols))
	for _, cfg := range l.symbols {
		symbols = append(symbols, cfg)
	}
	sort.Slice(symbols, func(i, j int) bool {
		return symbols[i].Symbol < symbols[j].Symbol
	})
	return symbols
}

func (l *Ledger) Symbol(symbol string) (model.SymbolConfig, error) {
	cfg, ok := l.symbols[symbol]
	if !ok {
		return model.SymbolConfig{}, &UnsupportedSymbolError{Symbol: symbol}
	}
	return cfg, nil
}

// timestamp is the ledger clock in UTC at the precision both dialects keep.
func (l *Ledger) timestamp() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

func (l *Ledger) GetOrCreateAccount(ctx context.Context, initialBalance decimal.Decimal) (model.Account, error) {
	if !initialBalance.IsPositive() {
		return model.Account{}, fmt.Errorf("initial balance must be positive, got %s", initialBalance)
	}

	account, created, err := l.store.GetOrCreateAccount(ctx, round(initialBalance), l.timestamp())
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: can't get or create account", err)
	}
	if created {
		l.logger.Infof("created account %s with balance %s", account.ID, account.InitialBalance)
	}
	return account, nil
}

func (l *Ledger) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	return getAccount(ctx, l.store.Queries, accountID, false)
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return l.store.ListAccounts(ctx)
}

func (l *Ledger) ListPositions(ctx context.Context, accountID string, status store.PositionStatus) ([]model.Position, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return l.store.ListPositions(ctx, accountID, status)
}

func (l *Ledger) ListOrders(ctx context.Context, accountID string) ([]model.Order, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return l.store.ListOrders(ctx, accountID)
}

// CompletedTrades lists every closing fill with the entry of the position it
// closed, oldest first.
func (l *Ledger) CompletedTrades(ctx context.Context, accountID string) ([]model.CompletedTrade, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	trades, err := l.store.ListCompletedTrades(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		t := &trades[i]
		t.NotionalEntry = round(t.EntryPrice.Mul(t.Quantity))
		t.NotionalExit = round(t.ExitPrice.Mul(t.Quantity))
		t.HoldingTime = t.CompletedAt.Sub(t.OpenedAt).Round(time.Second).String()
	}
	return trades, nil
}

func getAccount(ctx context.Context, q *store.Queries, accountID string, forUpdate bool) (model.Account, error) {
	var (
		account model.Account
		err     error
	)
	if forUpdate {
		account, err = q.GetAccountForUpdate(ctx, accountID)
	} else {
		account, err = q.GetAccount(ctx, accountID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return model.Account{}, &AccountNotFoundError{AccountID: accountID}
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: can't get account %s", err, accountID)
	}
	return account, nil
}

type orderMetadata struct {
	Reason string `json:"reason"`
}

func encodeMetadata(reason string) (*string, error) {
	if reason == "" {
		return nil, nil
	}
	b, err := sonic.Marshal(orderMetadata{Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("%w: can't encode order metadata", err)
	}
	s := string(b)
	return &s, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}
