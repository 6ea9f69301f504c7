// Package bot drives the paper account: it refreshes prices, asks the agent
// for decisions and books them in the ledger on a schedule.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/agent"
	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/marketdata"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

type MarketData interface {
	PriceOf(ctx context.Context, symbol string) (decimal.Decimal, error)
	FetchAll(ctx context.Context) []marketdata.Entry
}

type TradingBot struct {
	cfg    config.TradingBotConfig
	ledger *ledger.Ledger
	md     MarketData
	agent  agent.Agent // nil only refreshes prices

	accountID   string
	startedAt   time.Time
	iterations  atomic.Int64
	invocations atomic.Int64
	newID       func() string

	logger logger.Logger
}

func NewTradingBot(cfg config.TradingBotConfig, l *ledger.Ledger, md MarketData, a agent.Agent, logger logger.Logger) *TradingBot {
	return &TradingBot{
		cfg:    cfg,
		ledger: l,
		md:     md,
		agent:  a,
		newID:  uuid.NewString,
		logger: logger,
	}
}

// Init binds the bot to the deployment account, creating it on first start.
func (b *TradingBot) Init(ctx context.Context) error {
	account, err := b.ledger.GetOrCreateAccount(ctx, b.cfg.InitialBalance)
	if err != nil {
		return fmt.Errorf("%w: can't init account", err)
	}
	b.accountID = account.ID
	b.startedAt = time.Now().UTC().Truncate(time.Microsecond)
	b.logger.Infof("trading account %s, cash %s", account.ID, account.CurrentBalance)
	return nil
}

func (b *TradingBot) AccountID() string {
	return b.accountID
}

func (b *TradingBot) Iterations() int {
	return int(b.iterations.Load())
}

// UpdatePositions marks every open position at the market price and then takes
// a snapshot. A position that can't be priced keeps its last mark.
func (b *TradingBot) UpdatePositions(ctx context.Context) error {
	positions, err := b.ledger.ListPositions(ctx, b.accountID, store.Open)
	if err != nil {
		return fmt.Errorf("%w: can't list open positions", err)
	}

	for _, p := range positions {
		if err := b.mark(ctx, p); err != nil {
			b.logger.Errorf("%s: can't mark %s", err, p.Symbol)
		}
	}

	if _, err := b.ledger.CreateSnapshot(ctx, b.accountID); err != nil {
		return fmt.Errorf("%w: can't create snapshot", err)
	}
	return nil
}

func (b *TradingBot) mark(ctx context.Context, p model.Position) error {
	price, err := b.md.PriceOf(ctx, p.Symbol)
	if err != nil {
		return err
	}
	_, err = b.ledger.UpdatePositionPnL(ctx, p.ID, price)
	return err
}

// Outcome is what became of one decision. The list of outcomes is recorded as
// the response of the invocation.
type Outcome struct {
	agent.Decision
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	Filled   = "filled"
	Skipped  = "skipped"
	Rejected = "rejected"
	Failed   = "failed"
)

var errBelowMinSize = errors.New("quantity below min order size")

// RunOneCycle asks the agent for decisions and executes them. The invocation
// is recorded before the agent is asked and completed with the outcome of
// every decision. The snapshot is taken whatever happens in between.
func (b *TradingBot) RunOneCycle(ctx context.Context) error {
	invocationID := b.newID()
	defer func() {
		if _, err := b.ledger.CreateSnapshot(ctx, b.accountID); err != nil {
			b.logger.Errorf("%s: can't create snapshot after cycle %s", err, invocationID)
		}
	}()

	entries := b.md.FetchAll(ctx)
	prices := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		switch e := e.(type) {
		case *marketdata.Bundle:
			prices[e.Symbol] = e.Price
		case *marketdata.Failure:
			b.logger.Warnf("%s: no market data for cycle %s", e, invocationID)
		}
	}

	metrics, err := b.ledger.GetAccountMetrics(ctx, b.accountID)
	if err != nil {
		return fmt.Errorf("%w: can't get account metrics", err)
	}
	if b.agent == nil {
		return nil
	}

	req := agent.Request{
		InvocationID: invocationID,
		Session: agent.Session{
			StartedAt:       b.startedAt,
			InvocationCount: int(b.invocations.Add(1) - 1),
		},
		Account:    metrics,
		MarketData: entries,
	}
	if _, err := b.ledger.RecordInvocation(ctx, ledger.InvocationRequest{
		ID:         invocationID,
		AccountID:  b.accountID,
		Session:    req.Session,
		MarketData: req.MarketData,
		Metrics:    req.Account,
	}); err != nil {
		return fmt.Errorf("%w: can't record invocation", err)
	}

	resp, err := b.agent.Decide(ctx, req)
	if err != nil {
		b.complete(ctx, invocationID, ledger.InvocationOutcome{Err: err})
		return fmt.Errorf("%w: can't get decisions", err)
	}
	b.logger.Infof("cycle %s: %d decisions", invocationID, len(resp.Decisions))

	outcomes := make([]Outcome, 0, len(resp.Decisions))
	for _, d := range resp.Decisions {
		orderID, err := b.execute(ctx, invocationID, d, prices)
		o := Outcome{Decision: d, Status: Filled, OrderID: orderID}
		switch {
		case err == nil && orderID == "":
			o.Status = Skipped
		case errors.Is(err, errBelowMinSize):
			o.Status, o.Error = Skipped, err.Error()
		case ledger.IsRejection(err):
			o.Status, o.Error = Rejected, err.Error()
		case err != nil:
			o.Status, o.Error = Failed, err.Error()
			b.logger.Errorf("%s: can't execute %s %s", err, d.Action, d.Symbol)
		}
		outcomes = append(outcomes, o)
	}

	b.complete(ctx, invocationID, ledger.InvocationOutcome{
		ChainOfThought: resp.Reasoning,
		Response:       outcomes,
		FinishReason:   resp.FinishReason,
	})
	return nil
}

// complete only logs: the cycle result does not depend on the audit row.
func (b *TradingBot) complete(ctx context.Context, invocationID string, out ledger.InvocationOutcome) {
	if err := b.ledger.CompleteInvocation(ctx, invocationID, out); err != nil {
		b.logger.Errorf("%s: can't complete invocation %s", err, invocationID)
	}
}

// execute returns the id of the booked order, empty when nothing was booked.
func (b *TradingBot) execute(ctx context.Context, invocationID string, d agent.Decision, prices map[string]decimal.Decimal) (string, error) {
	switch d.Action {
	case agent.Open:
		return b.open(ctx, invocationID, d, prices)
	case agent.Close:
		return b.close(ctx, invocationID, d, prices)
	default:
		return "", nil
	}
}

func (b *TradingBot) price(ctx context.Context, symbol string, prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	if p, ok := prices[symbol]; ok {
		return p, nil
	}
	return b.md.PriceOf(ctx, symbol)
}

func (b *TradingBot) open(ctx context.Context, invocationID string, d agent.Decision, prices map[string]decimal.Decimal) (string, error) {
	symbol, err := b.ledger.Symbol(d.Symbol)
	if err != nil {
		b.logger.Warnf("%s: open skipped", err)
		return "", err
	}
	quantity := symbol.FormatQuantity(d.Quantity.Decimal)
	if quantity.LessThan(decimal.NewFromFloat(symbol.MinOrderSize)) {
		b.logger.Warnf("%s quantity %s below min order size %v, skipped", d.Symbol, d.Quantity.Decimal, symbol.MinOrderSize)
		return "", errBelowMinSize
	}

	price, err := b.price(ctx, d.Symbol, prices)
	if err != nil {
		return "", err
	}

	res, err := b.ledger.OpenPosition(ctx, ledger.OpenRequest{
		AccountID:    b.accountID,
		Symbol:       d.Symbol,
		Side:         d.Side,
		Quantity:     quantity,
		Price:        symbol.FormatPrice(price),
		InvocationID: invocationID,
		Reason:       d.Reason,
	})
	if err != nil {
		return "", err
	}
	return res.Order.ID, nil
}

// close marks the position at the market price first so the fill happens there.
func (b *TradingBot) close(ctx context.Context, invocationID string, d agent.Decision, prices map[string]decimal.Decimal) (string, error) {
	positions, err := b.ledger.ListPositions(ctx, b.accountID, store.Open)
	if err != nil {
		return "", err
	}
	for _, p := range positions {
		if p.Symbol != d.Symbol {
			continue
		}
		price, err := b.price(ctx, d.Symbol, prices)
		if err != nil {
			return "", err
		}
		if _, err := b.ledger.UpdatePositionPnL(ctx, p.ID, price); err != nil {
			return "", err
		}
		break
	}

	req := ledger.CloseRequest{
		AccountID:    b.accountID,
		Symbol:       d.Symbol,
		InvocationID: invocationID,
		Reason:       d.Reason,
	}
	if d.Quantity.Valid {
		q := d.Quantity.Decimal
		req.Quantity = &q
	}
	res, err := b.ledger.ClosePosition(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Order.ID, nil
}

// Start runs a decision cycle right away and then schedules both jobs. It
// returns after the configured number of cycles or when ctx is done.
func (b *TradingBot) Start(ctx context.Context) error {
	if b.accountID == "" {
		return errors.New("bot is not initialized")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	finish := func() { once.Do(cancel) }

	cl := cronLogger{b.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(every(b.cfg.Schedule.PriceRefreshInterval), func() {
		if err := b.UpdatePositions(ctx); err != nil {
			b.logger.Errorf("%s: can't update positions", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: can't schedule price refresh", err)
	}

	cycle := func() {
		if ctx.Err() != nil {
			return
		}
		if err := b.RunOneCycle(ctx); err != nil {
			b.logger.Errorf("%s: cycle failed", err)
		}
		n := b.iterations.Add(1)
		if limit := b.cfg.Schedule.MaxIterations; limit > 0 && n >= int64(limit) {
			b.logger.Infof("reached %d cycles, stopping", n)
			finish()
		}
	}

	if b.agent != nil {
		if _, err := c.AddFunc(every(b.cfg.Schedule.DecisionInterval), cycle); err != nil {
			return fmt.Errorf("%w: can't schedule decisions", err)
		}
		cycle()
	} else {
		b.logger.Warnf("no agent configured, only refreshing prices")
	}

	c.Start()
	b.logger.Infof("bot started")

	<-ctx.Done()
	<-c.Stop().Done()
	b.logger.Infof("bot stopped after %d cycles", b.Iterations())
	return nil
}
