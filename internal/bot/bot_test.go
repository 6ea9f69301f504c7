package bot

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/agent"
	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/marketdata"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func (m *fakeMarket) set(symbol, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = d(price)
}

func (m *fakeMarket) PriceOf(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("no price")
	}
	return p, nil
}

func (m *fakeMarket) FetchAll(_ context.Context) []marketdata.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]marketdata.Entry, 0, len(m.prices))
	for _, s := range []string{"ETHUSDT", "BTCUSDT"} {
		if p, ok := m.prices[s]; ok {
			entries = append(entries, &marketdata.Bundle{Symbol: s, Price: p})
		} else {
			entries = append(entries, &marketdata.Failure{Symbol: s, Reason: "no price"})
		}
	}
	return entries
}

type fakeAgent struct {
	mu        sync.Mutex
	decisions [][]agent.Decision
	err       error
	requests  []agent.Request
}

func (a *fakeAgent) Decide(_ context.Context, req agent.Request) (agent.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.err != nil {
		return agent.Response{}, a.err
	}
	if len(a.decisions) == 0 {
		return agent.Response{}, nil
	}
	next := a.decisions[0]
	a.decisions = a.decisions[1:]
	return agent.Response{Decisions: next, Reasoning: "reasoning " + req.InvocationID}, nil
}

func testConfig(t *testing.T) config.TradingBotConfig {
	t.Helper()
	cfg := config.TradingBotConfig{
		Symbols:  []string{"ETHUSDT", "BTCUSDT"},
		Schedule: config.ScheduleConfig{DecisionInterval: time.Hour, PriceRefreshInterval: time.Hour},
	}
	require.NoError(t, cfg.ValidateAndSetup())
	return cfg
}

func newTestBot(t *testing.T, md *fakeMarket, a agent.Agent) (*TradingBot, *ledger.Ledger) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	cfg := testConfig(t)
	l := ledger.New(s, cfg.SymbolConfigs, logger.NewNop())

	b := NewTradingBot(cfg, l, md, a, logger.NewNop())
	n := 0
	b.newID = func() string {
		n++
		return "inv-" + string(rune('0'+n))
	}
	require.NoError(t, b.Init(context.Background()))
	return b, l
}

func snapshots(t *testing.T, l *ledger.Ledger, accountID string) []model.AccountSnapshot {
	t.Helper()
	list, err := l.ListSnapshots(context.Background(), accountID, nil, nil)
	require.NoError(t, err)
	return list
}

func invocations(t *testing.T, l *ledger.Ledger, accountID string) []model.AgentInvocation {
	t.Helper()
	list, err := l.ListInvocations(context.Background(), accountID, 0)
	require.NoError(t, err)
	return list
}

func outcomes(t *testing.T, inv model.AgentInvocation) []Outcome {
	t.Helper()
	var list []Outcome
	require.NoError(t, sonic.Unmarshal(inv.AgentResponse, &list))
	return list
}

func TestInitReusesAccount(t *testing.T) {
	md := &fakeMarket{prices: map[string]decimal.Decimal{}}
	b, l := newTestBot(t, md, nil)

	again := NewTradingBot(testConfig(t), l, md, nil, logger.NewNop())
	require.NoError(t, again.Init(context.Background()))
	assert.Equal(t, b.AccountID(), again.AccountID())

	account, err := l.GetAccount(context.Background(), b.AccountID())
	require.NoError(t, err)
	assert.Equal(t, "10000", account.CurrentBalance.String())
}

func TestCycleOpenMarkClose(t *testing.T) {
	ctx := context.Background()
	md := &fakeMarket{prices: map[string]decimal.Decimal{"ETHUSDT": d("3000")}}
	a := &fakeAgent{decisions: [][]agent.Decision{
		{{Action: agent.Open, Symbol: "ETHUSDT", Side: model.Buy, Quantity: decimal.NewNullDecimal(d("2.009")), Reason: "breakout"}},
		{{Action: agent.Close, Symbol: "ETHUSDT", Reason: "take profit"}},
	}}
	b, l := newTestBot(t, md, a)

	require.NoError(t, b.RunOneCycle(ctx))

	require.Len(t, a.requests, 1)
	assert.Equal(t, "inv-1", a.requests[0].InvocationID)
	assert.Equal(t, "10000", a.requests[0].Account.AccountValue.String())
	require.Len(t, a.requests[0].MarketData, 2)
	assert.IsType(t, &marketdata.Failure{}, a.requests[0].MarketData[1])

	open, err := l.ListPositions(ctx, b.AccountID(), store.Open)
	require.NoError(t, err)
	require.Len(t, open, 1)
	// truncated to the symbol quantity precision
	assert.Equal(t, "2", open[0].Quantity.String())

	account, err := l.GetAccount(ctx, b.AccountID())
	require.NoError(t, err)
	assert.Equal(t, "4000", account.CurrentBalance.String())
	assert.Len(t, snapshots(t, l, b.AccountID()), 1)

	md.set("ETHUSDT", "3100")
	require.NoError(t, b.UpdatePositions(ctx))
	m, err := l.GetAccountMetrics(ctx, b.AccountID())
	require.NoError(t, err)
	assert.Equal(t, "200", m.CryptoValue.String())
	assert.Equal(t, "4200", m.AccountValue.String())

	md.set("ETHUSDT", "3050")
	require.NoError(t, b.RunOneCycle(ctx))

	trades, err := l.CompletedTrades(ctx, b.AccountID())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "3050", trades[0].ExitPrice.String())
	assert.Equal(t, "100", trades[0].RealizedPnL.String())

	orders, err := l.ListOrders(ctx, b.AccountID())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.NotNil(t, orders[1].AgentInvocationID)
	assert.Equal(t, "inv-2", *orders[1].AgentInvocationID)

	assert.Len(t, snapshots(t, l, b.AccountID()), 3)

	require.Len(t, a.requests, 2)
	assert.Zero(t, a.requests[0].Session.InvocationCount)
	assert.Equal(t, 1, a.requests[1].Session.InvocationCount)
	assert.False(t, a.requests[1].Session.StartedAt.IsZero())

	list := invocations(t, l, b.AccountID())
	require.Len(t, list, 2)
	last := list[0]
	assert.Equal(t, "inv-2", last.ID)
	assert.Equal(t, "reasoning inv-2", last.ChainOfThought)
	require.NotNil(t, last.FinishReason)
	assert.Equal(t, model.FinishStop, *last.FinishReason)
	assert.Nil(t, last.Error)
	assert.Contains(t, string(last.SessionState), `"invocation_count":1`)
	assert.Contains(t, string(last.MarketData), "ETHUSDT")

	closed := outcomes(t, last)
	require.Len(t, closed, 1)
	assert.Equal(t, Filled, closed[0].Status)
	assert.Equal(t, orders[1].ID, closed[0].OrderID)
	assert.Equal(t, agent.Close, closed[0].Action)
}

func TestCycleSnapshotsOnAgentFailure(t *testing.T) {
	md := &fakeMarket{prices: map[string]decimal.Decimal{"ETHUSDT": d("3000")}}
	a := &fakeAgent{err: errors.New("agent down")}
	b, l := newTestBot(t, md, a)

	err := b.RunOneCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent down")
	assert.Len(t, snapshots(t, l, b.AccountID()), 1)

	list := invocations(t, l, b.AccountID())
	require.Len(t, list, 1)
	require.NotNil(t, list[0].FinishReason)
	assert.Equal(t, model.FinishError, *list[0].FinishReason)
	require.NotNil(t, list[0].Error)
	assert.Contains(t, *list[0].Error, "agent down")
	assert.Nil(t, list[0].AgentResponse)
	assert.Contains(t, string(list[0].Metrics), `"account_value":"10000"`)
}

func TestCycleSkipsRejectedDecisions(t *testing.T) {
	ctx := context.Background()
	md := &fakeMarket{prices: map[string]decimal.Decimal{"ETHUSDT": d("3000"), "BTCUSDT": d("60000")}}
	a := &fakeAgent{decisions: [][]agent.Decision{{
		{Action: agent.Open, Symbol: "DOGEUSDT", Side: model.Buy, Quantity: decimal.NewNullDecimal(d("100"))},
		{Action: agent.Open, Symbol: "ETHUSDT", Side: model.Buy, Quantity: decimal.NewNullDecimal(d("0.001"))},
		{Action: agent.Close, Symbol: "BTCUSDT"},
		{Action: agent.Hold},
		{Action: agent.Open, Symbol: "BTCUSDT", Side: model.Sell, Quantity: decimal.NewNullDecimal(d("0.1"))},
	}}}
	b, l := newTestBot(t, md, a)

	require.NoError(t, b.RunOneCycle(ctx))

	open, err := l.ListPositions(ctx, b.AccountID(), store.Open)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.Equal(t, model.Sell, open[0].Side)

	account, err := l.GetAccount(ctx, b.AccountID())
	require.NoError(t, err)
	assert.Equal(t, "16000", account.CurrentBalance.String())

	list := invocations(t, l, b.AccountID())
	require.Len(t, list, 1)
	got := outcomes(t, list[0])
	require.Len(t, got, 5)
	statuses := make([]string, 0, len(got))
	for _, o := range got {
		statuses = append(statuses, o.Status)
	}
	assert.Equal(t, []string{Rejected, Skipped, Rejected, Skipped, Filled}, statuses)
	assert.Contains(t, got[0].Error, "DOGEUSDT")
	assert.NotEmpty(t, got[4].OrderID)
}

func TestUpdatePositionsKeepsUnpricedMark(t *testing.T) {
	ctx := context.Background()
	md := &fakeMarket{prices: map[string]decimal.Decimal{"ETHUSDT": d("3000")}}
	a := &fakeAgent{decisions: [][]agent.Decision{
		{{Action: agent.Open, Symbol: "ETHUSDT", Side: model.Buy, Quantity: decimal.NewNullDecimal(d("1"))}},
	}}
	b, l := newTestBot(t, md, a)
	require.NoError(t, b.RunOneCycle(ctx))

	delete(md.prices, "ETHUSDT")
	require.NoError(t, b.UpdatePositions(ctx))

	open, err := l.ListPositions(ctx, b.AccountID(), store.Open)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "3000", open[0].CurrentPrice.String())
	assert.Len(t, snapshots(t, l, b.AccountID()), 2)
}

func TestStartStopsAfterMaxIterations(t *testing.T) {
	md := &fakeMarket{prices: map[string]decimal.Decimal{"ETHUSDT": d("3000")}}
	a := &fakeAgent{}
	b, _ := newTestBot(t, md, a)
	b.cfg.Schedule.MaxIterations = 1

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Equal(t, 1, b.Iterations())
}

func TestStartStopsOnCancel(t *testing.T) {
	md := &fakeMarket{prices: map[string]decimal.Decimal{}}
	b, _ := newTestBot(t, md, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Zero(t, b.Iterations())
}

func TestStartRequiresInit(t *testing.T) {
	b := NewTradingBot(testConfig(t), nil, &fakeMarket{}, nil, logger.NewNop())
	assert.Error(t, b.Start(context.Background()))
}
