package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPrices map[string]string

func (p fixedPrices) PriceOf(_ context.Context, symbol string) (decimal.Decimal, error) {
	v, ok := p[symbol]
	if !ok {
		return decimal.Zero, errors.New("exchange down")
	}
	return decimal.RequireFromString(v), nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t       *testing.T
	router  *gin.Engine
	account model.Account
	store   *store.Store
	ledger  *ledger.Ledger
}

func newTestAPI(t *testing.T, prices PriceSource) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	l := ledger.New(s, []model.SymbolConfig{
		model.DefaultSymbolConfigs["ETHUSDT"],
		model.DefaultSymbolConfigs["BTCUSDT"],
	}, logger.NewNop())
	account, err := l.GetOrCreateAccount(context.Background(), decimal.NewFromInt(10000))
	require.NoError(t, err)

	return &testAPI{
		t:       t,
		router:  NewRouter(NewHandler(l, prices, logger.NewNop())),
		account: account,
		store:   s,
		ledger:  l,
	}
}

func (a *testAPI) do(method, path, body string) (int, envelope) {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, sonic.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *testAPI) accountPath(suffix string) string {
	return "/api/v1/accounts/" + a.account.ID + suffix
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(env.Data, &v))
	return v
}

func TestOpenCloseFlow(t *testing.T) {
	a := newTestAPI(t, fixedPrices{"ETHUSDT": "100"})

	code, env := a.do(http.MethodPost, a.accountPath("/positions"),
		`{"symbol":"ETHUSDT","side":"buy","quantity":"10","invocation_id":"inv-1","reason":"test"}`)
	require.Equal(t, http.StatusCreated, code, env.Message)
	opened := decode[ledger.OpenResult](t, env)
	assert.Equal(t, "100", opened.Position.EntryPrice.String())
	assert.Equal(t, model.Buy, opened.Position.Side)

	code, env = a.do(http.MethodPost, "/api/v1/positions/"+opened.Position.ID+"/mark", `{"price":"110"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	marked := decode[model.Position](t, env)
	assert.Equal(t, "100", marked.UnrealizedPnL.String())

	code, env = a.do(http.MethodPost, a.accountPath("/positions/ETHUSDT/close"), `{"quantity":"4"}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	closed := decode[ledger.CloseResult](t, env)
	assert.Equal(t, "40", closed.RealizedPnL.String())
	assert.Equal(t, "6", closed.Position.Quantity.String())

	code, env = a.do(http.MethodGet, a.accountPath("/metrics"), "")
	require.Equal(t, http.StatusOK, code)
	m := decode[model.Metrics](t, env)
	assert.Equal(t, "9480", m.AvailableCash.String())
	assert.Equal(t, "60", m.CryptoValue.String())
	assert.Equal(t, "9540", m.AccountValue.String())

	// empty body closes the rest
	code, env = a.do(http.MethodPost, a.accountPath("/positions/ETHUSDT/close"), "")
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "6", decode[ledger.CloseResult](t, env).ClosedQuantity.String())

	code, env = a.do(http.MethodGet, a.accountPath("/positions?status=closed"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.Position](t, env), 1)

	code, env = a.do(http.MethodGet, a.accountPath("/trades"), "")
	require.Equal(t, http.StatusOK, code)
	trades := decode[[]model.CompletedTrade](t, env)
	require.Len(t, trades, 2)
	assert.Equal(t, "440", trades[0].NotionalExit.String())

	code, env = a.do(http.MethodGet, a.accountPath("/orders"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.Order](t, env), 3)
}

func TestOpenErrors(t *testing.T) {
	a := newTestAPI(t, fixedPrices{})

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{name: "malformed body", path: a.accountPath("/positions"), body: `{"symbol":`, code: http.StatusBadRequest},
		{name: "missing side", path: a.accountPath("/positions"), body: `{"symbol":"ETHUSDT","quantity":"1","price":"1"}`, code: http.StatusBadRequest},
		{name: "unsupported symbol", path: a.accountPath("/positions"), body: `{"symbol":"FOOUSDT","side":"BUY","quantity":"1","price":"1"}`, code: http.StatusBadRequest},
		{name: "zero quantity", path: a.accountPath("/positions"), body: `{"symbol":"ETHUSDT","side":"BUY","quantity":"0","price":"1"}`, code: http.StatusBadRequest},
		{name: "bad side", path: a.accountPath("/positions"), body: `{"symbol":"ETHUSDT","side":"UP","quantity":"1","price":"1"}`, code: http.StatusBadRequest},
		{name: "no market price", path: a.accountPath("/positions"), body: `{"symbol":"ETHUSDT","side":"BUY","quantity":"1"}`, code: http.StatusBadGateway},
		{name: "unknown account", path: "/api/v1/accounts/nope/positions", body: `{"symbol":"ETHUSDT","side":"BUY","quantity":"1","price":"1"}`, code: http.StatusNotFound},
		{name: "close without position", path: a.accountPath("/positions/BTCUSDT/close"), body: "", code: http.StatusConflict},
		{name: "mark unknown position", path: "/api/v1/positions/nope/mark", body: `{"price":"1"}`, code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := a.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.code, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestOpenTwiceConflicts(t *testing.T) {
	a := newTestAPI(t, nil)
	body := `{"symbol":"ETHUSDT","side":"SELL","quantity":"1","price":"3000"}`

	code, _ := a.do(http.MethodPost, a.accountPath("/positions"), body)
	require.Equal(t, http.StatusCreated, code)

	code, env := a.do(http.MethodPost, a.accountPath("/positions"), body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Message, "ETHUSDT")

	code, env = a.do(http.MethodPost, a.accountPath("/positions"), `{"symbol":"BTCUSDT","side":"BUY","quantity":"1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "price is required", env.Message)
}

func TestSnapshotsAndTimeline(t *testing.T) {
	a := newTestAPI(t, nil)

	code, env := a.do(http.MethodPost, a.accountPath("/snapshots"), "")
	require.Equal(t, http.StatusCreated, code, env.Message)
	snapshot := decode[model.AccountSnapshot](t, env)
	assert.Equal(t, "10000", snapshot.AccountValue.String())

	code, env = a.do(http.MethodGet, a.accountPath("/snapshots"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.AccountSnapshot](t, env), 1)

	code, env = a.do(http.MethodGet, "/api/v1/account-values", "")
	require.Equal(t, http.StatusOK, code)
	points := decode[[]model.TimelinePoint](t, env)
	require.Len(t, points, 1)
	assert.Equal(t, "10000", points[0].Accounts[a.account.ID].String())

	code, _ = a.do(http.MethodGet, "/api/v1/account-values?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, a.accountPath("/snapshots?from=2025-01-02T00:00:00Z&to=2025-01-01T00:00:00Z"), "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, "/api/v1/accounts/nope/snapshots", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListAccountsAndPositionsStatus(t *testing.T) {
	a := newTestAPI(t, nil)

	code, env := a.do(http.MethodGet, "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, code)
	accounts := decode[[]model.Account](t, env)
	require.Len(t, accounts, 1)
	assert.Equal(t, a.account.ID, accounts[0].ID)

	code, env = a.do(http.MethodGet, a.accountPath(""), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "10000", decode[model.Account](t, env).InitialBalance.String())

	code, _ = a.do(http.MethodGet, a.accountPath("/positions?status=pending"), "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListInvocations(t *testing.T) {
	a := newTestAPI(t, nil)
	ctx := context.Background()

	code, env := a.do(http.MethodGet, a.accountPath("/invocations"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]model.AgentInvocation](t, env))

	for _, id := range []string{"inv-1", "inv-2"} {
		_, err := a.ledger.RecordInvocation(ctx, ledger.InvocationRequest{
			ID:        id,
			AccountID: a.account.ID,
			Session:   map[string]int{"invocation_count": 0},
			Metrics:   map[string]string{"account_value": "10000"},
		})
		require.NoError(t, err)
	}
	require.NoError(t, a.ledger.CompleteInvocation(ctx, "inv-1", ledger.InvocationOutcome{
		ChainOfThought: "flat market",
		Response:       []string{},
	}))

	code, env = a.do(http.MethodGet, a.accountPath("/invocations?limit=1"), "")
	require.Equal(t, http.StatusOK, code)
	list := decode[[]model.AgentInvocation](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, "inv-2", list[0].ID)
	assert.Nil(t, list[0].FinishReason)

	code, env = a.do(http.MethodGet, a.accountPath("/invocations"), "")
	require.Equal(t, http.StatusOK, code)
	list = decode[[]model.AgentInvocation](t, env)
	require.Len(t, list, 2)
	assert.Equal(t, "flat market", list[1].ChainOfThought)
	assert.JSONEq(t, `{"account_value":"10000"}`, string(list[1].Metrics))
	assert.JSONEq(t, `[]`, string(list[1].AgentResponse))

	code, _ = a.do(http.MethodGet, a.accountPath("/invocations?limit=0"), "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, "/api/v1/accounts/nope/invocations", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStorageFailureIsHidden(t *testing.T) {
	a := newTestAPI(t, nil)
	require.NoError(t, a.store.Close())

	code, env := a.do(http.MethodGet, a.accountPath("/metrics"), "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", env.Message)
}
