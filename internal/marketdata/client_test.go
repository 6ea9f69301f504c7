package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func klinesBody(n int, start float64) string {
	rows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		o := start + float64(i)
		c := o + 0.5
		rows = append(rows, fmt.Sprintf(
			`[%d,"%g","%g","%g","%g","%g",%d,"0",10,"0","0","0"]`,
			1700000000000+int64(i)*300000, o, c+1, o-1, c, 100+float64(i), 1700000299999+int64(i)*300000,
		))
	}
	return "[" + strings.Join(rows, ",") + "]"
}

type fakeExchange struct {
	candles     int
	failKlines  bool
	failFunding bool
}

func (f fakeExchange) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}

	mux.HandleFunc(_klinesURL, func(w http.ResponseWriter, r *http.Request) {
		if f.failKlines || r.URL.Query().Get("symbol") == "FOOUSDT" {
			write(w, http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`)
			return
		}
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		write(w, http.StatusOK, klinesBody(f.candles, 100))
	})
	mux.HandleFunc(_tickerPriceURL, func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, fmt.Sprintf(`{"symbol":%q,"price":"3012.45","time":1700000000000}`, r.URL.Query().Get("symbol")))
	})
	mux.HandleFunc(_premiumIndexURL, func(w http.ResponseWriter, r *http.Request) {
		if f.failFunding {
			write(w, http.StatusInternalServerError, `{"code":-1000,"msg":"boom"}`)
			return
		}
		write(w, http.StatusOK, `{"symbol":"ETHUSDT","markPrice":"3012.40","lastFundingRate":"0.0001"}`)
	})
	mux.HandleFunc(_openInterestURL, func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `{"symbol":"ETHUSDT","openInterest":"1500.5","time":1700000000000}`)
	})
	mux.HandleFunc(_openInterestHistURL, func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `[{"sumOpenInterest":"1000"},{"sumOpenInterest":"2000"}]`)
	})
	return mux
}

func newTestClient(t *testing.T, f fakeExchange, symbols ...string) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.MarketDataConfig{Address: srv.URL, RequestsPerMinute: 60000}
	require.NoError(t, cfg.Setup())
	var ind config.IndicatorsConfig
	require.NoError(t, ind.Setup())

	c := NewClient(cfg, ind, symbols, logger.NewNop())
	c.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestKlines(t *testing.T) {
	c := newTestClient(t, fakeExchange{candles: 3}, "ETHUSDT")

	candles, err := c.Klines(context.Background(), "ETHUSDT", "5m", 50)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].StartTime)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 101.5, candles[0].High)
	assert.Equal(t, 99.0, candles[0].Low)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 102.0, candles[2].Volume)
}

func TestKlinesError(t *testing.T) {
	c := newTestClient(t, fakeExchange{candles: 3}, "FOOUSDT")

	_, err := c.Klines(context.Background(), "FOOUSDT", "5m", 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol.")
}

func TestPriceOf(t *testing.T) {
	c := newTestClient(t, fakeExchange{}, "ETHUSDT")

	price, err := c.PriceOf(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "3012.45", price.String())
}

func TestFetchBundle(t *testing.T) {
	c := newTestClient(t, fakeExchange{candles: 60}, "ETHUSDT")

	entry := c.Fetch(context.Background(), "ETHUSDT")
	b, ok := entry.(*Bundle)
	require.True(t, ok, "got %T", entry)

	assert.Equal(t, "ETHUSDT", SymbolOf(b))
	assert.Equal(t, "3012.45", b.Price.String())
	assert.InDelta(t, 0.0001, b.FundingRate, 1e-12)
	assert.Equal(t, OpenInterest{Latest: 1500.5, Average: 1500}, b.OpenInterest)

	assert.Len(t, b.Intraday.MidPrices, 60)
	assert.Len(t, b.Intraday.EMAFast, 60-20+1)
	assert.Len(t, b.Intraday.EMASlow, 60-50+1)
	assert.Len(t, b.Intraday.MACD, 60-26+1)
	assert.Len(t, b.Intraday.RSIShort, 60-7)
	assert.Len(t, b.Intraday.ATRLong, 60-1-14+1)
	assert.Equal(t, b.Intraday.EMAFast[len(b.Intraday.EMAFast)-1], b.EMAFast)
	// closes only rise
	assert.InDelta(t, 100, b.RSIShort, 1e-9)
	assert.Greater(t, b.MACD, 0.0)

	body, err := sonic.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"current_price":"3012.45"`)
}

func TestFetchFallsBackWithoutFunding(t *testing.T) {
	c := newTestClient(t, fakeExchange{candles: 5, failFunding: true}, "ETHUSDT")

	b, ok := c.Fetch(context.Background(), "ETHUSDT").(*Bundle)
	require.True(t, ok)
	assert.Zero(t, b.FundingRate)
	assert.Empty(t, b.Intraday.EMAFast)
}

func TestFetchAllKeepsFailures(t *testing.T) {
	c := newTestClient(t, fakeExchange{candles: 5}, "ETHUSDT", "FOOUSDT", "BTCUSDT")

	entries := c.FetchAll(context.Background())
	require.Len(t, entries, 3)

	assert.IsType(t, &Bundle{}, entries[0])
	assert.IsType(t, &Bundle{}, entries[2])

	f, ok := entries[1].(*Failure)
	require.True(t, ok)
	assert.Equal(t, "FOOUSDT", SymbolOf(f))
	assert.Contains(t, f.Reason, "Invalid symbol.")

	var failure *Failure
	assert.True(t, errors.As(error(f), &failure))
}
