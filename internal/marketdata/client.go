// Package marketdata pulls candles, prices, funding and open interest from a
// Binance compatible futures API and turns them into indicator bundles.
package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/indicators"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const (
	_klinesURL           = "/fapi/v1/klines"
	_tickerPriceURL      = "/fapi/v1/ticker/price"
	_premiumIndexURL     = "/fapi/v1/premiumIndex"
	_openInterestURL     = "/fapi/v1/openInterest"
	_openInterestHistURL = "/futures/data/openInterestHist"

	_openInterestHistPeriod = "5m"
	_openInterestHistLimit  = "30"
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type premiumIndex struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
}

type openInterest struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
}

type openInterestHist struct {
	SumOpenInterest string `json:"sumOpenInterest"`
}

type Client struct {
	c       *resty.Client
	cfg     config.MarketDataConfig
	ind     config.IndicatorsConfig
	symbols []string
	limiter ratelimit.Limiter
	now     func() time.Time

	logger logger.Logger
}

func NewClient(cfg config.MarketDataConfig, ind config.IndicatorsConfig, symbols []string, logger logger.Logger) *Client {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.Timeout)

	return &Client{
		c:       client,
		cfg:     cfg,
		ind:     ind,
		symbols: symbols,
		limiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(time.Minute)),
		now:     time.Now,
		logger:  logger,
	}
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	c.limiter.Take()

	resp, err := c.c.R().
		SetQueryParams(params).
		SetResult(result).
		SetError(&apiError{}).
		SetContext(ctx).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: can't send request to %s", err, path)
	}
	defer resp.Body.Close()

	c.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.IsError() {
		if response, ok := resp.Error().(*apiError); ok && response.Message != "" {
			return fmt.Errorf("%s: %s request error", response.Message, path)
		}
		return fmt.Errorf("%s request error: %s", path, resp.Status())
	}
	if resp.IsSuccess() {
		return nil
	}

	return fmt.Errorf("%s unexpected request error: %s", path, resp.Status())
}

// Klines returns up to limit candles of the interval, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	var klines []kline
	err := c.get(ctx, _klinesURL, map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}, &klines)
	if err != nil {
		return nil, fmt.Errorf("%w: can't get %s klines", err, interval)
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, k.Candle)
	}
	return candles, nil
}

// PriceOf returns the last traded price of the symbol.
func (c *Client) PriceOf(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker tickerPrice
	if err := c.get(ctx, _tickerPriceURL, map[string]string{"symbol": symbol}, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("%w: can't get %s price", err, symbol)
	}
	if !ticker.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non positive %s price %s", symbol, ticker.Price)
	}
	return ticker.Price, nil
}

func (c *Client) FundingRate(ctx context.Context, symbol string) (float64, error) {
	var index premiumIndex
	if err := c.get(ctx, _premiumIndexURL, map[string]string{"symbol": symbol}, &index); err != nil {
		return 0, fmt.Errorf("%w: can't get %s funding rate", err, symbol)
	}
	rate, err := strconv.ParseFloat(index.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: can't parse %s funding rate", err, symbol)
	}
	return rate, nil
}

func (c *Client) OpenInterest(ctx context.Context, symbol string) (OpenInterest, error) {
	var latest openInterest
	if err := c.get(ctx, _openInterestURL, map[string]string{"symbol": symbol}, &latest); err != nil {
		return OpenInterest{}, fmt.Errorf("%w: can't get %s open interest", err, symbol)
	}
	value, err := strconv.ParseFloat(latest.OpenInterest, 64)
	if err != nil {
		return OpenInterest{}, fmt.Errorf("%w: can't parse %s open interest", err, symbol)
	}

	var hist []openInterestHist
	err = c.get(ctx, _openInterestHistURL, map[string]string{
		"symbol": symbol,
		"period": _openInterestHistPeriod,
		"limit":  _openInterestHistLimit,
	}, &hist)
	if err != nil {
		return OpenInterest{}, fmt.Errorf("%w: can't get %s open interest history", err, symbol)
	}

	oi := OpenInterest{Latest: value, Average: value}
	if len(hist) == 0 {
		return oi, nil
	}
	var sum float64
	for _, h := range hist {
		v, err := strconv.ParseFloat(h.SumOpenInterest, 64)
		if err != nil {
			return OpenInterest{}, fmt.Errorf("%w: can't parse %s open interest history", err, symbol)
		}
		sum += v
	}
	oi.Average = sum / float64(len(hist))
	return oi, nil
}

// Fetch builds the bundle of one symbol. Candles and price are required,
// funding and open interest fall back to zero.
func (c *Client) Fetch(ctx context.Context, symbol string) Entry {
	intraday, err := c.Klines(ctx, symbol, c.cfg.IntradayInterval, c.cfg.CandlesLimit)
	if err != nil {
		return newFailure(symbol, err)
	}
	longTerm, err := c.Klines(ctx, symbol, c.cfg.LongTermInterval, c.cfg.CandlesLimit)
	if err != nil {
		return newFailure(symbol, err)
	}
	price, err := c.PriceOf(ctx, symbol)
	if err != nil {
		return newFailure(symbol, err)
	}

	funding, err := c.FundingRate(ctx, symbol)
	if err != nil {
		c.logger.Warnf("%s: can't get funding rate, using 0", err)
	}
	oi, err := c.OpenInterest(ctx, symbol)
	if err != nil {
		c.logger.Warnf("%s: can't get open interest, using 0", err)
	}

	b := &Bundle{
		Symbol:       symbol,
		Price:        price,
		FundingRate:  funding,
		OpenInterest: oi,
		Intraday:     c.series(intraday),
		LongTerm:     c.series(longTerm),
		FetchedAt:    c.now().UTC(),
	}
	b.EMAFast = indicators.Last(b.Intraday.EMAFast)
	b.MACD = indicators.Last(b.Intraday.MACD)
	b.RSIShort = indicators.Last(b.Intraday.RSIShort)
	return b
}

// FetchAll fetches every configured symbol concurrently. Entries keep the
// order of the configured symbols.
func (c *Client) FetchAll(ctx context.Context) []Entry {
	entries := make([]Entry, len(c.symbols))

	var wg sync.WaitGroup
	for i, symbol := range c.symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries[i] = c.Fetch(ctx, symbol)
		}()
	}
	wg.Wait()

	return entries
}

func (c *Client) series(candles []model.Candle) Series {
	mids := indicators.MidPrices(candles)
	closes := make([]float64, 0, len(candles))
	for _, candle := range candles {
		closes = append(closes, candle.Close)
	}

	return Series{
		MidPrices: mids,
		EMAFast:   indicators.EMA(closes, c.ind.EMA.FastLength),
		EMASlow:   indicators.EMA(closes, c.ind.EMA.SlowLength),
		MACD:      indicators.MACD(closes, c.ind.MACD.FastLength, c.ind.MACD.SlowLength),
		RSIShort:  indicators.RSI(closes, c.ind.RSI.ShortLength),
		RSILong:   indicators.RSI(closes, c.ind.RSI.LongLength),
		ATRShort:  indicators.ATR(candles, c.ind.ATR.ShortLength),
		ATRLong:   indicators.ATR(candles, c.ind.ATR.LongLength),
		Volume:    indicators.Volume(candles),
	}
}
