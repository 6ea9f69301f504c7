package marketdata

import (
	"time"

	"github.com/STTM-NSU/paper-trader/internal/indicators"
	"github.com/shopspring/decimal"
)

// Entry is the market data of one symbol: either a *Bundle or a *Failure.
type Entry interface {
	symbolName() string
}

// SymbolOf returns the symbol an entry belongs to.
func SymbolOf(e Entry) string {
	return e.symbolName()
}

type Series struct {
	MidPrices []float64              `json:"mid_prices"`
	EMAFast   []float64              `json:"ema_fast"`
	EMASlow   []float64              `json:"ema_slow"`
	MACD      []float64              `json:"macd"`
	RSIShort  []float64              `json:"rsi_short"`
	RSILong   []float64              `json:"rsi_long"`
	ATRShort  []float64              `json:"atr_short"`
	ATRLong   []float64              `json:"atr_long"`
	Volume    indicators.VolumeStats `json:"volume"`
}

type OpenInterest struct {
	Latest  float64 `json:"latest"`
	Average float64 `json:"average"`
}

type Bundle struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"current_price"`
	EMAFast      float64         `json:"current_ema_fast"`
	MACD         float64         `json:"current_macd"`
	RSIShort     float64         `json:"current_rsi_short"`
	FundingRate  float64         `json:"funding_rate"`
	OpenInterest OpenInterest    `json:"open_interest"`
	Intraday     Series          `json:"intraday"`
	LongTerm     Series          `json:"long_term"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

func (b *Bundle) symbolName() string { return b.Symbol }

type Failure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"error"`
	Err    error  `json:"-"`
}

func (f *Failure) symbolName() string { return f.Symbol }

func (f *Failure) Error() string {
	return f.Symbol + ": " + f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

func newFailure(symbol string, err error) *Failure {
	return &Failure{Symbol: symbol, Reason: err.Error(), Err: err}
}
