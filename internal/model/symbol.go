package model

import "github.com/shopspring/decimal"

type SymbolConfig struct {
	Symbol            string  `yaml:"symbol"`
	DisplayName       string  `yaml:"display_name"`
	DefaultLeverage   int     `yaml:"default_leverage"`
	MinOrderSize      float64 `yaml:"min_order_size"`
	PricePrecision    int32   `yaml:"price_precision"`
	QuantityPrecision int32   `yaml:"quantity_precision"`
}

func (c SymbolConfig) FormatQuantity(q decimal.Decimal) decimal.Decimal {
	return q.Truncate(c.QuantityPrecision)
}

func (c SymbolConfig) FormatPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(c.PricePrecision)
}

var DefaultSymbolConfigs = map[string]SymbolConfig{
	"BTCUSDT": {
		Symbol:            "BTCUSDT",
		DisplayName:       "Bitcoin Perpetual",
		DefaultLeverage:   10,
		MinOrderSize:      0.001,
		PricePrecision:    2,
		QuantityPrecision: 3,
	},
	"ETHUSDT": {
		Symbol:            "ETHUSDT",
		DisplayName:       "Ethereum Perpetual",
		DefaultLeverage:   10,
		MinOrderSize:      0.01,
		PricePrecision:    2,
		QuantityPrecision: 2,
	},
	"SOLUSDT": {
		Symbol:            "SOLUSDT",
		DisplayName:       "Solana Perpetual",
		DefaultLeverage:   10,
		MinOrderSize:      0.1,
		PricePrecision:    3,
		QuantityPrecision: 1,
	},
	"BNBUSDT": {
		Symbol:            "BNBUSDT",
		DisplayName:       "BNB Perpetual",
		DefaultLeverage:   10,
		MinOrderSize:      0.01,
		PricePrecision:    2,
		QuantityPrecision: 2,
	},
	"XRPUSDT": {
		Symbol:            "XRPUSDT",
		DisplayName:       "XRP Perpetual",
		DefaultLeverage:   10,
		MinOrderSize:      1,
		PricePrecision:    5,
		QuantityPrecision: 1,
	},
	"DOGEUSDT": {
		Symbol:            "DOGEUSDT",
		DisplayName:       "DOGE Perpetual",
		DefaultLeverage:   10,
		MinOrderSize:      1,
		PricePrecision:    6,
		QuantityPrecision: 0,
	},
}
