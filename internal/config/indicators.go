package config

import "fmt"

type EMAConfig struct {
	FastLength int `yaml:"fast_length"`
	SlowLength int `yaml:"slow_length"`
}

type MACDConfig struct {
	FastLength int `yaml:"fast_length"`
	SlowLength int `yaml:"slow_length"`
}

type RSIConfig struct {
	ShortLength int `yaml:"short_length"`
	LongLength  int `yaml:"long_length"`
}

type ATRConfig struct {
	ShortLength int `yaml:"short_length"`
	LongLength  int `yaml:"long_length"`
}

type IndicatorsConfig struct {
	EMA  EMAConfig  `yaml:"ema"`
	MACD MACDConfig `yaml:"macd"`
	RSI  RSIConfig  `yaml:"rsi"`
	ATR  ATRConfig  `yaml:"atr"`
}

func (c *IndicatorsConfig) Setup() error {
	if c.EMA.FastLength <= 0 {
		c.EMA.FastLength = 20
	}
	if c.EMA.SlowLength <= 0 {
		c.EMA.SlowLength = 50
	}

	if c.MACD.FastLength <= 0 {
		c.MACD.FastLength = 12
	}
	if c.MACD.SlowLength <= 0 {
		c.MACD.SlowLength = 26
	}
	if c.MACD.FastLength >= c.MACD.SlowLength {
		return fmt.Errorf("macd fast length %d must be less than slow length %d", c.MACD.FastLength, c.MACD.SlowLength)
	}

	if c.RSI.ShortLength <= 0 {
		c.RSI.ShortLength = 7
	}
	if c.RSI.LongLength <= 0 {
		c.RSI.LongLength = 14
	}

	if c.ATR.ShortLength <= 0 {
		c.ATR.ShortLength = 3
	}
	if c.ATR.LongLength <= 0 {
		c.ATR.LongLength = 14
	}

	return nil
}
