package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type ScheduleConfig struct {
	DecisionInterval     time.Duration `yaml:"decision_interval"`
	PriceRefreshInterval time.Duration `yaml:"price_refresh_interval"`
	MaxIterations        int           `yaml:"max_iterations"` // negative runs until stopped
}

const (
	_decisionIntervalDefault     = 5 * time.Minute
	_priceRefreshIntervalDefault = 1 * time.Minute
	_maxIterationsDefault        = 100
)

func (c *ScheduleConfig) Setup() {
	if c.DecisionInterval <= 0 {
		c.DecisionInterval = _decisionIntervalDefault
	}
	if c.PriceRefreshInterval <= 0 {
		c.PriceRefreshInterval = _priceRefreshIntervalDefault
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = _maxIterationsDefault
	}
}

type MarketDataConfig struct {
	Address           string        `yaml:"address"`
	IntradayInterval  string        `yaml:"intraday_interval"`
	LongTermInterval  string        `yaml:"long_term_interval"`
	CandlesLimit      int           `yaml:"candles_limit"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

const (
	_marketDataAddressDefault = "https://fapi.binance.com"
	_intradayIntervalDefault  = "5m"
	_longTermIntervalDefault  = "4h"
	_candlesLimitDefault      = 50
	_requestsPerMinuteDefault = 1200
	_requestTimeoutDefault    = 10 * time.Second
)

func (c *MarketDataConfig) Setup() error {
	if c.Address == "" {
		c.Address = _marketDataAddressDefault
	}
	if _, err := url.Parse(c.Address); err != nil {
		return err
	}

	if c.IntradayInterval == "" {
		c.IntradayInterval = _intradayIntervalDefault
	}
	if c.LongTermInterval == "" {
		c.LongTermInterval = _longTermIntervalDefault
	}
	if c.CandlesLimit <= 0 {
		c.CandlesLimit = _candlesLimitDefault
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = _requestsPerMinuteDefault
	}
	if c.Timeout <= 0 {
		c.Timeout = _requestTimeoutDefault
	}

	return nil
}

// AgentConfig points at the decision service. An empty address disables the
// decision job, prices are still refreshed.
type AgentConfig struct {
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

const _agentTimeoutDefault = 2 * time.Minute

func (c *AgentConfig) Setup() error {
	if c.Address != "" {
		if _, err := url.Parse(c.Address); err != nil {
			return err
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = _agentTimeoutDefault
	}
	return nil
}

type HTTPConfig struct {
	Port string `yaml:"port"`
}

type TradingBotConfig struct {
	InitialBalance decimal.Decimal      `yaml:"initial_balance"`
	Symbols        []string             `yaml:"symbols"`
	SymbolConfigs  []model.SymbolConfig `yaml:"symbol_configs"` // overrides DefaultSymbolConfigs
	Schedule       ScheduleConfig       `yaml:"schedule"`
	MarketData     MarketDataConfig     `yaml:"market_data"`
	Agent          AgentConfig          `yaml:"agent"`
	HTTP           HTTPConfig           `yaml:"http"`
	Indicators     IndicatorsConfig     `yaml:"indicators"`
	LogLevel       string               `yaml:"log_level"`
}

var _initialBalanceDefault = decimal.NewFromInt(10000)

const (
	_symbolDefault   = "ETHUSDT"
	_httpPortDefault = "8080"
)

func (c *TradingBotConfig) ValidateAndSetup() error {
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("negative initial balance %s", c.InitialBalance)
	}
	if c.InitialBalance.IsZero() {
		c.InitialBalance = _initialBalanceDefault
	}

	if len(c.Symbols) == 0 {
		c.Symbols = []string{_symbolDefault}
	}
	symbols, err := resolveSymbols(c.Symbols, c.SymbolConfigs)
	if err != nil {
		return fmt.Errorf("%w: can't resolve symbols", err)
	}
	c.SymbolConfigs = symbols

	c.Schedule.Setup()

	if err := c.MarketData.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup market data", err)
	}
	if err := c.Agent.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup agent", err)
	}
	if err := c.Indicators.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup indicators", err)
	}

	if c.HTTP.Port == "" {
		c.HTTP.Port = _httpPortDefault
	}

	return nil
}

func resolveSymbols(symbols []string, overrides []model.SymbolConfig) ([]model.SymbolConfig, error) {
	byName := make(map[string]model.SymbolConfig, len(overrides))
	for _, o := range overrides {
		byName[o.Symbol] = o
	}

	seen := make(map[string]struct{}, len(symbols))
	resolved := make([]model.SymbolConfig, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			return nil, fmt.Errorf("duplicate symbol %s", s)
		}
		seen[s] = struct{}{}

		if cfg, ok := byName[s]; ok {
			resolved = append(resolved, cfg)
			continue
		}
		cfg, ok := model.DefaultSymbolConfigs[s]
		if !ok {
			return nil, fmt.Errorf("no config for symbol %s", s)
		}
		resolved = append(resolved, cfg)
	}
	return resolved, nil
}

func LoadTradingBotConfig(filename string) (TradingBotConfig, error) {
	var cfg TradingBotConfig
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
