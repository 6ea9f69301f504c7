// Package agent asks an external decision service what to trade.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/config"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/marketdata"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/shopspring/decimal"
	"resty.dev/v3"
)

const (
	_decideURL = "/decide"
)

type Action string

const (
	Open  Action = "open"
	Close Action = "close"
	Hold  Action = "hold"
)

// Decision is one instruction of the agent. Quantity is required for open,
// an empty quantity on close closes the whole position.
type Decision struct {
	Action   Action              `json:"action"`
	Symbol   string              `json:"symbol"`
	Side     model.Side          `json:"side,omitempty"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Reason   string              `json:"reason,omitempty"`
}

// Session describes the running bot: when it started and how many times the
// agent was asked before this request.
type Session struct {
	StartedAt       time.Time `json:"start_time"`
	InvocationCount int       `json:"invocation_count"`
}

type Request struct {
	InvocationID string             `json:"invocation_id"`
	Session      Session            `json:"session"`
	Account      model.Metrics      `json:"account"`
	MarketData   []marketdata.Entry `json:"market_data"`
}

// Response is what the decision service answered. Reasoning and FinishReason
// are optional and only recorded.
type Response struct {
	Decisions    []Decision `json:"decisions"`
	Reasoning    string     `json:"reasoning,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

type Agent interface {
	Decide(ctx context.Context, req Request) (Response, error)
}

type errorResponse struct {
	Message string `json:"message"`
}

// WebhookAgent posts the account and market state to the decision service.
type WebhookAgent struct {
	c   *resty.Client
	cfg config.AgentConfig

	logger logger.Logger
}

func NewWebhookAgent(cfg config.AgentConfig, logger logger.Logger) *WebhookAgent {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.Timeout)

	return &WebhookAgent{
		c:      client,
		cfg:    cfg,
		logger: logger,
	}
}

// curl -X POST "http://localhost:8000/decide" -H "content-type: application/json" -d '{"invocation_id":"...","account":{...},"market_data":[...]}'
func (a *WebhookAgent) Decide(ctx context.Context, r Request) (Response, error) {
	if r.InvocationID == "" {
		return Response{}, fmt.Errorf("empty invocation id")
	}

	req := a.c.R().
		SetBody(r).
		SetResult(&Response{}).
		SetError(&errorResponse{}).
		SetContext(ctx)

	resp, err := req.Post(_decideURL)
	if err != nil {
		return Response{}, fmt.Errorf("%w: can't send request for decisions", err)
	}
	defer resp.Body.Close()

	a.logger.Debugf("got response %s status: %s, %s", resp.Request.URL, resp.Status(), resp.Duration())

	if resp.IsError() {
		if response, ok := resp.Error().(*errorResponse); ok && response.Message != "" {
			return Response{}, fmt.Errorf("%s: decision request error", response.Message)
		}
		return Response{}, fmt.Errorf("decision request error: %s", resp.Status())
	}
	if resp.IsSuccess() {
		response := *resp.Result().(*Response)
		for i := range response.Decisions {
			if err := response.Decisions[i].validate(); err != nil {
				return Response{}, fmt.Errorf("%w: invalid decision %d", err, i)
			}
		}
		return response, nil
	}

	return Response{}, fmt.Errorf("decision unexpected request error: %s", resp.Status())
}

func (d *Decision) validate() error {
	switch d.Action {
	case Hold:
		return nil
	case Open:
		side, err := parseSide(string(d.Side))
		if err != nil {
			return err
		}
		d.Side = side
		if !d.Quantity.Valid {
			return fmt.Errorf("open %s without quantity", d.Symbol)
		}
	case Close:
	default:
		return fmt.Errorf("unknown action %q", d.Action)
	}
	if d.Symbol == "" {
		return fmt.Errorf("%s without symbol", d.Action)
	}
	return nil
}

// parseSide also accepts lower case and long / short.
func parseSide(s string) (model.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG":
		return model.Buy, nil
	case "SHORT":
		return model.Sell, nil
	default:
		return model.ParseSide(strings.ToUpper(strings.TrimSpace(s)))
	}
}
