package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/bytedance/sonic"
)

const (
	DefaultInvocationsLimit = 100
	MaxInvocationsLimit     = 1000
)

// InvocationRequest is the request half of an agent invocation. The values are
// stored as JSON documents.
type InvocationRequest struct {
	ID         string
	AccountID  string
	Session    any
	MarketData any
	Metrics    any
}

// InvocationOutcome completes an invocation. A non-nil Err marks it failed.
type InvocationOutcome struct {
	ChainOfThought string
	Response       any
	FinishReason   string
	Err            error
}

// RecordInvocation stores a decision request before the agent sees it, so
// every order carrying the invocation id has a row to point at.
func (l *Ledger) RecordInvocation(ctx context.Context, req InvocationRequest) (model.AgentInvocation, error) {
	if req.ID == "" {
		return model.AgentInvocation{}, errors.New("empty invocation id")
	}
	if _, err := l.GetAccount(ctx, req.AccountID); err != nil {
		return model.AgentInvocation{}, err
	}

	now := l.timestamp()
	inv := model.AgentInvocation{
		ID:        req.ID,
		AccountID: req.AccountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var err error
	if inv.SessionState, err = encodeDocument("session state", req.Session); err != nil {
		return model.AgentInvocation{}, err
	}
	if inv.MarketData, err = encodeDocument("market data", req.MarketData); err != nil {
		return model.AgentInvocation{}, err
	}
	if inv.Metrics, err = encodeDocument("metrics", req.Metrics); err != nil {
		return model.AgentInvocation{}, err
	}

	if err := l.store.InsertInvocation(ctx, inv); err != nil {
		return model.AgentInvocation{}, err
	}
	return inv, nil
}

func (l *Ledger) CompleteInvocation(ctx context.Context, id string, out InvocationOutcome) error {
	res := store.InvocationResult{
		ChainOfThought: out.ChainOfThought,
		FinishReason:   out.FinishReason,
	}
	if out.Response != nil {
		doc, err := encodeDocument("agent response", out.Response)
		if err != nil {
			return err
		}
		res.AgentResponse = doc
	}
	if out.Err != nil {
		res.FinishReason = model.FinishError
		res.Error = optional(out.Err.Error())
	}
	if res.FinishReason == "" {
		res.FinishReason = model.FinishStop
	}

	err := l.store.CompleteInvocation(ctx, id, res, l.timestamp())
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("agent invocation %s not found", id)
	}
	return err
}

// ListInvocations returns the latest invocations of the account, newest first.
// limit outside 1..MaxInvocationsLimit falls back to DefaultInvocationsLimit.
func (l *Ledger) ListInvocations(ctx context.Context, accountID string, limit int) ([]model.AgentInvocation, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxInvocationsLimit {
		limit = DefaultInvocationsLimit
	}
	return l.store.ListInvocations(ctx, accountID, limit)
}

func encodeDocument(what string, v any) (model.JSON, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: can't encode %s", err, what)
	}
	return model.JSON(b), nil
}
