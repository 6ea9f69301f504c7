package store

import (
	"context"
	"fmt"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
)

const (
	_invocationColumns = `id, account_id, session_state, market_data, metrics, chain_of_thought,
		agent_response, finish_reason, error, created_at, updated_at`

	_queryInvocations = "SELECT " + _invocationColumns + ` FROM agent_invocations
							WHERE account_id = ?
							ORDER BY seq DESC
							LIMIT ?`
	_queryInvocation = "SELECT " + _invocationColumns + " FROM agent_invocations WHERE id = ?"

	_insertInvocation = `INSERT INTO agent_invocations (
							id, account_id, session_state, market_data, metrics, chain_of_thought,
							created_at, updated_at
						) VALUES (?, ?, ?, ?, ?, '', ?, ?)`
	_completeInvocation = `UPDATE agent_invocations SET
								chain_of_thought = ?,
								agent_response = ?,
								finish_reason = ?,
								error = ?,
								updated_at = ?
							WHERE id = ?`
)

// InvocationResult is what CompleteInvocation writes back.
type InvocationResult struct {
	ChainOfThought string
	AgentResponse  model.JSON
	FinishReason   string
	Error          *string
}

// InsertInvocation stores the request half of an invocation. The response
// columns stay empty until CompleteInvocation.
func (q *Queries) InsertInvocation(ctx context.Context, inv model.AgentInvocation) error {
	if _, err := q.exec(ctx, _insertInvocation,
		inv.ID,
		inv.AccountID,
		inv.SessionState,
		inv.MarketData,
		inv.Metrics,
		inv.CreatedAt.UTC(),
		inv.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("%w: can't insert agent invocation", err)
	}
	return nil
}

func (q *Queries) CompleteInvocation(ctx context.Context, id string, res InvocationResult, now time.Time) error {
	n, err := q.exec(ctx, _completeInvocation,
		res.ChainOfThought,
		res.AgentResponse,
		res.FinishReason,
		res.Error,
		now.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("%w: can't complete agent invocation", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *Queries) GetInvocation(ctx context.Context, id string) (model.AgentInvocation, error) {
	var inv model.AgentInvocation
	if err := q.get(ctx, &inv, _queryInvocation, id); err != nil {
		return inv, err
	}
	return inv, nil
}

// ListInvocations returns the latest limit invocations of the account, newest
// first.
func (q *Queries) ListInvocations(ctx context.Context, accountID string, limit int) ([]model.AgentInvocation, error) {
	invocations := make([]model.AgentInvocation, 0)
	if err := q.selectAll(ctx, &invocations, _queryInvocations, accountID, limit); err != nil {
		return nil, fmt.Errorf("%w: can't query agent invocations", err)
	}
	return invocations, nil
}
