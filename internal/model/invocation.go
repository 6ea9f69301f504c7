package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// JSON is a raw document kept in a JSONB column on postgres and TEXT on sqlite.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("can't scan %T into JSON", src)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

const (
	FinishStop  = "stop"
	FinishError = "error"
)

// AgentInvocation records one decision request and what came of it. It is
// written before the agent is asked and completed once the decisions ran.
type AgentInvocation struct {
	ID             string    `db:"id" json:"id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	SessionState   JSON      `db:"session_state" json:"session_state"`
	MarketData     JSON      `db:"market_data" json:"market_data"`
	Metrics        JSON      `db:"metrics" json:"metrics"`
	ChainOfThought string    `db:"chain_of_thought" json:"chain_of_thought"`
	AgentResponse  JSON      `db:"agent_response" json:"agent_response"`
	FinishReason   *string   `db:"finish_reason" json:"finish_reason"`
	Error          *string   `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
