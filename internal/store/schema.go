package store

import (
	"context"
	"fmt"
)

// Money and quantity columns are NUMERIC(20,8) on postgres. sqlite keeps them as
// TEXT so decimals round-trip exactly instead of passing through REAL.
var _postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		seq                  BIGSERIAL,
		id                   UUID PRIMARY KEY,
		initial_balance      NUMERIC(20,8) NOT NULL,
		current_balance      NUMERIC(20,8) NOT NULL,
		total_pnl            NUMERIC(20,8) NOT NULL DEFAULT 0,
		account_value        NUMERIC(20,8) NOT NULL DEFAULT 0,
		crypto_value         NUMERIC(20,8) NOT NULL DEFAULT 0,
		total_return_percent NUMERIC(20,8) NOT NULL DEFAULT 0,
		sharpe_ratio         NUMERIC(20,8) NOT NULL DEFAULT 0,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		seq            BIGSERIAL,
		id             UUID PRIMARY KEY,
		account_id     UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		symbol         TEXT NOT NULL,
		side           TEXT NOT NULL,
		quantity       NUMERIC(20,8) NOT NULL,
		entry_price    NUMERIC(20,8) NOT NULL,
		current_price  NUMERIC(20,8) NOT NULL,
		unrealized_pnl NUMERIC(20,8) NOT NULL DEFAULT 0,
		leverage       INTEGER NOT NULL DEFAULT 1 CHECK (leverage >= 1),
		is_open        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS positions_one_open_idx ON positions (account_id, symbol) WHERE is_open`,
	`CREATE TABLE IF NOT EXISTS orders (
		seq                 BIGSERIAL,
		id                  UUID PRIMARY KEY,
		account_id          UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		agent_invocation_id TEXT,
		position_id         UUID REFERENCES positions (id) ON DELETE SET NULL,
		symbol              TEXT NOT NULL,
		side                TEXT NOT NULL,
		order_type          TEXT NOT NULL,
		quantity            NUMERIC(20,8) NOT NULL,
		price               NUMERIC(20,8) NOT NULL,
		filled_price        NUMERIC(20,8) NOT NULL,
		status              TEXT NOT NULL DEFAULT 'PENDING',
		realized_pnl        NUMERIC(20,8),
		trade_value         NUMERIC(20,8) NOT NULL,
		metadata            JSONB,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_account_seq_idx ON orders (account_id, seq)`,
	`CREATE TABLE IF NOT EXISTS account_snapshots (
		seq                  BIGSERIAL,
		id                   UUID PRIMARY KEY,
		account_id           UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		account_value        NUMERIC(20,8) NOT NULL,
		current_balance      NUMERIC(20,8) NOT NULL,
		crypto_value         NUMERIC(20,8) NOT NULL,
		total_pnl            NUMERIC(20,8) NOT NULL,
		total_return_percent NUMERIC(20,8) NOT NULL,
		sharpe_ratio         NUMERIC(20,8) NOT NULL,
		snapshot_at          TIMESTAMPTZ NOT NULL,
		created_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS account_snapshots_account_at_idx ON account_snapshots (account_id, snapshot_at, seq)`,
	`CREATE TABLE IF NOT EXISTS agent_invocations (
		seq              BIGSERIAL,
		id               TEXT PRIMARY KEY,
		account_id       UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		session_state    JSONB NOT NULL,
		market_data      JSONB NOT NULL,
		metrics          JSONB NOT NULL,
		chain_of_thought TEXT NOT NULL DEFAULT '',
		agent_response   JSONB,
		finish_reason    TEXT,
		error            TEXT,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS agent_invocations_account_seq_idx ON agent_invocations (account_id, seq)`,
}

var _sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS accounts (
		seq                  INTEGER PRIMARY KEY AUTOINCREMENT,
		id                   TEXT NOT NULL UNIQUE,
		initial_balance      TEXT NOT NULL,
		current_balance      TEXT NOT NULL,
		total_pnl            TEXT NOT NULL DEFAULT '0',
		account_value        TEXT NOT NULL DEFAULT '0',
		crypto_value         TEXT NOT NULL DEFAULT '0',
		total_return_percent TEXT NOT NULL DEFAULT '0',
		sharpe_ratio         TEXT NOT NULL DEFAULT '0',
		created_at           TIMESTAMP NOT NULL,
		updated_at           TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		id             TEXT NOT NULL UNIQUE,
		account_id     TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		symbol         TEXT NOT NULL,
		side           TEXT NOT NULL,
		quantity       TEXT NOT NULL,
		entry_price    TEXT NOT NULL,
		current_price  TEXT NOT NULL,
		unrealized_pnl TEXT NOT NULL DEFAULT '0',
		leverage       INTEGER NOT NULL DEFAULT 1 CHECK (leverage >= 1),
		is_open        BOOLEAN NOT NULL DEFAULT 1,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS positions_one_open_idx ON positions (account_id, symbol) WHERE is_open`,
	`CREATE TABLE IF NOT EXISTS orders (
		seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
		id                  TEXT NOT NULL UNIQUE,
		account_id          TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		agent_invocation_id TEXT,
		position_id         TEXT REFERENCES positions (id) ON DELETE SET NULL,
		symbol              TEXT NOT NULL,
		side                TEXT NOT NULL,
		order_type          TEXT NOT NULL,
		quantity            TEXT NOT NULL,
		price               TEXT NOT NULL,
		filled_price        TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'PENDING',
		realized_pnl        TEXT,
		trade_value         TEXT NOT NULL,
		metadata            TEXT,
		created_at          TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_account_seq_idx ON orders (account_id, seq)`,
	`CREATE TABLE IF NOT EXISTS account_snapshots (
		seq                  INTEGER PRIMARY KEY AUTOINCREMENT,
		id                   TEXT NOT NULL UNIQUE,
		account_id           TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		account_value        TEXT NOT NULL,
		current_balance      TEXT NOT NULL,
		crypto_value         TEXT NOT NULL,
		total_pnl            TEXT NOT NULL,
		total_return_percent TEXT NOT NULL,
		sharpe_ratio         TEXT NOT NULL,
		snapshot_at          TIMESTAMP NOT NULL,
		created_at           TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS account_snapshots_account_at_idx ON account_snapshots (account_id, snapshot_at, seq)`,
	`CREATE TABLE IF NOT EXISTS agent_invocations (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		account_id       TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		session_state    TEXT NOT NULL,
		market_data      TEXT NOT NULL,
		metrics          TEXT NOT NULL,
		chain_of_thought TEXT NOT NULL DEFAULT '',
		agent_response   TEXT,
		finish_reason    TEXT,
		error            TEXT,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS agent_invocations_account_seq_idx ON agent_invocations (account_id, seq)`,
}

// Migrate creates the ledger tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := _postgresSchema
	if s.dialect == SQLite {
		stmts = _sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: can't apply schema", err)
		}
	}
	return nil
}
