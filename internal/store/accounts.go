package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	_accountColumns = `id, initial_balance, current_balance, total_pnl, account_value, crypto_value,
		total_return_percent, sharpe_ratio, created_at, updated_at`

	_queryFirstAccount = "SELECT " + _accountColumns + " FROM accounts ORDER BY seq LIMIT 1"
	_queryAccount      = "SELECT " + _accountColumns + " FROM accounts WHERE id = ?"
	_queryAccounts     = "SELECT " + _accountColumns + " FROM accounts ORDER BY seq"

	_insertAccount = `INSERT INTO accounts (
							id, initial_balance, current_balance, total_pnl, account_value,
							crypto_value, total_return_percent, sharpe_ratio, created_at, updated_at
						) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_updateAccountBalance = "UPDATE accounts SET current_balance = ?, total_pnl = ?, updated_at = ? WHERE id = ?"
	_updateAccountMetrics = `UPDATE accounts SET
								account_value = ?,
								crypto_value = ?,
								total_return_percent = ?,
								sharpe_ratio = ?
							WHERE id = ?`
	_deleteAccount = "DELETE FROM accounts WHERE id = ?"

	_lockAccountCreation = "SELECT pg_advisory_xact_lock(?)"
	_accountCreationKey  = 0x70617065 // "pape"
)

// GetOrCreateAccount returns the first account of the deployment, creating it
// with initialBalance when the table is empty.
func (s *Store) GetOrCreateAccount(ctx context.Context, initialBalance decimal.Decimal, now time.Time) (model.Account, bool, error) {
	var (
		account model.Account
		created bool
	)
	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.lockAccountCreation(ctx); err != nil {
			return err
		}

		err := tx.get(ctx, &account, _queryFirstAccount+tx.forUpdate())
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: can't query account", err)
		}

		account, err = tx.InsertAccount(ctx, initialBalance, now)
		created = err == nil
		return err
	})
	return account, created, err
}

// lockAccountCreation takes a transaction scoped advisory lock on postgres, where
// FOR UPDATE on an empty table locks nothing. sqlite already serializes writers
// and runs on a single connection.
func (q *Queries) lockAccountCreation(ctx context.Context) error {
	if q.dialect != Postgres {
		return nil
	}
	if _, err := q.q.ExecContext(ctx, q.q.Rebind(_lockAccountCreation), _accountCreationKey); err != nil {
		return fmt.Errorf("%w: can't lock account creation", err)
	}
	return nil
}

func (q *Queries) InsertAccount(ctx context.Context, initialBalance decimal.Decimal, now time.Time) (model.Account, error) {
	account := model.Account{
		ID:             uuid.NewString(),
		InitialBalance: initialBalance,
		CurrentBalance: initialBalance,
		AccountValue:   initialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := q.exec(ctx, _insertAccount,
		account.ID,
		account.InitialBalance,
		account.CurrentBalance,
		account.TotalPnL,
		account.AccountValue,
		account.CryptoValue,
		account.TotalReturnPercent,
		account.SharpeRatio,
		account.CreatedAt,
		account.UpdatedAt,
	); err != nil {
		return model.Account{}, fmt.Errorf("%w: can't insert account", err)
	}
	return account, nil
}

func (q *Queries) GetAccount(ctx context.Context, id string) (model.Account, error) {
	var account model.Account
	if err := q.get(ctx, &account, _queryAccount, id); err != nil {
		return account, err
	}
	return account, nil
}

// GetAccountForUpdate reads the account and, on postgres, holds its row lock
// until the transaction ends.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id string) (model.Account, error) {
	var account model.Account
	if err := q.get(ctx, &account, _queryAccount+q.forUpdate(), id); err != nil {
		return account, err
	}
	return account, nil
}

func (q *Queries) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := q.selectAll(ctx, &accounts, _queryAccounts); err != nil {
		return nil, fmt.Errorf("%w: can't query accounts", err)
	}
	return accounts, nil
}

func (q *Queries) UpdateAccountBalance(ctx context.Context, id string, balance, totalPnL decimal.Decimal, now time.Time) error {
	n, err := q.exec(ctx, _updateAccountBalance, balance, totalPnL, now, id)
	if err != nil {
		return fmt.Errorf("%w: can't update account balance", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAccountMetrics rewrites the cached metric columns only, so repeating it
// with the same metrics leaves the row unchanged.
func (q *Queries) UpdateAccountMetrics(ctx context.Context, id string, m model.Metrics) error {
	n, err := q.exec(ctx, _updateAccountMetrics,
		m.AccountValue,
		m.CryptoValue,
		m.TotalReturnPercent,
		m.SharpeRatio,
		id,
	)
	if err != nil {
		return fmt.Errorf("%w: can't update account metrics", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes the account with its positions, orders and snapshots.
func (q *Queries) DeleteAccount(ctx context.Context, id string) error {
	n, err := q.exec(ctx, _deleteAccount, id)
	if err != nil {
		return fmt.Errorf("%w: can't delete account", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
