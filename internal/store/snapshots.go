package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
)

const (
	_snapshotColumns = `id, account_id, account_value, current_balance, crypto_value, total_pnl,
		total_return_percent, sharpe_ratio, snapshot_at, created_at`

	_querySnapshots        = "SELECT " + _snapshotColumns + " FROM account_snapshots"
	_queryLatestSnapshotAt = "SELECT " + _snapshotColumns + ` FROM account_snapshots
								WHERE account_id = ? AND snapshot_at <= ?
								ORDER BY snapshot_at DESC, seq DESC
								LIMIT 1`

	_insertSnapshot = `INSERT INTO account_snapshots (
							id, account_id, account_value, current_balance, crypto_value, total_pnl,
							total_return_percent, sharpe_ratio, snapshot_at, created_at
						) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// SnapshotFilter narrows ListSnapshots. Zero fields match everything; From and
// To are inclusive.
type SnapshotFilter struct {
	AccountID string
	From      *time.Time
	To        *time.Time
}

func (q *Queries) InsertSnapshot(ctx context.Context, s model.AccountSnapshot) error {
	if _, err := q.exec(ctx, _insertSnapshot,
		s.ID,
		s.AccountID,
		s.AccountValue,
		s.CurrentBalance,
		s.CryptoValue,
		s.TotalPnL,
		s.TotalReturnPercent,
		s.SharpeRatio,
		s.SnapshotAt.UTC(),
		s.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("%w: can't insert snapshot", err)
	}
	return nil
}

// ListSnapshots returns snapshots ordered by snapshot_at, ties in insertion order.
func (q *Queries) ListSnapshots(ctx context.Context, f SnapshotFilter) ([]model.AccountSnapshot, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.From != nil {
		where = append(where, "snapshot_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "snapshot_at <= ?")
		args = append(args, f.To.UTC())
	}

	query := _querySnapshots
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY snapshot_at, seq"

	snapshots := make([]model.AccountSnapshot, 0)
	if err := q.selectAll(ctx, &snapshots, query, args...); err != nil {
		return nil, fmt.Errorf("%w: can't query snapshots", err)
	}
	return snapshots, nil
}

// LatestSnapshotAt returns the last snapshot taken at or before at, or
// ErrNotFound.
func (q *Queries) LatestSnapshotAt(ctx context.Context, accountID string, at time.Time) (model.AccountSnapshot, error) {
	var s model.AccountSnapshot
	if err := q.get(ctx, &s, _queryLatestSnapshotAt, accountID, at.UTC()); err != nil {
		return s, err
	}
	return s, nil
}
