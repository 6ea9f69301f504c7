package ledger

import (
	"context"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/google/uuid"
)

// CreateSnapshot recomputes the metrics and appends them as a snapshot taken
// now. Two calls in the same instant produce two rows.
func (l *Ledger) CreateSnapshot(ctx context.Context, accountID string) (model.AccountSnapshot, error) {
	unlock := l.locks.Lock(accountID)
	defer unlock()

	var snapshot model.AccountSnapshot
	err := l.store.InTx(ctx, func(tx *store.Tx) error {
		account, err := getAccount(ctx, tx.Queries, accountID, true)
		if err != nil {
			return err
		}
		m, err := recompute(ctx, tx.Queries, account)
		if err != nil {
			return err
		}

		now := l.timestamp()
		snapshot = model.AccountSnapshot{
			ID:                 uuid.NewString(),
			AccountID:          account.ID,
			AccountValue:       m.AccountValue,
			CurrentBalance:     account.CurrentBalance,
			CryptoValue:        m.CryptoValue,
			TotalPnL:           account.TotalPnL,
			TotalReturnPercent: m.TotalReturnPercent,
			SharpeRatio:        m.SharpeRatio,
			SnapshotAt:         now,
			CreatedAt:          now,
		}
		return tx.InsertSnapshot(ctx, snapshot)
	})
	if err != nil {
		return model.AccountSnapshot{}, err
	}

	l.logger.Debugf("snapshot of %s: value %s", accountID, snapshot.AccountValue)
	return snapshot, nil
}

// ListSnapshots returns the account snapshots in [from, to] ordered by time.
// Nil bounds are open.
func (l *Ledger) ListSnapshots(ctx context.Context, accountID string, from, to *time.Time) ([]model.AccountSnapshot, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return l.store.ListSnapshots(ctx, store.SnapshotFilter{
		AccountID: accountID,
		From:      from,
		To:        to,
	})
}
