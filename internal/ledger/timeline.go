package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/shopspring/decimal"
)

// Timeline rebuilds the account-value history of every account. There is one
// point per distinct snapshot time in [from, to]; each account contributes its
// latest snapshot at or before that time, or its cached value when it has none.
// Without snapshots the result is a single point at the current time.
func (l *Ledger) Timeline(ctx context.Context, from, to *time.Time) ([]model.TimelinePoint, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return []model.TimelinePoint{}, nil
	}

	snapshots, err := l.store.ListSnapshots(ctx, store.SnapshotFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	if len(snapshots) == 0 {
		point := model.TimelinePoint{
			Timestamp: l.timestamp(),
			Accounts:  make(map[string]decimal.Decimal, len(accounts)),
		}
		for _, a := range accounts {
			point.Accounts[a.ID] = cachedValue(a)
		}
		return []model.TimelinePoint{point}, nil
	}

	latest := make(map[string]decimal.Decimal, len(accounts))
	if from != nil {
		for _, a := range accounts {
			s, err := l.store.LatestSnapshotAt(ctx, a.ID, *from)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			latest[a.ID] = s.AccountValue
		}
	}

	points := make([]model.TimelinePoint, 0)
	for i := 0; i < len(snapshots); {
		at := snapshots[i].SnapshotAt
		for ; i < len(snapshots) && snapshots[i].SnapshotAt.Equal(at); i++ {
			latest[snapshots[i].AccountID] = snapshots[i].AccountValue
		}

		point := model.TimelinePoint{
			Timestamp: at,
			Accounts:  make(map[string]decimal.Decimal, len(accounts)),
		}
		for _, a := range accounts {
			if v, ok := latest[a.ID]; ok {
				point.Accounts[a.ID] = v
			} else {
				point.Accounts[a.ID] = cachedValue(a)
			}
		}
		points = append(points, point)
	}
	return points, nil
}

// cachedValue falls back to cash for an account whose metrics were never written.
func cachedValue(a model.Account) decimal.Decimal {
	if a.AccountValue.IsZero() {
		return a.CurrentBalance
	}
	return a.AccountValue
}
