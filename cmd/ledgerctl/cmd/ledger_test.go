package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error", "--config", filepath.Join(t.TempDir(), "none.yaml")))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.Bytes()
}

func TestLedgerctl(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "ctl.db"))

	var status map[string]string
	require.NoError(t, sonic.Unmarshal(run(t, "migrate"), &status))
	assert.Equal(t, "migrated", status["status"])

	var account model.Account
	require.NoError(t, sonic.Unmarshal(run(t, "account", "--balance", "2500"), &account))
	assert.Equal(t, "2500", account.InitialBalance.String())

	var again model.Account
	require.NoError(t, sonic.Unmarshal(run(t, "account"), &again))
	assert.Equal(t, account.ID, again.ID)

	var m model.Metrics
	require.NoError(t, sonic.Unmarshal(run(t, "metrics", account.ID), &m))
	assert.Equal(t, "2500", m.AccountValue.String())

	var snapshot model.AccountSnapshot
	require.NoError(t, sonic.Unmarshal(run(t, "snapshot", account.ID), &snapshot))
	assert.Equal(t, account.ID, snapshot.AccountID)

	var snapshots []model.AccountSnapshot
	require.NoError(t, sonic.Unmarshal(run(t, "snapshots", account.ID), &snapshots))
	assert.Len(t, snapshots, 1)

	var points []model.TimelinePoint
	require.NoError(t, sonic.Unmarshal(run(t, "timeline"), &points))
	require.Len(t, points, 1)
	assert.Equal(t, "2500", points[0].Accounts[account.ID].String())

	var positions []model.Position
	require.NoError(t, sonic.Unmarshal(run(t, "positions", account.ID, "--status", "all"), &positions))
	assert.Empty(t, positions)

	var trades []model.CompletedTrade
	require.NoError(t, sonic.Unmarshal(run(t, "trades", account.ID), &trades))
	assert.Empty(t, trades)

	var invocations []model.AgentInvocation
	require.NoError(t, sonic.Unmarshal(run(t, "invocations", account.ID, "--limit", "5"), &invocations))
	assert.Empty(t, invocations)
}
