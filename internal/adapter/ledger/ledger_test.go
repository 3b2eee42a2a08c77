package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T, clock clockwork.Clock) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	l := openTestLedger(t, clock)

	init := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	id, err := l.Start(ctx, "regrid", init)
	require.NoError(t, err)

	require.NoError(t, l.RecordOutOfDomain(ctx, id, OutOfDomain{Field: "tp", Excluded: 12, Total: 135168}))
	require.NoError(t, l.RecordOutOfDomain(ctx, id, OutOfDomain{Field: "cape", Excluded: 3, Total: 135168}))
	// A second report for the same field replaces the first.
	require.NoError(t, l.RecordOutOfDomain(ctx, id, OutOfDomain{Field: "tp", Excluded: 10, Total: 135168}))

	clock.Advance(90 * time.Second)
	require.NoError(t, l.Finish(ctx, id, StatusSucceeded, 1, nil))

	runs, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, "regrid", r.Stage)
	assert.Equal(t, StatusSucceeded, r.Status)
	assert.Equal(t, 1, r.Artifacts)
	assert.True(t, init.Equal(r.InitTime))
	assert.True(t, start.Equal(r.StartedAt))
	require.NotNil(t, r.FinishedAt)
	assert.Equal(t, 90*time.Second, r.FinishedAt.Sub(r.StartedAt))
	assert.Equal(t, []OutOfDomain{
		{Field: "cape", Excluded: 3, Total: 135168},
		{Field: "tp", Excluded: 10, Total: 135168},
	}, r.OutOfDomain)
}

func TestLedger_RecentOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	l := openTestLedger(t, clock)

	init := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	var ids []int64
	for _, stage := range []string{"regrid", "histogram", "regrid"} {
		id, err := l.Start(ctx, stage, init)
		require.NoError(t, err)
		ids = append(ids, id)
		clock.Advance(time.Minute)
	}
	require.NoError(t, l.Finish(ctx, ids[1], StatusFailed, 0, errors.New("boom")))

	runs, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, "boom", runs[1].Error)
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	l := openTestLedger(t, clockwork.NewFakeClock())
	assert.Error(t, l.Finish(context.Background(), 42, StatusSucceeded, 0, nil))
}

func TestLedger_EmptyRecent(t *testing.T) {
	l := openTestLedger(t, clockwork.NewFakeClock())
	runs, err := l.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)
}

func TestLedger_FileReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/ledger.db"
	clock := clockwork.NewFakeClock()

	l, err := Open(ctx, path, clock)
	require.NoError(t, err)
	_, err = l.Start(ctx, "histogram", clock.Now())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Migrations are not re-applied on reopen.
	l, err = Open(ctx, path, clock)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	runs, err := l.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestLedger_CheckReadiness(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, ":memory:", clockwork.NewFakeClock())
	require.NoError(t, err)
	assert.NoError(t, l.CheckReadiness(ctx))

	require.NoError(t, l.Close())
	assert.ErrorContains(t, l.CheckReadiness(ctx), "ledger unavailable")
}

func TestLedger_ForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, t.TempDir()+"/ledger.db", clockwork.NewFakeClock())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	// Hold several pooled connections at once so each is a distinct one.
	var conns []*sql.Conn
	for range 3 {
		c, err := l.db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for i, c := range conns {
		var on int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
		assert.Equal(t, 1, on, "connection %d", i)
		_, err := c.ExecContext(ctx,
			`INSERT INTO out_of_domain (run_id, field, excluded, total) VALUES (?, ?, ?, ?)`,
			999+i, "tp", 1, 2)
		assert.Error(t, err, "connection %d accepted an orphan row", i)
	}
	for _, c := range conns {
		require.NoError(t, c.Close())
	}

	assert.Error(t, l.RecordOutOfDomain(ctx, 12345, OutOfDomain{Field: "tp", Excluded: 1, Total: 2}))
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path   string
		memory bool
		want   string
	}{
		{":memory:", true, ":memory:?_pragma=foreign_keys(1)"},
		{"file:x?mode=memory&cache=shared", true, "file:x?mode=memory&cache=shared&_pragma=foreign_keys(1)"},
		{"/var/lib/ledger.db", false, "/var/lib/ledger.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, dsn(tt.path, tt.memory))
		})
	}
}
