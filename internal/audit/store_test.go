package audit

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/icebox/internal/quarantine"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), 30)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	applied := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := &quarantine.Record{
		ID:        "run-1",
		Instance:  "Quarantine_IP",
		Address:   netip.MustParseAddr("10.6.6.6"),
		AppliedAt: applied,
		RemovedAt: applied.Add(3 * time.Minute),
		State:     quarantine.StateDone,
	}
	require.NoError(t, store.RecordAction(ctx, rec))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "Quarantine_IP", e.Instance)
	assert.Equal(t, "10.6.6.6", e.Address)
	assert.Equal(t, "Done", e.State)
	assert.Equal(t, "done", e.Outcome)
	assert.Empty(t, e.Error)
	assert.True(t, e.AppliedAt.Equal(applied))
}

func TestStore_RecordFailedRun(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	rec := &quarantine.Record{
		ID:       "run-2",
		Instance: "Quarantine_IP",
		Address:  netip.MustParseAddr("10.6.6.6"),
		State:    quarantine.StateErrored,
		Err:      fmt.Errorf("device replied no: %w", quarantine.ErrUnblockFailed),
	}
	require.NoError(t, store.RecordAction(ctx, rec))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Errored", entries[0].State)
	assert.Equal(t, "unblock_failed", entries[0].Outcome)
	assert.Contains(t, entries[0].Error, "block applied but not removed")
	assert.True(t, entries[0].AppliedAt.IsZero(), "never applied")
}

func TestStore_RecentOrderAndLimit(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := &quarantine.Record{
			ID:       fmt.Sprintf("run-%d", i),
			Instance: "edge",
			Address:  netip.MustParseAddr("10.0.0.1"),
			State:    quarantine.StateDone,
		}
		require.NoError(t, store.RecordAction(ctx, rec))
	}

	entries, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "run-4", entries[0].RunID, "newest first")
}

func TestStore_Prune(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	old := &quarantine.Record{
		ID:        "ancient",
		Instance:  "edge",
		Address:   netip.MustParseAddr("10.0.0.1"),
		AppliedAt: time.Now().AddDate(0, 0, -60),
		State:     quarantine.StateDone,
	}
	fresh := &quarantine.Record{
		ID:        "fresh",
		Instance:  "edge",
		Address:   netip.MustParseAddr("10.0.0.2"),
		AppliedAt: time.Now(),
		State:     quarantine.StateDone,
	}
	require.NoError(t, store.RecordAction(ctx, old))
	require.NoError(t, store.RecordAction(ctx, fresh))

	deleted, err := store.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].RunID)
}

func TestNewStore_BadDirectory(t *testing.T) {
	_, err := NewStore("/proc/definitely/not/writable/history.db", 30)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
