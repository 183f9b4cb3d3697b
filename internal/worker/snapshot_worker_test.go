package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tricount/internal/amqp"
	"tricount/internal/core"
	"tricount/internal/storage"
)

func newTestWorker(t *testing.T) (*SnapshotWorker, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "tricount.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewSnapshotWorker(repo, 10, time.Minute), repo
}

func seedGroup(t *testing.T, repo *storage.SQLiteRepository) (*core.Group, core.Member, core.Member, int64) {
	t.Helper()
	ctx := context.Background()

	g, err := core.NewGroup("Trip", core.EUR, "owner-1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, g))

	pa, err := g.AddMember("Alice", "")
	require.NoError(t, err)
	pb, err := g.AddMember("Bob", "")
	require.NoError(t, err)
	_, err = g.AddExpense("Hotel", core.Money{Cents: 3000}, pa.ID, []string{pa.ID, pb.ID}, nil)
	require.NoError(t, err)

	version, err := repo.SaveGroup(ctx, g)
	require.NoError(t, err)
	return g, pa, pb, version
}

func TestHandleMutationMessage(t *testing.T) {
	ctx := context.Background()
	w, repo := newTestWorker(t)
	g, pa, pb, version := seedGroup(t, repo)

	msg := amqp.NewGroupMutationMessage(g.ID, version)
	require.NoError(t, w.HandleMutationMessage(ctx, msg))

	balances, gotVersion, err := repo.GetBalanceSnapshots(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, version, gotVersion)
	assert.Equal(t, core.Money{Cents: 1500}, balances[pa.ID])
	assert.Equal(t, core.Money{Cents: -1500}, balances[pb.ID])
}

func TestHandleMutationMessageForDeletedGroup(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWorker(t)

	// Deleted or unknown groups are dropped, not retried forever.
	msg := amqp.NewGroupMutationMessage("gone", 3)
	assert.NoError(t, w.HandleMutationMessage(ctx, msg))
}

func TestReconcilePending(t *testing.T) {
	ctx := context.Background()
	w, repo := newTestWorker(t)
	g, _, _, version := seedGroup(t, repo)

	stale, err := repo.StaleSnapshotGroups(ctx, 10)
	require.NoError(t, err)
	require.Contains(t, stale, g.ID)

	require.NoError(t, w.ReconcilePending(ctx))

	_, gotVersion, err := repo.GetBalanceSnapshots(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, version, gotVersion)

	stale, err = repo.StaleSnapshotGroups(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// Nothing stale: reconcile is a no-op.
	require.NoError(t, w.ReconcilePending(ctx))
}

func TestStartupCheck(t *testing.T) {
	ctx := context.Background()
	w, repo := newTestWorker(t)
	g, _, _, _ := seedGroup(t, repo)

	require.NoError(t, w.StartupCheck(ctx))

	stale, err := repo.StaleSnapshotGroups(ctx, 10)
	require.NoError(t, err)
	assert.NotContains(t, stale, g.ID)
}
