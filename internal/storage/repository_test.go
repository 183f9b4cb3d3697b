package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tricount/internal/auth"
	"tricount/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "tricount.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	account := auth.NewAccount("Alice", "alice@example.com", "hash")
	require.NoError(t, repo.CreateAccount(ctx, account))

	byEmail, err := repo.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)
	assert.Equal(t, "Alice", byEmail.Name)

	byID, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Email, byID.Email)

	_, err = repo.GetAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAccountDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.CreateAccount(ctx, auth.NewAccount("Alice", "alice@example.com", "hash")))
	err := repo.CreateAccount(ctx, auth.NewAccount("Alias", "alice@example.com", "hash2"))
	assert.Error(t, err)
}

func TestGroupRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	g, err := core.NewGroup("Ski trip", core.EUR, "owner-1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, g))

	pa, err := g.AddMember("Alice", "alice@example.com")
	require.NoError(t, err)
	pb, err := g.AddMember("Bob", "")
	require.NoError(t, err)

	_, err = g.AddExpense("Lift passes", core.Money{Cents: 10000}, pa.ID,
		[]string{pa.ID, pb.ID}, map[string]decimal.Decimal{pa.ID: decimal.NewFromInt(2)})
	require.NoError(t, err)

	version, err := repo.SaveGroup(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	got, err := repo.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Name, got.Name)
	assert.Equal(t, core.EUR, got.Currency)
	assert.Equal(t, "owner-1", got.OwnerAuthID)

	require.Len(t, got.Members, 2)
	assert.Equal(t, []core.Member{
		{ID: pa.ID, Name: "Alice", Email: "alice@example.com"},
		{ID: pb.ID, Name: "Bob"},
	}, got.Members)

	require.Len(t, got.Expenses, 1)
	e := got.Expenses[0]
	assert.Equal(t, "Lift passes", e.Description)
	assert.Equal(t, int64(10000), e.Amount.Cents)
	assert.Equal(t, pa.ID, e.PayerID)
	assert.ElementsMatch(t, []string{pa.ID, pb.ID}, e.ParticipantIDs)
	require.Contains(t, e.Weights, pa.ID)
	assert.True(t, e.Weights[pa.ID].Equal(decimal.NewFromInt(2)))
	assert.NotContains(t, e.Weights, pb.ID)

	// Each save bumps the version.
	version, err = repo.SaveGroup(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	v, err := repo.GroupVersion(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestGetGroupNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetGroup(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "group", nf.Kind)
}

func TestSaveGroupRemovesDeletedRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	g, err := core.NewGroup("Dinner", core.EUR, "owner-1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, g))

	pa, err := g.AddMember("Alice", "")
	require.NoError(t, err)
	pb, err := g.AddMember("Bob", "")
	require.NoError(t, err)
	e, err := g.AddExpense("Pizza", core.Money{Cents: 3000}, pa.ID, []string{pa.ID, pb.ID}, nil)
	require.NoError(t, err)
	_, err = repo.SaveGroup(ctx, g)
	require.NoError(t, err)

	require.NoError(t, g.RemoveExpense(e.ID))
	require.NoError(t, g.RemoveMember(pb.ID))
	_, err = repo.SaveGroup(ctx, g)
	require.NoError(t, err)

	got, err := repo.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)
	assert.Empty(t, got.Expenses)
}

func TestListGroupsVisibility(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	owned, err := core.NewGroup("Owned", core.EUR, "alice")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, owned))

	joined, err := core.NewGroup("Joined", core.USD, "bob")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, joined))
	_, err = joined.AddMember("Alice", "alice@example.com")
	require.NoError(t, err)
	joined.Members[0].AuthID = "alice"
	_, err = repo.SaveGroup(ctx, joined)
	require.NoError(t, err)

	other, err := core.NewGroup("Other", core.EUR, "carol")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, other))

	summaries, err := repo.ListGroups(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	names := []string{summaries[0].Name, summaries[1].Name}
	assert.ElementsMatch(t, []string{"Owned", "Joined"}, names)
	for _, s := range summaries {
		if s.Name == "Joined" {
			assert.Equal(t, 1, s.MembersCount)
			assert.Equal(t, 0, s.ExpensesCount)
			assert.Equal(t, core.USD, s.Currency)
		}
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	g, err := core.NewGroup("Trip", core.EUR, "owner-1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, g))
	pa, err := g.AddMember("Alice", "")
	require.NoError(t, err)
	_, err = g.AddExpense("Fuel", core.Money{Cents: 500}, pa.ID, []string{pa.ID}, nil)
	require.NoError(t, err)
	_, err = repo.SaveGroup(ctx, g)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteGroup(ctx, g.ID))

	_, err = repo.GetGroup(ctx, g.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteGroup(ctx, g.ID), core.ErrNotFound)
}

func TestBalanceSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	g, err := core.NewGroup("Trip", core.EUR, "owner-1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateGroup(ctx, g))
	pa, err := g.AddMember("Alice", "")
	require.NoError(t, err)
	pb, err := g.AddMember("Bob", "")
	require.NoError(t, err)
	version, err := repo.SaveGroup(ctx, g)
	require.NoError(t, err)

	// Snapshots lag until the worker writes them for the current version.
	stale, err := repo.StaleSnapshotGroups(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, stale, g.ID)

	balances := map[string]core.Money{
		pa.ID: {Cents: 2000},
		pb.ID: {Cents: -2000},
	}
	require.NoError(t, repo.ReplaceBalanceSnapshots(ctx, g.ID, version, balances))

	got, gotVersion, err := repo.GetBalanceSnapshots(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, version, gotVersion)
	assert.Equal(t, balances, got)

	stale, err = repo.StaleSnapshotGroups(ctx, 10)
	require.NoError(t, err)
	assert.NotContains(t, stale, g.ID)

	// A new mutation makes the snapshot stale again.
	_, err = repo.SaveGroup(ctx, g)
	require.NoError(t, err)
	stale, err = repo.StaleSnapshotGroups(ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, stale, g.ID)
}
