package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tricount/internal/cache"
	"tricount/internal/core"
	"tricount/internal/log"
	"tricount/internal/storage"
)

func newTestService(t *testing.T) *GroupService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "tricount.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil), Component: "test"})
	views := cache.NewLRUCache[GroupView](16, time.Minute)
	return NewGroupService(repo, nil, views, logger)
}

func TestCreateAndListGroups(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Ski trip", core.EUR)
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)

	_, err = svc.CreateGroup(ctx, "bob", "Other", core.USD)
	require.NoError(t, err)

	summaries, err := svc.ListGroups(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Ski trip", summaries[0].Name)
}

func TestCreateGroupValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateGroup(context.Background(), "alice", "   ", core.EUR)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestViewWithBalancesAndSettlements(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Dinner", core.EUR)
	require.NoError(t, err)

	pa, err := svc.AddMember(ctx, "alice", g.ID, "Alice", "")
	require.NoError(t, err)
	pb, err := svc.AddMember(ctx, "alice", g.ID, "Bob", "")
	require.NoError(t, err)
	pc, err := svc.AddMember(ctx, "alice", g.ID, "Carol", "")
	require.NoError(t, err)

	_, err = svc.AddExpense(ctx, "alice", g.ID, ExpenseInput{
		Description:    "Pizza",
		Amount:         "30.00",
		PayerID:        pa.ID,
		ParticipantIDs: []string{pa.ID, pb.ID, pc.ID},
	})
	require.NoError(t, err)

	view, err := svc.GetView(ctx, "alice", g.ID)
	require.NoError(t, err)

	assert.Equal(t, core.Money{Cents: 2000}, view.Balances[pa.ID])
	assert.Equal(t, core.Money{Cents: -1000}, view.Balances[pb.ID])
	assert.Equal(t, core.Money{Cents: -1000}, view.Balances[pc.ID])

	require.Len(t, view.Settlements, 2)
	for _, tr := range view.Settlements {
		assert.Equal(t, pa.ID, tr.ToID)
		assert.Equal(t, int64(1000), tr.Amount.Cents)
	}
	assert.Len(t, view.Members, 3)
	assert.Len(t, view.Expenses, 1)
	assert.Greater(t, view.Version, int64(1))
}

func TestViewCacheInvalidatedByMutation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Trip", core.EUR)
	require.NoError(t, err)
	pa, err := svc.AddMember(ctx, "alice", g.ID, "Alice", "")
	require.NoError(t, err)

	before, err := svc.GetView(ctx, "alice", g.ID)
	require.NoError(t, err)
	assert.Empty(t, before.Expenses)

	_, err = svc.AddExpense(ctx, "alice", g.ID, ExpenseInput{
		Description:    "Fuel",
		Amount:         "12.50",
		PayerID:        pa.ID,
		ParticipantIDs: []string{pa.ID},
	})
	require.NoError(t, err)

	after, err := svc.GetView(ctx, "alice", g.ID)
	require.NoError(t, err)
	require.Len(t, after.Expenses, 1)
	assert.Equal(t, int64(1250), after.Expenses[0].Amount.Cents)
}

func TestWeightedExpense(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Rent", core.EUR)
	require.NoError(t, err)
	pa, err := svc.AddMember(ctx, "alice", g.ID, "Alice", "")
	require.NoError(t, err)
	pb, err := svc.AddMember(ctx, "alice", g.ID, "Bob", "")
	require.NoError(t, err)

	_, err = svc.AddExpense(ctx, "alice", g.ID, ExpenseInput{
		Description:    "October",
		Amount:         "100.00",
		PayerID:        pa.ID,
		ParticipantIDs: []string{pa.ID, pb.ID},
		Weights: map[string]decimal.Decimal{
			pa.ID: decimal.NewFromInt(2),
			pb.ID: decimal.NewFromInt(1),
		},
	})
	require.NoError(t, err)

	view, err := svc.GetView(ctx, "alice", g.ID)
	require.NoError(t, err)

	// Alice paid 10000 and owes 2/3, Bob owes 1/3.
	assert.Equal(t, int64(3333), view.Balances[pa.ID].Cents)
	assert.Equal(t, int64(-3333), view.Balances[pb.ID].Cents)
}

func TestAuthorization(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Private", core.EUR)
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, "alice", g.ID, "Alice", "")
	require.NoError(t, err)

	_, err = svc.GetView(ctx, "mallory", g.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.AddMember(ctx, "mallory", g.ID, "Mallory", "")
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.DeleteGroup(ctx, "mallory", g.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestJoinLinksAccount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Flat", core.EUR)
	require.NoError(t, err)
	pb, err := svc.AddMember(ctx, "alice", g.ID, "Bob", "")
	require.NoError(t, err)

	info, err := svc.Invite(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flat", info.Name)
	require.Len(t, info.Members, 1)

	require.NoError(t, svc.Join(ctx, "bob", g.ID, pb.ID))

	// Bob can now see the group.
	view, err := svc.GetView(ctx, "bob", g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, view.ID)

	summaries, err := svc.ListGroups(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	// A member claimed by one account cannot be claimed by another.
	err = svc.Join(ctx, "carol", g.ID, pb.ID)
	assert.ErrorIs(t, err, core.ErrInUse)

	err = svc.Join(ctx, "carol", g.ID, "missing-member")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRemoveMemberGuard(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Trip", core.EUR)
	require.NoError(t, err)
	pa, err := svc.AddMember(ctx, "alice", g.ID, "Alice", "")
	require.NoError(t, err)
	pb, err := svc.AddMember(ctx, "alice", g.ID, "Bob", "")
	require.NoError(t, err)

	e, err := svc.AddExpense(ctx, "alice", g.ID, ExpenseInput{
		Description:    "Taxi",
		Amount:         "18.00",
		PayerID:        pb.ID,
		ParticipantIDs: []string{pa.ID, pb.ID},
	})
	require.NoError(t, err)

	err = svc.RemoveMember(ctx, "alice", g.ID, pb.ID)
	assert.ErrorIs(t, err, core.ErrInUse)

	require.NoError(t, svc.RemoveExpense(ctx, "alice", g.ID, e.ID))
	require.NoError(t, svc.RemoveMember(ctx, "alice", g.ID, pb.ID))
}

func TestDeleteGroup(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.CreateGroup(ctx, "alice", "Gone", core.EUR)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteGroup(ctx, "alice", g.ID))

	_, err = svc.GetView(ctx, "alice", g.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
