// Package services orchestrates group operations across the ledger
// engine, SQLite and AMQP. Mutations on one group are serialized with a
// per-group lock so concurrent requests cannot interleave their
// load-mutate-save cycles.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tricount/internal/amqp"
	"tricount/internal/cache"
	"tricount/internal/core"
	"tricount/internal/log"
	"tricount/internal/metrics"
	"tricount/internal/storage"

	"github.com/shopspring/decimal"
)

// ErrForbidden marks an operation by an account that is neither the
// group owner nor a linked member.
var ErrForbidden = errors.New("account not authorized for group")

// GroupView is the read model of a group: the ledger plus derived
// balances and a settlement plan, all consistent with one version.
type GroupView struct {
	ID          string
	Name        string
	Currency    core.Currency
	Version     int64
	Members     []core.Member
	Expenses    []core.Expense
	Balances    map[string]core.Money
	Settlements []core.Transfer

	ownerAuthID string
}

// ExpenseInput carries the request-level fields of a new expense. The
// amount stays a string until the group currency is known.
type ExpenseInput struct {
	Description    string
	Amount         string
	PayerID        string
	ParticipantIDs []string
	Weights        map[string]decimal.Decimal
}

type GroupService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	views      *cache.LRUCache[GroupView]
	logger     *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGroupService(repo *storage.SQLiteRepository, amqpClient *amqp.Client, views *cache.LRUCache[GroupView], logger *log.Logger) *GroupService {
	return &GroupService{
		storage:    repo,
		amqpClient: amqpClient,
		views:      views,
		logger:     logger.WithComponent(log.ComponentGroup),
		locks:      make(map[string]*sync.Mutex),
	}
}

// groupLock returns the mutex serializing mutations of one group.
func (s *GroupService) groupLock(groupID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[groupID] = l
	}
	return l
}

func (s *GroupService) authorize(g *core.Group, authID string) error {
	if g.OwnerAuthID == authID {
		return nil
	}
	for _, m := range g.Members {
		if m.AuthID != "" && m.AuthID == authID {
			return nil
		}
	}
	return ErrForbidden
}

// CreateGroup creates an empty group owned by the account.
func (s *GroupService) CreateGroup(ctx context.Context, authID, name string, currency core.Currency) (*core.Group, error) {
	g, err := core.NewGroup(name, currency, authID)
	if err != nil {
		return nil, err
	}
	if err := s.storage.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.logger.InfoContext(ctx, "Group created",
		log.FieldGroupID, g.ID,
		log.FieldAccountID, authID)
	return g, nil
}

// ListGroups returns the groups visible to the account.
func (s *GroupService) ListGroups(ctx context.Context, authID string) ([]storage.GroupSummary, error) {
	return s.storage.ListGroups(ctx, authID)
}

// DeleteGroup removes a group. Only the owner may delete.
func (s *GroupService) DeleteGroup(ctx context.Context, authID, groupID string) error {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	g, err := s.storage.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerAuthID != authID {
		return ErrForbidden
	}
	if err := s.storage.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	s.views.Delete(groupID)
	s.logger.InfoContext(ctx, "Group deleted",
		log.FieldGroupID, groupID,
		log.FieldAccountID, authID)
	return nil
}

// GetView returns the full read model of a group. Views are cached per
// group and invalidated by every mutation.
func (s *GroupService) GetView(ctx context.Context, authID, groupID string) (*GroupView, error) {
	if view, ok := s.views.Get(groupID); ok {
		g := core.Group{OwnerAuthID: view.ownerAuthID, Members: view.Members}
		if err := s.authorize(&g, authID); err == nil {
			return &view, nil
		}
		// Cached but not visible to this account; fall through so the
		// authoritative load decides.
	}

	g, err := s.storage.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(g, authID); err != nil {
		return nil, err
	}
	version, err := s.storage.GroupVersion(ctx, groupID)
	if err != nil {
		return nil, err
	}

	view := buildView(g, version)
	s.views.Set(groupID, *view)
	return view, nil
}

func buildView(g *core.Group, version int64) *GroupView {
	balances := core.Balances(g)
	return &GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Currency:    g.Currency,
		Version:     version,
		Members:     g.Members,
		Expenses:    g.Expenses,
		Balances:    balances,
		Settlements: core.Settle(balances),
		ownerAuthID: g.OwnerAuthID,
	}
}

// AddMember adds a member to the group.
func (s *GroupService) AddMember(ctx context.Context, authID, groupID, name, email string) (core.Member, error) {
	var member core.Member
	err := s.mutate(ctx, authID, groupID, func(g *core.Group) error {
		var err error
		member, err = g.AddMember(name, email)
		return err
	})
	if err != nil {
		return core.Member{}, err
	}
	s.logger.InfoContext(ctx, "Member added",
		log.FieldGroupID, groupID,
		log.FieldMemberID, member.ID)
	return member, nil
}

// RemoveMember removes a member not referenced by any expense.
func (s *GroupService) RemoveMember(ctx context.Context, authID, groupID, memberID string) error {
	err := s.mutate(ctx, authID, groupID, func(g *core.Group) error {
		return g.RemoveMember(memberID)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Member removed",
		log.FieldGroupID, groupID,
		log.FieldMemberID, memberID)
	return nil
}

// AddExpense records an expense. The amount is parsed against the
// group's currency.
func (s *GroupService) AddExpense(ctx context.Context, authID, groupID string, in ExpenseInput) (core.Expense, error) {
	var expense core.Expense
	err := s.mutate(ctx, authID, groupID, func(g *core.Group) error {
		amount, err := core.ParseAmount(in.Amount, g.Currency)
		if err != nil {
			return err
		}
		expense, err = g.AddExpense(in.Description, amount, in.PayerID, in.ParticipantIDs, in.Weights)
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}
	s.logger.InfoContext(ctx, "Expense added",
		log.FieldGroupID, groupID,
		log.FieldExpenseID, expense.ID,
		log.FieldAmountCents, expense.Amount.Cents)
	return expense, nil
}

// RemoveExpense deletes an expense from the ledger.
func (s *GroupService) RemoveExpense(ctx context.Context, authID, groupID, expenseID string) error {
	err := s.mutate(ctx, authID, groupID, func(g *core.Group) error {
		return g.RemoveExpense(expenseID)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Expense removed",
		log.FieldGroupID, groupID,
		log.FieldExpenseID, expenseID)
	return nil
}

// InviteInfo is what an invited account sees before joining: the group
// name and the members it can claim.
type InviteInfo struct {
	GroupID string
	Name    string
	Members []core.Member
}

// Invite describes a group to an account holding an invite link. No
// membership check: the link itself is the capability.
func (s *GroupService) Invite(ctx context.Context, groupID string) (*InviteInfo, error) {
	g, err := s.storage.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &InviteInfo{GroupID: g.ID, Name: g.Name, Members: g.Members}, nil
}

// Join links the calling account to an unclaimed member of the group.
func (s *GroupService) Join(ctx context.Context, authID, groupID, memberID string) error {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	g, err := s.storage.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	found := false
	for i := range g.Members {
		if g.Members[i].ID != memberID {
			continue
		}
		found = true
		if g.Members[i].AuthID != "" && g.Members[i].AuthID != authID {
			return &core.InUseError{MemberID: memberID}
		}
		g.Members[i].AuthID = authID
	}
	if !found {
		return &core.NotFoundError{Kind: "member", ID: memberID}
	}

	version, err := s.storage.SaveGroup(ctx, g)
	if err != nil {
		return err
	}
	s.views.Delete(groupID)
	s.publishMutation(ctx, groupID, version)

	s.logger.InfoContext(ctx, "Member linked to account",
		log.FieldGroupID, groupID,
		log.FieldMemberID, memberID,
		log.FieldAccountID, authID)
	return nil
}

// mutate runs one authorized load-mutate-save cycle on a group.
func (s *GroupService) mutate(ctx context.Context, authID, groupID string, fn func(*core.Group) error) error {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	g, err := s.storage.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if err := s.authorize(g, authID); err != nil {
		return err
	}
	if err := fn(g); err != nil {
		return err
	}

	version, err := s.storage.SaveGroup(ctx, g)
	if err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	s.views.Delete(groupID)
	s.publishMutation(ctx, groupID, version)
	return nil
}

// publishMutation notifies the snapshot worker. Failures are logged and
// swallowed: the mutation is already durable in SQLite and the worker's
// reconcile pass covers lost messages.
func (s *GroupService) publishMutation(ctx context.Context, groupID string, version int64) {
	if s.amqpClient == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping mutation message",
			log.FieldGroupID, groupID)
		return
	}
	if err := s.amqpClient.PublishGroupMutation(ctx, groupID, version); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish mutation message",
			log.FieldGroupID, groupID,
			log.FieldVersion, version,
			log.FieldError, err)
		return
	}
	metrics.MutationPublished()
}

// Close closes both storage and AMQP connections.
func (s *GroupService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close group service: %v", errs)
	}
	return nil
}
