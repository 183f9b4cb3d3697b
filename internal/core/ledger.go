package core

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger mutations. Every mutation validates its input against the group
// invariants first and applies only on success; a failed mutation leaves
// the group untouched. Ids are fresh UUIDs, never reused after deletion.

// NewGroup creates an empty group owned by the given account.
func NewGroup(name string, currency Currency, ownerAuthID string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if currency == "" {
		currency = EUR
	}
	if err := currency.Validate(); err != nil {
		return nil, err
	}
	return &Group{
		ID:          uuid.NewString(),
		Name:        name,
		Currency:    currency,
		OwnerAuthID: ownerAuthID,
	}, nil
}

// AddMember appends a member with a fresh id. Names and emails carry no
// uniqueness constraint.
func (g *Group) AddMember(name, email string) (Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Member{}, &ValidationError{Field: "name", Reason: "required"}
	}
	m := Member{
		ID:    uuid.NewString(),
		Name:  name,
		Email: strings.TrimSpace(email),
	}
	g.Members = append(g.Members, m)
	return m, nil
}

// RemoveMember removes the member unless any expense still references it
// as payer or participant.
func (g *Group) RemoveMember(memberID string) error {
	idx := -1
	for i, m := range g.Members {
		if m.ID == memberID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &NotFoundError{Kind: "member", ID: memberID}
	}
	for _, e := range g.Expenses {
		if e.References(memberID) {
			return &InUseError{MemberID: memberID, ExpenseID: e.ID}
		}
	}
	g.Members = append(g.Members[:idx], g.Members[idx+1:]...)
	return nil
}

// AddExpense validates the full invariant set and appends the expense
// with a fresh id: positive amount, non-empty participant set drawn from
// the group members, payer among the members, and strictly positive
// weights keyed only by participants.
func (g *Group) AddExpense(description string, amount Money, payerID string, participantIDs []string, weights map[string]decimal.Decimal) (Expense, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Expense{}, &ValidationError{Field: "description", Reason: "required"}
	}
	if err := amount.Validate(); err != nil {
		return Expense{}, err
	}
	if _, ok := g.Member(payerID); !ok {
		return Expense{}, &ValidationError{Field: "payer_id", Reason: "not a member of the group"}
	}
	if len(participantIDs) == 0 {
		return Expense{}, &ValidationError{Field: "participants_ids", Reason: "at least one participant required"}
	}
	seen := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		if seen[id] {
			return Expense{}, &ValidationError{Field: "participants_ids", Reason: "duplicate participant " + id}
		}
		seen[id] = true
		if _, ok := g.Member(id); !ok {
			return Expense{}, &ValidationError{Field: "participants_ids", Reason: "participant " + id + " is not a member of the group"}
		}
	}
	for id, w := range weights {
		if !seen[id] {
			return Expense{}, &ValidationError{Field: "weights", Reason: "weight for non-participant " + id}
		}
		if w.LessThanOrEqual(decimal.Zero) {
			return Expense{}, &ValidationError{Field: "weights", Reason: "weight for " + id + " must be positive"}
		}
	}
	e := Expense{
		ID:             uuid.NewString(),
		Description:    description,
		Amount:         amount,
		PayerID:        payerID,
		ParticipantIDs: append([]string(nil), participantIDs...),
	}
	if len(weights) > 0 {
		e.Weights = make(map[string]decimal.Decimal, len(weights))
		for id, w := range weights {
			e.Weights[id] = w
		}
	}
	g.Expenses = append(g.Expenses, e)
	return e, nil
}

// RemoveExpense removes the expense unconditionally; dropping an expense
// cannot violate any group invariant.
func (g *Group) RemoveExpense(expenseID string) error {
	for i, e := range g.Expenses {
		if e.ID == expenseID {
			g.Expenses = append(g.Expenses[:i], g.Expenses[i+1:]...)
			return nil
		}
	}
	return &NotFoundError{Kind: "expense", ID: expenseID}
}
