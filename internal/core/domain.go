package core

import (
	"github.com/shopspring/decimal"
)

type (
	// Member is a participant of a group. Members are identified by ids
	// unique within the group; names and emails carry no uniqueness
	// constraint. AuthID optionally links the member to a registered
	// account.
	Member struct {
		ID     string
		Name   string
		Email  string
		AuthID string
	}

	// Expense is a single paid amount split among participants. Weights
	// are positive multipliers per participant; a participant absent from
	// the map weighs 1 (equal split).
	Expense struct {
		ID             string
		Description    string
		Amount         Money
		PayerID        string
		ParticipantIDs []string
		Weights        map[string]decimal.Decimal
	}

	// Group is a named collection of members and expenses sharing one
	// currency. Members and expenses keep insertion order; ids are never
	// reused after deletion.
	Group struct {
		ID          string
		Name        string
		Currency    Currency
		OwnerAuthID string
		Members     []Member
		Expenses    []Expense
	}
)

// Weight returns the participant's weight, defaulting to 1 when the
// expense carries no explicit weight for it.
func (e Expense) Weight(memberID string) decimal.Decimal {
	if w, ok := e.Weights[memberID]; ok {
		return w
	}
	return decimal.NewFromInt(1)
}

// References reports whether the expense involves the member as payer or
// participant.
func (e Expense) References(memberID string) bool {
	if e.PayerID == memberID {
		return true
	}
	for _, id := range e.ParticipantIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// Member returns the group member with the given id.
func (g *Group) Member(id string) (Member, bool) {
	for _, m := range g.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// Expense returns the group expense with the given id.
func (g *Group) Expense(id string) (Expense, bool) {
	for _, e := range g.Expenses {
		if e.ID == id {
			return e, true
		}
	}
	return Expense{}, false
}
