package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Shares computes each participant's rounded share of the expense amount
// using the largest-remainder method: every raw share (amount x weight /
// total weight) is floored to the minor unit, then the leftover minor
// units are handed out one at a time to the participants with the largest
// fractional remainder, ties broken by ascending participant id. The
// rounded shares always sum to the expense amount exactly.
func Shares(e Expense) map[string]Money {
	ids := append([]string(nil), e.ParticipantIDs...)
	sort.Strings(ids)

	totalWeight := decimal.Zero
	for _, id := range ids {
		totalWeight = totalWeight.Add(e.Weight(id))
	}

	amount := decimal.NewFromInt(e.Amount.Cents)
	type remainder struct {
		id   string
		frac decimal.Decimal
	}
	shares := make(map[string]Money, len(ids))
	remainders := make([]remainder, 0, len(ids))
	floored := int64(0)
	for _, id := range ids {
		raw := amount.Mul(e.Weight(id)).Div(totalWeight)
		fl := raw.Floor()
		shares[id] = Money{Cents: fl.IntPart()}
		floored += fl.IntPart()
		remainders = append(remainders, remainder{id: id, frac: raw.Sub(fl)})
	}

	// Largest fractional remainder first, then ascending id. remainders is
	// already id-sorted, so a stable sort on the fraction keeps the tie order.
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac.GreaterThan(remainders[j].frac)
	})
	shortfall := e.Amount.Cents - floored
	for i := 0; int64(i) < shortfall && i < len(remainders); i++ {
		s := shares[remainders[i].id]
		s.Cents++
		shares[remainders[i].id] = s
	}
	return shares
}

// Balances derives the net position of every group member from the
// expense history: each expense credits its payer with the full amount
// and debits every participant with its rounded share. Positive means the
// member is owed money, negative means the member owes. The result is a
// pure function of the group state and always sums to exactly zero.
func Balances(g *Group) map[string]Money {
	balances := make(map[string]Money, len(g.Members))
	for _, m := range g.Members {
		balances[m.ID] = Money{}
	}
	for _, e := range g.Expenses {
		payer := balances[e.PayerID]
		payer.Cents += e.Amount.Cents
		balances[e.PayerID] = payer

		for id, share := range Shares(e) {
			b := balances[id]
			b.Cents -= share.Cents
			balances[id] = b
		}
	}
	return balances
}
