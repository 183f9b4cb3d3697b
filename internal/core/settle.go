package core

// Transfer is a single settlement payment from a debtor to a creditor.
type Transfer struct {
	FromID string
	ToID   string
	Amount Money
}

type party struct {
	id    string
	cents int64
}

// pickLargest returns the index of the party with the largest outstanding
// amount, ties broken by ascending id, or -1 when none remain.
func pickLargest(parties []party) int {
	best := -1
	for i, p := range parties {
		if p.cents == 0 {
			continue
		}
		if best < 0 || p.cents > parties[best].cents ||
			(p.cents == parties[best].cents && p.id < parties[best].id) {
			best = i
		}
	}
	return best
}

// Settle computes an ordered list of transfers that zeroes every balance.
//
// Greedy largest-pair matching: repeatedly pay min(credit, debt) from the
// debtor owing the most to the creditor owed the most, dropping parties
// that reach zero. Because balances sum to zero the two sides exhaust
// together, in at most N-1 transfers for N members with nonzero balance.
// The heuristic is deterministic and bounded but not guaranteed to be the
// globally minimal transfer count for every balance partition.
func Settle(balances map[string]Money) []Transfer {
	var creditors, debtors []party
	for id, b := range balances {
		switch {
		case b.Cents > 0:
			creditors = append(creditors, party{id: id, cents: b.Cents})
		case b.Cents < 0:
			debtors = append(debtors, party{id: id, cents: -b.Cents})
		}
	}

	var transfers []Transfer
	for {
		ci := pickLargest(creditors)
		di := pickLargest(debtors)
		if ci < 0 || di < 0 {
			break
		}
		amount := creditors[ci].cents
		if debtors[di].cents < amount {
			amount = debtors[di].cents
		}
		transfers = append(transfers, Transfer{
			FromID: debtors[di].id,
			ToID:   creditors[ci].id,
			Amount: Money{Cents: amount},
		})
		creditors[ci].cents -= amount
		debtors[di].cents -= amount
	}
	return transfers
}
