package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"spendsense/internal/core"
)

// settleThreshold is the smallest balance offered as a settlement creditor.
var settleThreshold = decimal.NewFromFloat(0.5)

// ComputeBalances reduces a group to one signed balance per member.
//
// Settled expenses are ignored. For every other expense each split's share
// is subtracted from its member and the full amount is added to the payer.
// Settlements then move the debtor up and the creditor down by the amount.
// Ids that are not (or no longer) members are tracked but not reported.
// Rows are sorted by balance descending; ties keep member order.
func ComputeBalances(g core.Group) []core.MemberBalance {
	acc := accumulate(g)
	rows := make([]core.MemberBalance, len(g.Members))
	for i, m := range g.Members {
		rows[i] = core.MemberBalance{MemberID: m.ID, Name: m.Name, Balance: core.Round2(acc[m.ID])}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Balance > rows[j].Balance })
	return rows
}

// OrphanedBalances returns the non-zero balances of ids referenced by
// expenses or settlements that are not members of the group.
func OrphanedBalances(g core.Group) map[string]float64 {
	acc := accumulate(g)
	for _, m := range g.Members {
		delete(acc, m.ID)
	}
	out := make(map[string]float64)
	for id, v := range acc {
		if r := core.Round2(v); r != 0 {
			out[id] = r
		}
	}
	return out
}

func accumulate(g core.Group) map[string]decimal.Decimal {
	acc := make(map[string]decimal.Decimal, len(g.Members))
	for _, m := range g.Members {
		acc[m.ID] = decimal.Zero
	}

	for _, e := range g.Expenses {
		if e.IsSettled || len(e.ParticipantIDs) == 0 {
			continue
		}
		if len(e.Splits) > 0 {
			for _, s := range e.Splits {
				acc[s.MemberID] = acc[s.MemberID].Sub(core.Dec(s.Share))
			}
		} else {
			// expenses saved without splits fall back to an equal split
			perHead := core.Dec(e.Amount).Div(decimal.NewFromInt(int64(len(e.ParticipantIDs)))).Round(2)
			for _, id := range e.ParticipantIDs {
				acc[id] = acc[id].Sub(perHead)
			}
		}
		acc[e.PayerID] = acc[e.PayerID].Add(core.Dec(e.Amount))
	}

	for _, s := range g.Settlements {
		amount := core.Dec(s.Amount)
		acc[s.FromMemberID] = acc[s.FromMemberID].Add(amount)
		acc[s.ToMemberID] = acc[s.ToMemberID].Sub(amount)
	}
	return acc
}

// SuggestSettlement pre-fills a settlement for debtorID: the creditor is the
// first other member whose balance exceeds 0.5 and the amount is the debtor's
// absolute balance. This is not a minimal-transfer plan. ok is false when the
// debtor has no balance row.
func SuggestSettlement(balances []core.MemberBalance, debtorID string) (core.SettlementSuggestion, bool) {
	var (
		debtor core.MemberBalance
		found  bool
	)
	for _, b := range balances {
		if b.MemberID == debtorID {
			debtor, found = b, true
			break
		}
	}
	if !found {
		return core.SettlementSuggestion{}, false
	}

	s := core.SettlementSuggestion{
		FromMemberID: debtorID,
		Amount:       core.Round2(core.Dec(debtor.Balance).Abs()),
	}
	for _, b := range balances {
		if b.MemberID != debtorID && core.Dec(b.Balance).GreaterThan(settleThreshold) {
			s.ToMemberID = b.MemberID
			break
		}
	}
	return s, true
}

// OutstandingTotal sums the amounts of the group's unsettled expenses.
func OutstandingTotal(g core.Group) float64 {
	var total decimal.Decimal
	for _, e := range g.Expenses {
		if !e.IsSettled {
			total = total.Add(core.Dec(e.Amount))
		}
	}
	return core.Round2(total)
}
