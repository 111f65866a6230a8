package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendsense/internal/amqp"
	"spendsense/internal/core"
	"spendsense/internal/ledger"
)

// ExpenseResult is a saved expense plus the participants the custom split
// dropped because their share was blank, unparseable or not positive.
type ExpenseResult struct {
	Expense core.Expense `json:"expense"`
	Dropped []string     `json:"dropped,omitempty"`
	Created bool         `json:"created"`
}

// SettlementInput is the settlement form: the debtor row it was opened
// from, the chosen creditor and the typed amount.
type SettlementInput struct {
	FromMemberID string `json:"fromMemberId" validate:"required"`
	ToMemberID   string `json:"toMemberId" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
}

// BalanceReport is a group's balance view.
type BalanceReport struct {
	Balances []core.MemberBalance `json:"balances"`
	// Orphaned holds non-zero balances of ids that are no longer members.
	Orphaned    map[string]float64 `json:"orphaned,omitempty"`
	Outstanding float64            `json:"outstanding"`
}

// SaveExpense turns draft into an expense. A draft with EditingID replaces
// that expense and keeps its id, creation time and settled flag; otherwise
// a new expense goes in front of the list. On success draft is reset for
// the next entry.
func (s *LedgerService) SaveExpense(ctx context.Context, groupID string, draft *core.ExpenseDraft) (res ExpenseResult, err error) {
	defer s.track("save_expense", time.Now(), &err)

	if draft == nil {
		return ExpenseResult{}, errMissingDraft
	}
	description := strings.TrimSpace(draft.Description)
	if description == "" {
		return ExpenseResult{}, core.ErrEmptyDescription
	}
	amount, err := core.ParseAmount(draft.Amount)
	if err != nil {
		return ExpenseResult{}, err
	}
	if draft.PayerID == "" {
		return ExpenseResult{}, core.ErrMissingPayer
	}
	if draft.Mode != "" && !draft.Mode.IsValid() {
		return ExpenseResult{}, core.ErrInvalidSplitMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var expense core.Expense
	g, err := s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		participants := draft.ParticipantIDs
		if len(participants) == 0 {
			participants = g.MemberIDs()
		}
		if err := requireMembers(*g, append([]string{draft.PayerID}, participants...)...); err != nil {
			return err
		}

		split, err := ledger.Split(ledger.SplitRequest{
			Amount:         amount,
			ParticipantIDs: participants,
			Mode:           draft.Mode,
			RawShares:      draft.CustomShares,
		})
		if err != nil {
			return err
		}
		res.Dropped = split.Dropped

		expense = core.Expense{
			Description:    description,
			Category:       core.CategoryOrNil(draft.Category),
			Amount:         amount,
			PayerID:        draft.PayerID,
			ParticipantIDs: split.ParticipantIDs,
			Splits:         split.Splits,
		}

		if draft.EditingID == "" {
			expense.ID = core.NewID()
			expense.CreatedAt = core.FormatISO(s.now())
			if err := expense.Validate(); err != nil {
				return err
			}
			g.Expenses = append([]core.Expense{expense}, g.Expenses...)
			res.Created = true
			return nil
		}

		existing, idx, ok := g.FindExpense(draft.EditingID)
		if !ok {
			return core.ErrExpenseNotFound
		}
		expense.ID = existing.ID
		expense.CreatedAt = existing.CreatedAt
		expense.IsSettled = existing.IsSettled
		if err := expense.Validate(); err != nil {
			return err
		}
		expenses := append([]core.Expense(nil), g.Expenses...)
		expenses[idx] = expense
		g.Expenses = expenses
		return nil
	})
	if err != nil {
		return ExpenseResult{}, err
	}
	res.Expense = expense

	if len(res.Dropped) > 0 {
		slog.WarnContext(ctx, "Custom split dropped participants with invalid shares",
			"group_id", groupID, "expense_id", expense.ID, "dropped", res.Dropped)
		for range res.Dropped {
			s.metrics.IncrementCounter(MetricSplitDropped, nil)
		}
	}
	slog.InfoContext(ctx, "Expense saved",
		"group_id", groupID, "expense_id", expense.ID, "amount", expense.Amount, "created", res.Created)

	draft.Reset(g)
	s.publish(ctx, amqp.EventExpenseSaved, groupID, expense.ID)
	return res, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, groupID, expenseID string) (err error) {
	defer s.track("delete_expense", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		if _, _, ok := g.FindExpense(expenseID); !ok {
			return core.ErrExpenseNotFound
		}
		expenses := make([]core.Expense, 0, len(g.Expenses)-1)
		for _, e := range g.Expenses {
			if e.ID != expenseID {
				expenses = append(expenses, e)
			}
		}
		g.Expenses = expenses
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Expense deleted", "group_id", groupID, "expense_id", expenseID)
	s.publish(ctx, amqp.EventExpenseDeleted, groupID, expenseID)
	return nil
}

// ToggleSettled flips the settled flag. Nothing else on the expense changes.
func (s *LedgerService) ToggleSettled(ctx context.Context, groupID, expenseID string) (e core.Expense, err error) {
	defer s.track("toggle_settled", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		existing, idx, ok := g.FindExpense(expenseID)
		if !ok {
			return core.ErrExpenseNotFound
		}
		existing.IsSettled = !existing.IsSettled
		expenses := append([]core.Expense(nil), g.Expenses...)
		expenses[idx] = existing
		g.Expenses = expenses
		e = existing
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense settle toggled", "group_id", groupID, "expense_id", expenseID, "settled", e.IsSettled)
	s.publish(ctx, amqp.EventExpenseSettleToggled, groupID, expenseID)
	return e, nil
}

// RecordSettlement appends a settlement. Expenses are never touched.
func (s *LedgerService) RecordSettlement(ctx context.Context, groupID string, in SettlementInput) (st core.Settlement, err error) {
	defer s.track("record_settlement", time.Now(), &err)

	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Settlement{}, err
	}
	st = core.Settlement{
		ID:           core.NewID(),
		FromMemberID: in.FromMemberID,
		ToMemberID:   in.ToMemberID,
		Amount:       amount,
		CreatedAt:    core.FormatISO(s.now()),
	}
	if err := st.Validate(); err != nil {
		return core.Settlement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		if err := requireMembers(*g, st.FromMemberID, st.ToMemberID); err != nil {
			return err
		}
		g.Settlements = append(append([]core.Settlement{}, g.Settlements...), st)
		return nil
	})
	if err != nil {
		return core.Settlement{}, err
	}

	slog.InfoContext(ctx, "Settlement recorded",
		"group_id", groupID, "from", st.FromMemberID, "to", st.ToMemberID, "amount", st.Amount)
	s.publish(ctx, amqp.EventSettlementRecorded, groupID, st.ID)
	return st, nil
}

// SuggestSettlement pre-fills the settlement form for debtorID.
func (s *LedgerService) SuggestSettlement(ctx context.Context, groupID, debtorID string) (sg core.SettlementSuggestion, err error) {
	defer s.track("suggest_settlement", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return core.SettlementSuggestion{}, err
	}
	sg, ok := ledger.SuggestSettlement(ledger.ComputeBalances(g), debtorID)
	if !ok {
		return core.SettlementSuggestion{}, core.ErrMemberNotFound
	}
	return sg, nil
}

func (s *LedgerService) Balances(ctx context.Context, groupID string) (r BalanceReport, err error) {
	defer s.track("balances", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return BalanceReport{}, err
	}
	r = BalanceReport{
		Balances:    ledger.ComputeBalances(g),
		Orphaned:    ledger.OrphanedBalances(g),
		Outstanding: ledger.OutstandingTotal(g),
	}
	if len(r.Orphaned) > 0 {
		slog.WarnContext(ctx, "Group has balances for removed members", "group_id", groupID, "orphaned", r.Orphaned)
	}
	return r, nil
}

func (s *LedgerService) OutstandingTotal(ctx context.Context, groupID string) (total float64, err error) {
	defer s.track("outstanding_total", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return ledger.OutstandingTotal(g), nil
}

// GroupCategoryTotals sums the group's expenses per category, largest first.
func (s *LedgerService) GroupCategoryTotals(ctx context.Context, groupID string) (totals []core.CategoryTotal, err error) {
	defer s.track("group_category_totals", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return ledger.SortByTotal(ledger.CategoryTotals(ledger.GroupCategoryItems(g))), nil
}

func (s *LedgerService) FilterExpenses(ctx context.Context, groupID string, f ledger.ExpenseFilter) (expenses []core.Expense, err error) {
	defer s.track("filter_expenses", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return ledger.FilterExpenses(g, f), nil
}

var errMissingDraft = fmt.Errorf("%w: missing expense form", core.ErrValidation)

func requireMembers(g core.Group, ids ...string) error {
	for _, id := range ids {
		if _, ok := g.FindMember(id); !ok {
			return core.ErrUnknownMember
		}
	}
	return nil
}
