package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"spendsense/internal/amqp"
	"spendsense/internal/core"
	"spendsense/internal/ledger"
)

// PersonalExpenseInput is the personal expense form.
type PersonalExpenseInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Amount   string `json:"amount" validate:"required"`
	Category string `json:"category" validate:"max=100"`
}

// MonthFilter selects the month containing Month, or everything when All is set.
// A zero Month means the current month.
type MonthFilter struct {
	All   bool
	Month time.Time
}

// PersonalExpenseList is the personal screen: the visible expenses plus the
// figures for the selected month, which are reported even when All is set.
type PersonalExpenseList struct {
	Expenses   []core.PersonalExpense `json:"expenses"`
	Month      string                 `json:"month"`
	MonthTotal float64                `json:"monthTotal"`
	MonthCount int                    `json:"monthCount"`
	Categories []core.CategoryTotal   `json:"categories"`
}

func (in PersonalExpenseInput) build() (core.PersonalExpense, error) {
	if strings.TrimSpace(in.Title) == "" {
		return core.PersonalExpense{}, core.ErrEmptyTitle
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.PersonalExpense{}, err
	}
	e := core.PersonalExpense{
		Title:    strings.TrimSpace(in.Title),
		Amount:   amount,
		Category: core.CategoryOrNil(in.Category),
	}
	return e, e.Validate()
}

// AddPersonalExpense stamps the expense with the current time and puts it
// in front of the list.
func (s *LedgerService) AddPersonalExpense(ctx context.Context, in PersonalExpenseInput) (e core.PersonalExpense, err error) {
	defer s.track("add_personal_expense", time.Now(), &err)

	e, err = in.build()
	if err != nil {
		return core.PersonalExpense{}, err
	}
	now := s.now()
	e.ID = core.NewID()
	e.Date = core.FormatDisplayDate(now.In(s.loc))
	e.DateISO = core.FormatISO(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := s.ledger.PersonalExpenses(ctx)
	if err != nil {
		return core.PersonalExpense{}, persistence("load personal expenses", err)
	}
	if err := s.ledger.SavePersonalExpenses(ctx, append([]core.PersonalExpense{e}, expenses...)); err != nil {
		return core.PersonalExpense{}, persistence("save personal expenses", err)
	}

	slog.InfoContext(ctx, "Personal expense added", "expense_id", e.ID, "amount", e.Amount)
	s.publish(ctx, amqp.EventPersonalExpenseSaved, "", e.ID)
	return e, nil
}

// UpdatePersonalExpense rewrites title, amount and category. The dates are
// kept, and filled with the current time if the record never had them.
func (s *LedgerService) UpdatePersonalExpense(ctx context.Context, id string, in PersonalExpenseInput) (e core.PersonalExpense, err error) {
	defer s.track("update_personal_expense", time.Now(), &err)

	patch, err := in.build()
	if err != nil {
		return core.PersonalExpense{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := s.ledger.PersonalExpenses(ctx)
	if err != nil {
		return core.PersonalExpense{}, persistence("load personal expenses", err)
	}
	idx := indexPersonal(expenses, id)
	if idx < 0 {
		return core.PersonalExpense{}, core.ErrPersonalExpenseNotFound
	}

	e = expenses[idx]
	e.Title, e.Amount, e.Category = patch.Title, patch.Amount, patch.Category
	now := s.now()
	if e.DateISO == "" {
		e.DateISO = core.FormatISO(now)
	}
	if e.Date == "" {
		e.Date = core.FormatDisplayDate(now.In(s.loc))
	}

	next := append([]core.PersonalExpense(nil), expenses...)
	next[idx] = e
	if err := s.ledger.SavePersonalExpenses(ctx, next); err != nil {
		return core.PersonalExpense{}, persistence("save personal expenses", err)
	}

	slog.InfoContext(ctx, "Personal expense updated", "expense_id", e.ID, "amount", e.Amount)
	s.publish(ctx, amqp.EventPersonalExpenseSaved, "", e.ID)
	return e, nil
}

func (s *LedgerService) DeletePersonalExpense(ctx context.Context, id string) (err error) {
	defer s.track("delete_personal_expense", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	expenses, err := s.ledger.PersonalExpenses(ctx)
	if err != nil {
		return persistence("load personal expenses", err)
	}
	if indexPersonal(expenses, id) < 0 {
		return core.ErrPersonalExpenseNotFound
	}
	next := make([]core.PersonalExpense, 0, len(expenses)-1)
	for _, e := range expenses {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if err := s.ledger.SavePersonalExpenses(ctx, next); err != nil {
		return persistence("save personal expenses", err)
	}

	slog.InfoContext(ctx, "Personal expense deleted", "expense_id", id)
	s.publish(ctx, amqp.EventPersonalExpenseDelete, "", id)
	return nil
}

func (s *LedgerService) ListPersonalExpenses(ctx context.Context, f MonthFilter) (list PersonalExpenseList, err error) {
	defer s.track("list_personal_expenses", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses, err := s.ledger.PersonalExpenses(ctx)
	if err != nil {
		return PersonalExpenseList{}, persistence("load personal expenses", err)
	}

	ref := s.ref(f.Month)
	inMonth := ledger.InMonth(expenses, ref)
	list = PersonalExpenseList{
		Expenses:   expenses,
		Month:      core.MonthKey(ref),
		MonthTotal: ledger.PersonalTotals(inMonth, ref).ThisMonth,
		MonthCount: len(inMonth),
		Categories: ledger.MonthlyPersonalCategoryTotals(expenses, ref),
	}
	if !f.All {
		list.Expenses = inMonth
	}
	return list, nil
}

func (s *LedgerService) Profile(ctx context.Context) (p core.Profile, err error) {
	defer s.track("get_profile", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err = s.ledger.Profile(ctx)
	if err != nil {
		return core.Profile{}, persistence("load profile", err)
	}
	return p, nil
}

func (s *LedgerService) SaveProfile(ctx context.Context, p core.Profile) (saved core.Profile, err error) {
	defer s.track("save_profile", time.Now(), &err)

	p = p.Trimmed()
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	p.UpdatedAt = core.FormatISO(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.SaveProfile(ctx, p); err != nil {
		return core.Profile{}, persistence("save profile", err)
	}

	slog.InfoContext(ctx, "Profile saved", "has_name", p.Name != "")
	s.publish(ctx, amqp.EventProfileSaved, "", "")
	return p, nil
}

// Stats combines personal spending with the profile user's group shares for
// the month of ref and all time. A zero ref means now.
func (s *LedgerService) Stats(ctx context.Context, ref time.Time) (st core.Stats, err error) {
	defer s.track("stats", time.Now(), &err)

	personal, groups, profile, err := s.snapshot(ctx)
	if err != nil {
		return core.Stats{}, err
	}
	return ledger.ComputeStats(personal, groups, profile.Name, s.ref(ref)), nil
}

// Trend buckets all spending of the profile user by month, oldest first.
func (s *LedgerService) Trend(ctx context.Context) (buckets []core.MonthBucket, err error) {
	defer s.track("trend", time.Now(), &err)

	personal, groups, profile, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.MonthTrend(personal, groups, profile.Name, s.loc), nil
}

func (s *LedgerService) snapshot(ctx context.Context) ([]core.PersonalExpense, []core.Group, core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	personal, err := s.ledger.PersonalExpenses(ctx)
	if err != nil {
		return nil, nil, core.Profile{}, persistence("load personal expenses", err)
	}
	groups, err := s.ledger.Groups(ctx)
	if err != nil {
		return nil, nil, core.Profile{}, persistence("load groups", err)
	}
	profile, err := s.ledger.Profile(ctx)
	if err != nil {
		return nil, nil, core.Profile{}, persistence("load profile", err)
	}
	return personal, groups, profile, nil
}

// ref places t (or now, when t is zero) in the service's location.
func (s *LedgerService) ref(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return t.In(s.loc)
}

func indexPersonal(expenses []core.PersonalExpense, id string) int {
	for i, e := range expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}
