package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendsense/internal/core"
)

// PersonalTotals sums personal expenses for ref's month (by dateISO, in
// ref's location) and for all time. Records with unusable dates still count
// toward the all-time total.
func PersonalTotals(expenses []core.PersonalExpense, ref time.Time) core.Totals {
	var month, all decimal.Decimal
	for _, e := range expenses {
		amount := core.Dec(e.Amount)
		all = all.Add(amount)
		if t, ok := personalTime(e, ref.Location()); ok && sameMonth(t, ref) {
			month = month.Add(amount)
		}
	}
	return core.Totals{ThisMonth: core.Round2(month), AllTime: core.Round2(all)}
}

// GroupShareTotals sums the current user's share of every group expense,
// bucketed by the expense's createdAt. Settlements and the settled flag are
// not considered: this is raw consumption, not what is still owed.
func GroupShareTotals(groups []core.Group, userName string, ref time.Time) core.Totals {
	var month, all decimal.Decimal
	forEachUserShare(groups, userName, func(e core.Expense, share decimal.Decimal) {
		all = all.Add(share)
		if t, err := core.ParseISO(e.CreatedAt); err == nil && sameMonth(t, ref) {
			month = month.Add(share)
		}
	})
	return core.Totals{ThisMonth: core.Round2(month), AllTime: core.Round2(all)}
}

// ComputeStats combines personal totals with the user's group share.
func ComputeStats(personal []core.PersonalExpense, groups []core.Group, userName string, ref time.Time) core.Stats {
	p := PersonalTotals(personal, ref)
	g := GroupShareTotals(groups, userName, ref)
	return core.Stats{
		Personal: p,
		Group:    g,
		Total: core.Totals{
			ThisMonth: core.Round2(core.Dec(p.ThisMonth).Add(core.Dec(g.ThisMonth))),
			AllTime:   core.Round2(core.Dec(p.AllTime).Add(core.Dec(g.AllTime))),
		},
	}
}

// forEachUserShare resolves userName to member ids per group (case-insensitive
// exact match, possibly several per group) and reports perHead times the
// number of matched participants for each expense they take part in.
func forEachUserShare(groups []core.Group, userName string, fn func(core.Expense, decimal.Decimal)) {
	name := strings.TrimSpace(userName)
	if name == "" {
		return
	}
	for _, g := range groups {
		mine := make(map[string]struct{})
		for _, m := range g.Members {
			if strings.EqualFold(strings.TrimSpace(m.Name), name) {
				mine[m.ID] = struct{}{}
			}
		}
		if len(mine) == 0 {
			continue
		}
		for _, e := range g.Expenses {
			n := len(e.ParticipantIDs)
			if n == 0 {
				continue
			}
			count := 0
			for _, id := range e.ParticipantIDs {
				if _, ok := mine[id]; ok {
					count++
				}
			}
			if count == 0 {
				continue
			}
			perHead := core.Dec(e.Amount).Div(decimal.NewFromInt(int64(n)))
			if len(e.Splits) > 0 {
				perHead = core.Dec(e.Splits[0].Share)
			}
			fn(e, perHead.Mul(decimal.NewFromInt(int64(count))))
		}
	}
}

// CategoryItem is the minimal view CategoryTotals needs.
type CategoryItem struct {
	Category *string
	Amount   float64
}

func PersonalCategoryItems(expenses []core.PersonalExpense) []CategoryItem {
	items := make([]CategoryItem, len(expenses))
	for i, e := range expenses {
		items[i] = CategoryItem{Category: e.Category, Amount: e.Amount}
	}
	return items
}

func GroupCategoryItems(g core.Group) []CategoryItem {
	items := make([]CategoryItem, len(g.Expenses))
	for i, e := range g.Expenses {
		items[i] = CategoryItem{Category: e.Category, Amount: e.Amount}
	}
	return items
}

// CategoryTotals groups amounts by category in first-seen order.
func CategoryTotals(items []CategoryItem) []core.CategoryTotal {
	index := make(map[string]int)
	sums := make([]decimal.Decimal, 0)
	out := make([]core.CategoryTotal, 0)
	for _, it := range items {
		key := core.CategoryKey(it.Category)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, core.CategoryTotal{Category: key})
			sums = append(sums, decimal.Zero)
		}
		sums[i] = sums[i].Add(core.Dec(it.Amount))
	}
	for i := range out {
		out[i].Total = core.Round2(sums[i])
	}
	return out
}

// SortByTotal returns a copy ordered by total descending; ties keep their order.
func SortByTotal(totals []core.CategoryTotal) []core.CategoryTotal {
	out := append([]core.CategoryTotal(nil), totals...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// MonthlyPersonalCategoryTotals is CategoryTotals over ref's month only.
func MonthlyPersonalCategoryTotals(expenses []core.PersonalExpense, ref time.Time) []core.CategoryTotal {
	return CategoryTotals(PersonalCategoryItems(InMonth(expenses, ref)))
}

// InMonth keeps the personal expenses dated in ref's month.
func InMonth(expenses []core.PersonalExpense, ref time.Time) []core.PersonalExpense {
	out := make([]core.PersonalExpense, 0, len(expenses))
	for _, e := range expenses {
		if t, ok := personalTime(e, ref.Location()); ok && sameMonth(t, ref) {
			out = append(out, e)
		}
	}
	return out
}

// MonthTrend buckets personal spending and the user's group shares by
// YYYY-MM in loc and returns the buckets in chronological order. Records
// whose date cannot be parsed are left out.
func MonthTrend(personal []core.PersonalExpense, groups []core.Group, userName string, loc *time.Location) []core.MonthBucket {
	if loc == nil {
		loc = time.Local
	}
	buckets := make(map[string]decimal.Decimal)
	for _, e := range personal {
		if t, ok := personalTime(e, loc); ok {
			key := core.MonthKey(t.In(loc))
			buckets[key] = buckets[key].Add(core.Dec(e.Amount))
		}
	}
	forEachUserShare(groups, userName, func(e core.Expense, share decimal.Decimal) {
		if t, err := core.ParseISO(e.CreatedAt); err == nil {
			key := core.MonthKey(t.In(loc))
			buckets[key] = buckets[key].Add(share)
		}
	})

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]core.MonthBucket, len(keys))
	for i, k := range keys {
		out[i] = core.MonthBucket{Key: k, Label: monthLabel(k), Total: core.Round2(buckets[k])}
	}
	return out
}

// ExpenseFilter narrows a group's expense list. An empty or "all" category
// and a blank query match everything.
type ExpenseFilter struct {
	Category string
	Query    string
}

// FilterExpenses matches the category case-insensitively (blank categories are
// "Uncategorized") and the query as a substring of description, category or
// payer name.
func FilterExpenses(g core.Group, f ExpenseFilter) []core.Expense {
	category := strings.ToLower(strings.TrimSpace(f.Category))
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]core.Expense, 0, len(g.Expenses))
	for _, e := range g.Expenses {
		if category != "" && category != "all" && strings.ToLower(core.CategoryKey(e.Category)) != category {
			continue
		}
		if query != "" {
			cat := ""
			if e.Category != nil {
				cat = *e.Category
			}
			if !strings.Contains(strings.ToLower(e.Description), query) &&
				!strings.Contains(strings.ToLower(cat), query) &&
				!strings.Contains(strings.ToLower(g.MemberName(e.PayerID)), query) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// personalTime reads a bare date as midnight in loc.
func personalTime(e core.PersonalExpense, loc *time.Location) (time.Time, bool) {
	t, err := core.ParseISOIn(e.Normalized().DateISO, loc)
	return t, err == nil
}

func sameMonth(t, ref time.Time) bool {
	t = t.In(ref.Location())
	return t.Year() == ref.Year() && t.Month() == ref.Month()
}

func monthLabel(key string) string {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return key
	}
	return t.Format("Jan 2006")
}
