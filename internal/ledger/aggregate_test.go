package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendsense/internal/core"
)

var ref = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func personal(id string, amount float64, dateISO string, category string) core.PersonalExpense {
	return core.PersonalExpense{ID: id, Title: id, Amount: amount, DateISO: dateISO, Category: core.CategoryOrNil(category)}
}

func TestPersonalTotals(t *testing.T) {
	t.Run("E this month and all time", func(t *testing.T) {
		expenses := []core.PersonalExpense{
			personal("p1", 100, "2025-03-02T09:00:00.000Z", ""),
			personal("p2", 50, "2025-03-28T18:30:00.000Z", ""),
			personal("p3", 30, "2025-02-20T10:00:00.000Z", ""),
		}
		got := PersonalTotals(expenses, ref)
		assert.Equal(t, core.Totals{ThisMonth: 150, AllTime: 180}, got)
	})

	t.Run("malformed dates only count all time", func(t *testing.T) {
		expenses := []core.PersonalExpense{
			personal("p1", 10, "not-a-date", ""),
			personal("p2", 5, "", ""),
			personal("p3", 1.25, "2025-03-01T00:00:00.000Z", ""),
		}
		got := PersonalTotals(expenses, ref)
		assert.Equal(t, core.Totals{ThisMonth: 1.25, AllTime: 16.25}, got)
	})

	t.Run("legacy display date is used when dateISO is missing", func(t *testing.T) {
		local := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.Local)
		expenses := []core.PersonalExpense{{ID: "p", Title: "old", Amount: 7, Date: "3/3/2025"}}
		assert.Equal(t, core.Totals{ThisMonth: 7, AllTime: 7}, PersonalTotals(expenses, local))
	})

	t.Run("month is evaluated in the reference location", func(t *testing.T) {
		ist := time.FixedZone("IST", 5*3600+1800)
		// 20:00 UTC on Feb 28 is already March 1 in IST
		expenses := []core.PersonalExpense{personal("p", 9, "2025-02-28T20:00:00.000Z", "")}
		assert.Equal(t, 9.0, PersonalTotals(expenses, ref.In(ist)).ThisMonth)
		assert.Equal(t, 0.0, PersonalTotals(expenses, ref).ThisMonth)
	})
}

func tripGroup() core.Group {
	return core.Group{
		ID:   "trip",
		Name: "Trip",
		Members: []core.Member{
			{ID: "me", Name: "Asha"},
			{ID: "r", Name: "Ravi"},
			{ID: "k", Name: "Kim"},
		},
		Expenses: []core.Expense{
			{ID: "e1", Amount: 90, PayerID: "r", ParticipantIDs: []string{"me", "r", "k"},
				Splits: []core.Split{{MemberID: "me", Share: 30}, {MemberID: "r", Share: 30}, {MemberID: "k", Share: 30}},
				CreatedAt: "2025-03-10T10:00:00.000Z"},
			// custom split: the first split's share is used as perHead
			{ID: "e2", Amount: 100, PayerID: "me", ParticipantIDs: []string{"r", "me"},
				Splits:    []core.Split{{MemberID: "r", Share: 70}, {MemberID: "me", Share: 30}},
				CreatedAt: "2025-01-05T10:00:00.000Z", IsSettled: true},
			// no splits: amount divided by participants
			{ID: "e3", Amount: 40, PayerID: "k", ParticipantIDs: []string{"me", "k"}, CreatedAt: "bad"},
			{ID: "e4", Amount: 25, PayerID: "k", ParticipantIDs: []string{"r", "k"}, CreatedAt: "2025-03-01T00:00:00.000Z"},
		},
		Settlements: []core.Settlement{{FromMemberID: "me", ToMemberID: "r", Amount: 500}},
	}
}

func TestGroupShareTotals(t *testing.T) {
	groups := []core.Group{tripGroup()}

	got := GroupShareTotals(groups, "  asha ", ref)
	assert.Equal(t, core.Totals{ThisMonth: 30, AllTime: 30 + 70 + 20}, got)

	assert.Equal(t, core.Totals{}, GroupShareTotals(groups, "", ref))
	assert.Equal(t, core.Totals{}, GroupShareTotals(groups, "Nobody", ref))
}

func TestGroupShareTotalsCountsEveryMatchingMember(t *testing.T) {
	g := core.Group{
		Members: []core.Member{{ID: "a1", Name: "Sam"}, {ID: "a2", Name: "SAM"}, {ID: "b", Name: "Lee"}},
		Expenses: []core.Expense{{ID: "e", Amount: 30, PayerID: "b", ParticipantIDs: []string{"a1", "a2", "b"},
			CreatedAt: "2025-03-03T00:00:00.000Z"}},
	}
	other := core.Group{
		Members:  []core.Member{{ID: "x", Name: "sam"}},
		Expenses: []core.Expense{{ID: "f", Amount: 12, PayerID: "x", ParticipantIDs: []string{"x"}, CreatedAt: "2024-12-31T00:00:00.000Z"}},
	}
	got := GroupShareTotals([]core.Group{g, other}, "Sam", ref)
	assert.Equal(t, core.Totals{ThisMonth: 20, AllTime: 32}, got)
}

func TestComputeStats(t *testing.T) {
	personalExpenses := []core.PersonalExpense{
		personal("p1", 10.1, "2025-03-02T09:00:00.000Z", ""),
		personal("p2", 0.2, "2024-03-02T09:00:00.000Z", ""),
	}
	stats := ComputeStats(personalExpenses, []core.Group{tripGroup()}, "Asha", ref)
	assert.Equal(t, core.Totals{ThisMonth: 10.1, AllTime: 10.3}, stats.Personal)
	assert.Equal(t, core.Totals{ThisMonth: 30, AllTime: 120}, stats.Group)
	assert.Equal(t, core.Totals{ThisMonth: 40.1, AllTime: 130.3}, stats.Total)
}

func TestCategoryTotals(t *testing.T) {
	items := PersonalCategoryItems([]core.PersonalExpense{
		personal("1", 5, "", "Food"),
		personal("2", 7, "", ""),
		personal("3", 20, "", "Travel"),
		personal("4", 2.5, "", "Food"),
	})
	got := CategoryTotals(items)
	assert.Equal(t, []core.CategoryTotal{
		{Category: "Food", Total: 7.5},
		{Category: core.UncategorizedLabel, Total: 7},
		{Category: "Travel", Total: 20},
	}, got)

	sorted := SortByTotal(got)
	assert.Equal(t, []string{"Travel", "Food", core.UncategorizedLabel},
		[]string{sorted[0].Category, sorted[1].Category, sorted[2].Category})
	assert.Equal(t, "Food", got[0].Category, "input must not be reordered")

	assert.Empty(t, CategoryTotals(nil))
}

func TestGroupAndMonthlyCategoryTotals(t *testing.T) {
	g := tripGroup()
	food := "Food"
	g.Expenses[0].Category = &food
	got := CategoryTotals(GroupCategoryItems(g))
	assert.Equal(t, []core.CategoryTotal{{Category: "Food", Total: 90}, {Category: core.UncategorizedLabel, Total: 165}}, got)

	monthly := MonthlyPersonalCategoryTotals([]core.PersonalExpense{
		personal("1", 5, "2025-03-01T10:00:00.000Z", "Food"),
		personal("2", 8, "2025-02-01T10:00:00.000Z", "Food"),
	}, ref)
	assert.Equal(t, []core.CategoryTotal{{Category: "Food", Total: 5}}, monthly)
}

func TestMonthTrend(t *testing.T) {
	personalExpenses := []core.PersonalExpense{
		personal("1", 10, "2025-03-02T09:00:00.000Z", ""),
		personal("2", 5, "2024-12-31T09:00:00.000Z", ""),
		personal("3", 99, "garbage", ""),
	}
	got := MonthTrend(personalExpenses, []core.Group{tripGroup()}, "asha", time.UTC)
	require.Equal(t, []core.MonthBucket{
		{Key: "2024-12", Label: "Dec 2024", Total: 5},
		{Key: "2025-01", Label: "Jan 2025", Total: 70},
		{Key: "2025-03", Label: "Mar 2025", Total: 40},
	}, got)

	assert.Empty(t, MonthTrend(nil, nil, "", nil))
}

func TestFilterExpenses(t *testing.T) {
	g := tripGroup()
	food := "Food"
	g.Expenses[0].Category = &food
	g.Expenses[0].Description = "Dinner"
	g.Expenses[2].Description = "Taxi"

	ids := func(es []core.Expense) []string {
		out := []string{}
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids(FilterExpenses(g, ExpenseFilter{})))
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids(FilterExpenses(g, ExpenseFilter{Category: "all"})))
	assert.Equal(t, []string{"e1"}, ids(FilterExpenses(g, ExpenseFilter{Category: "food"})))
	assert.Equal(t, []string{"e2", "e3", "e4"}, ids(FilterExpenses(g, ExpenseFilter{Category: "uncategorized"})))
	assert.Equal(t, []string{"e3"}, ids(FilterExpenses(g, ExpenseFilter{Query: "TAX"})))
	// payer name
	assert.Equal(t, []string{"e3", "e4"}, ids(FilterExpenses(g, ExpenseFilter{Query: "kim"})))
	assert.Equal(t, []string{"e1"}, ids(FilterExpenses(g, ExpenseFilter{Category: "Food", Query: "foo"})))
}

func TestBareDateCountsInReferenceZone(t *testing.T) {
	west := time.FixedZone("UTC-5", -5*60*60)
	march := time.Date(2025, time.March, 15, 12, 0, 0, 0, west)
	expenses := []core.PersonalExpense{personal("p1", 40, "2025-03-01", "")}

	assert.Equal(t, core.Totals{ThisMonth: 40, AllTime: 40}, PersonalTotals(expenses, march))
	assert.Len(t, InMonth(expenses, march), 1)

	trend := MonthTrend(expenses, nil, "", west)
	require.Len(t, trend, 1)
	assert.Equal(t, "2025-03", trend[0].Key)
}

func TestInMonth(t *testing.T) {
	got := InMonth([]core.PersonalExpense{
		personal("1", 1, "2025-03-31T10:00:00.000Z", ""),
		personal("2", 1, "2025-04-01T10:00:00.000Z", ""),
		personal("3", 1, "", ""),
	}, ref)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}
