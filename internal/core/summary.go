package core

// CategoryTotal is an amount aggregated by category name.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// MonthBucket is one point of the month-over-month trend.
type MonthBucket struct {
	Key   string  `json:"key"` // YYYY-MM
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// Totals pairs a reference-month figure with the all-time figure.
type Totals struct {
	ThisMonth float64 `json:"thisMonth"`
	AllTime   float64 `json:"allTime"`
}

// Stats combines personal spending with the current user's share of group expenses.
type Stats struct {
	Personal Totals `json:"personal"`
	Group    Totals `json:"group"`
	Total    Totals `json:"total"`
}

// MemberBalance is a member's net position in a group:
// positive should receive, negative owes.
type MemberBalance struct {
	MemberID string  `json:"memberId"`
	Name     string  `json:"name"`
	Balance  float64 `json:"balance"`
}

// SettlementSuggestion pre-fills a settlement for a debtor.
type SettlementSuggestion struct {
	FromMemberID string  `json:"fromMemberId"`
	ToMemberID   string  `json:"toMemberId,omitempty"`
	Amount       float64 `json:"amount"`
}
