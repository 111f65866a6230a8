package core

import (
	"strings"
	"unicode/utf8"
)

// UncategorizedLabel is the bucket name for expenses without a category.
const UncategorizedLabel = "Uncategorized"

// MaxTextLength caps descriptions and titles, counted in characters.
const MaxTextLength = 200

type (
	// Member belongs to exactly one group. Names are not unique.
	Member struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Split is one member's share of a group expense.
	Split struct {
		MemberID string  `json:"memberId"`
		Share    float64 `json:"share"`
	}

	Expense struct {
		ID             string   `json:"id"`
		Description    string   `json:"description"`
		Category       *string  `json:"category"`
		Amount         float64  `json:"amount"`
		PayerID        string   `json:"payerId"`
		ParticipantIDs []string `json:"participantIds"`
		CreatedAt      string   `json:"createdAt"`
		Splits         []Split  `json:"splits"`
		IsSettled      bool     `json:"isSettled"`
	}

	// Settlement records that FromMemberID paid ToMemberID outside of any expense.
	Settlement struct {
		ID           string  `json:"id"`
		FromMemberID string  `json:"fromMemberId"`
		ToMemberID   string  `json:"toMemberId"`
		Amount       float64 `json:"amount"`
		CreatedAt    string  `json:"createdAt"`
	}

	// Group owns its members, expenses and settlements.
	Group struct {
		ID          string       `json:"id"`
		Name        string       `json:"name"`
		CreatedAt   string       `json:"createdAt"`
		Members     []Member     `json:"members"`
		Expenses    []Expense    `json:"expenses"`
		Settlements []Settlement `json:"settlements"`
	}

	PersonalExpense struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Amount   float64 `json:"amount"`
		Category *string `json:"category"`
		Date     string  `json:"date"`
		DateISO  string  `json:"dateISO"`
	}

	// Profile identifies the current user by display name only.
	Profile struct {
		Name      string `json:"name" validate:"max=100"`
		Email     string `json:"email" validate:"omitempty,email"`
		Phone     string `json:"phone" validate:"max=32"`
		Note      string `json:"note" validate:"max=500"`
		UpdatedAt string `json:"updatedAt"`
	}
)

// CategoryOrNil trims s and returns nil when nothing is left.
func CategoryOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CategoryKey returns the trimmed category or UncategorizedLabel.
func CategoryKey(category *string) string {
	if category == nil {
		return UncategorizedLabel
	}
	if c := strings.TrimSpace(*category); c != "" {
		return c
	}
	return UncategorizedLabel
}

// Normalized fills nil collections so callers can range without checks.
func (g Group) Normalized() Group {
	if g.Members == nil {
		g.Members = []Member{}
	}
	if g.Expenses == nil {
		g.Expenses = []Expense{}
	}
	if g.Settlements == nil {
		g.Settlements = []Settlement{}
	}
	return g
}

// MemberIDs returns member ids in group order.
func (g Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

func (g Group) FindMember(id string) (Member, bool) {
	for _, m := range g.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// MemberName returns the member's name, or "Unknown" for ids no longer in the group.
func (g Group) MemberName(id string) string {
	if m, ok := g.FindMember(id); ok {
		return m.Name
	}
	return "Unknown"
}

func (g Group) FindExpense(id string) (Expense, int, bool) {
	for i, e := range g.Expenses {
		if e.ID == id {
			return e, i, true
		}
	}
	return Expense{}, -1, false
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGroupName
	}
	return nil
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyMemberName
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(e.Description) > MaxTextLength {
		return ErrDescriptionTooLong
	}
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if e.PayerID == "" {
		return ErrMissingPayer
	}
	if len(e.ParticipantIDs) == 0 {
		return ErrNoParticipants
	}
	seen := make(map[string]struct{}, len(e.ParticipantIDs))
	for _, id := range e.ParticipantIDs {
		if _, dup := seen[id]; dup {
			return ErrDuplicateParticipant
		}
		seen[id] = struct{}{}
	}
	for _, s := range e.Splits {
		if _, ok := seen[s.MemberID]; !ok {
			return ErrSplitOutsideParticipants
		}
		if s.Share <= 0 {
			return ErrShareTooSmall
		}
	}
	return nil
}

func (s Settlement) Validate() error {
	if s.Amount <= 0 {
		return ErrInvalidAmount
	}
	if s.FromMemberID == "" || s.ToMemberID == "" {
		return ErrMissingSettlementParty
	}
	if s.FromMemberID == s.ToMemberID {
		return ErrSelfSettlement
	}
	return nil
}

func (p PersonalExpense) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(p.Title) > MaxTextLength {
		return ErrDescriptionTooLong
	}
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Normalized derives DateISO from the display date for records written
// before DateISO existed.
func (p PersonalExpense) Normalized() PersonalExpense {
	if p.DateISO != "" || p.Date == "" {
		return p
	}
	if t, err := ParseDisplayDate(p.Date); err == nil {
		p.DateISO = FormatISO(t)
	}
	return p
}
