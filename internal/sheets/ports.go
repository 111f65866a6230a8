package sheets

import (
	"context"
	"errors"
	"strings"

	"spendsense/internal/core"
)

// ErrMissingExpenseID rejects rows that could never be found again.
var ErrMissingExpenseID = errors.New("row without expense id")

// ExpenseRow is one group expense as laid out in the mirror sheet.
type ExpenseRow struct {
	CreatedAt    string
	Group        string
	Description  string
	Category     string
	Amount       float64
	Payer        string
	Participants []string
	Settled      bool
	ExpenseID    string
	GroupID      string
}

// Ports for outbound adapters.
type (
	// LedgerMirror keeps one row per group expense, keyed by expense id.
	LedgerMirror interface {
		// UpsertExpenseRow rewrites the row of row.ExpenseID or appends a new one.
		UpsertExpenseRow(ctx context.Context, row ExpenseRow) (rowRef string, err error)
		// DeleteExpenseRows removes the rows of one expense and reports how many went.
		DeleteExpenseRows(ctx context.Context, expenseID string) (int, error)
		// DeleteGroupRows removes every row of a group.
		DeleteGroupRows(ctx context.Context, groupID string) (int, error)
	}

	// RowLister returns the mirrored rows in sheet order.
	RowLister interface {
		ListExpenseRows(ctx context.Context) ([]ExpenseRow, error)
	}
)

// NewExpenseRow resolves member names of e within g. Departed members show
// as "Unknown", like everywhere else in the ledger.
func NewExpenseRow(g core.Group, e core.Expense) ExpenseRow {
	participants := make([]string, len(e.ParticipantIDs))
	for i, id := range e.ParticipantIDs {
		participants[i] = g.MemberName(id)
	}
	category := ""
	if e.Category != nil {
		category = strings.TrimSpace(*e.Category)
	}
	return ExpenseRow{
		CreatedAt:    e.CreatedAt,
		Group:        g.Name,
		Description:  e.Description,
		Category:     category,
		Amount:       e.Amount,
		Payer:        g.MemberName(e.PayerID),
		Participants: participants,
		Settled:      e.IsSettled,
		ExpenseID:    e.ID,
		GroupID:      g.ID,
	}
}

func (r ExpenseRow) Validate() error {
	if strings.TrimSpace(r.ExpenseID) == "" {
		return ErrMissingExpenseID
	}
	return nil
}
