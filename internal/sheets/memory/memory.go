package memory

import (
	"context"
	"fmt"
	"sync"

	ports "spendsense/internal/sheets"
)

// Mirror keeps rows in process. It backs the worker when no spreadsheet is
// configured and doubles as a test fake.
type Mirror struct {
	mu    sync.Mutex
	rows  []ports.ExpenseRow
	index map[string]int
}

var (
	_ ports.LedgerMirror = (*Mirror)(nil)
	_ ports.RowLister    = (*Mirror)(nil)
)

func New() *Mirror {
	return &Mirror{index: map[string]int{}}
}

// UpsertExpenseRow stores the row and returns a synthetic row reference.
func (m *Mirror) UpsertExpenseRow(_ context.Context, row ports.ExpenseRow) (string, error) {
	if err := row.Validate(); err != nil {
		return "", err
	}
	row.Participants = append([]string(nil), row.Participants...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[row.ExpenseID]; ok {
		m.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	m.rows = append(m.rows, row)
	m.index[row.ExpenseID] = len(m.rows) - 1
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

func (m *Mirror) DeleteExpenseRows(_ context.Context, expenseID string) (int, error) {
	return m.deleteWhere(func(r ports.ExpenseRow) bool { return r.ExpenseID == expenseID }), nil
}

func (m *Mirror) DeleteGroupRows(_ context.Context, groupID string) (int, error) {
	return m.deleteWhere(func(r ports.ExpenseRow) bool { return r.GroupID == groupID }), nil
}

// ListExpenseRows returns a copy of the rows in insertion order.
func (m *Mirror) ListExpenseRows(_ context.Context) ([]ports.ExpenseRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ExpenseRow(nil), m.rows...), nil
}

func (m *Mirror) deleteWhere(match func(ports.ExpenseRow) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0]
	removed := 0
	for _, r := range m.rows {
		if match(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	m.index = make(map[string]int, len(kept))
	for i, r := range kept {
		m.index[r.ExpenseID] = i
	}
	return removed
}
