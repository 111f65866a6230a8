package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendsense/internal/amqp"
	"spendsense/internal/core"
	"spendsense/internal/services"
	"spendsense/internal/sheets"
	"spendsense/internal/storage"
)

// MirrorWorker keeps the spreadsheet mirror in step with the ledger. Events
// only carry ids, so every handler reads the current state from the store.
type MirrorWorker struct {
	ledger  *storage.Ledger
	mirror  sheets.LedgerMirror
	metrics services.MetricsRecorder
}

func NewMirrorWorker(ledger *storage.Ledger, mirror sheets.LedgerMirror, metrics services.MetricsRecorder) *MirrorWorker {
	if metrics == nil {
		metrics = services.NewPrometheusMetrics(nil)
	}
	return &MirrorWorker{ledger: ledger, mirror: mirror, metrics: metrics}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// requeues the message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev amqp.LedgerEvent) error {
	start := time.Now()
	status := "success"
	defer func() {
		w.metrics.IncrementCounter(services.MetricEventProcessed, map[string]string{
			"type":   string(ev.Type),
			"status": status,
		})
		w.metrics.RecordProcessingTime("worker_"+string(ev.Type), time.Since(start))
	}()

	slog.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		"group_id", ev.GroupID,
		"entity_id", ev.EntityID)

	var err error
	switch ev.Type {
	case amqp.EventExpenseSaved, amqp.EventExpenseSettleToggled:
		err = w.syncExpense(ctx, ev.GroupID, ev.EntityID)
	case amqp.EventMemberRenamed, amqp.EventMemberRemoved:
		err = w.syncGroup(ctx, ev.GroupID)
	case amqp.EventExpenseDeleted:
		err = w.deleteExpense(ctx, ev.EntityID)
	case amqp.EventGroupDeleted:
		err = w.deleteGroup(ctx, ev.GroupID)
	case amqp.EventLedgerReset:
		err = w.clearRows(ctx)
	default:
		status = "skipped"
		slog.DebugContext(ctx, "Event has no mirror effect", "type", ev.Type)
		return nil
	}

	if err != nil {
		status = "failed"
		return err
	}
	return nil
}

// Resync mirrors every group expense and drops rows whose expense is gone
// from the store. It recovers from events lost while the worker was down.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	groups, err := w.ledger.Groups(ctx)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}

	live := make(map[string]struct{})
	synced, failed := 0, 0
	for _, g := range groups {
		for _, e := range g.Expenses {
			live[e.ID] = struct{}{}
			if _, err := w.mirror.UpsertExpenseRow(ctx, sheets.NewExpenseRow(g, e)); err != nil {
				slog.ErrorContext(ctx, "Failed to mirror expense during resync",
					"group_id", g.ID, "expense_id", e.ID, "error", err)
				failed++
				continue
			}
			synced++
		}
	}

	pruned, err := w.pruneRows(ctx, live)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to prune stale rows during resync", "error", err)
		failed++
	}

	slog.InfoContext(ctx, "Resync completed",
		"groups", len(groups),
		"synced", synced,
		"pruned", pruned,
		"errors", failed)
	return nil
}

// pruneRows deletes the rows of every expense not in live. Mirrors that
// cannot list their rows are left as they are.
func (w *MirrorWorker) pruneRows(ctx context.Context, live map[string]struct{}) (int, error) {
	lister, ok := w.mirror.(sheets.RowLister)
	if !ok {
		return 0, nil
	}
	rows, err := lister.ListExpenseRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rows: %w", err)
	}

	pruned := 0
	seen := make(map[string]struct{})
	for _, row := range rows {
		if _, ok := live[row.ExpenseID]; ok {
			continue
		}
		if _, ok := seen[row.ExpenseID]; ok {
			continue
		}
		seen[row.ExpenseID] = struct{}{}
		n, err := w.mirror.DeleteExpenseRows(ctx, row.ExpenseID)
		if err != nil {
			return pruned, fmt.Errorf("delete expense rows %s: %w", row.ExpenseID, err)
		}
		pruned += n
	}
	return pruned, nil
}

// clearRows empties the mirror after a ledger reset.
func (w *MirrorWorker) clearRows(ctx context.Context) error {
	if _, ok := w.mirror.(sheets.RowLister); !ok {
		slog.WarnContext(ctx, "Mirror cannot list its rows, reset left unmirrored")
		return nil
	}
	n, err := w.pruneRows(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}
	slog.InfoContext(ctx, "Cleared mirror after reset", "rows", n)
	return nil
}

func (w *MirrorWorker) syncExpense(ctx context.Context, groupID, expenseID string) error {
	g, ok, err := w.findGroup(ctx, groupID)
	if err != nil || !ok {
		return err
	}
	e, _, found := g.FindExpense(expenseID)
	if !found {
		slog.WarnContext(ctx, "Expense no longer exists, skipping",
			"group_id", groupID, "expense_id", expenseID)
		return nil
	}

	ref, err := w.mirror.UpsertExpenseRow(ctx, sheets.NewExpenseRow(g, e))
	if err != nil {
		return fmt.Errorf("mirror expense %s: %w", expenseID, err)
	}

	slog.InfoContext(ctx, "Successfully mirrored expense",
		"expense_id", expenseID,
		"sheets_ref", ref,
		"amount", e.Amount)
	return nil
}

// syncGroup rewrites every row of a group so member names stay current.
func (w *MirrorWorker) syncGroup(ctx context.Context, groupID string) error {
	g, ok, err := w.findGroup(ctx, groupID)
	if err != nil || !ok {
		return err
	}
	for _, e := range g.Expenses {
		if _, err := w.mirror.UpsertExpenseRow(ctx, sheets.NewExpenseRow(g, e)); err != nil {
			return fmt.Errorf("mirror expense %s: %w", e.ID, err)
		}
	}
	slog.InfoContext(ctx, "Group rows refreshed", "group_id", groupID, "rows", len(g.Expenses))
	return nil
}

func (w *MirrorWorker) deleteExpense(ctx context.Context, expenseID string) error {
	n, err := w.mirror.DeleteExpenseRows(ctx, expenseID)
	if err != nil {
		return fmt.Errorf("delete expense rows: %w", err)
	}
	slog.InfoContext(ctx, "Deleted expense rows", "expense_id", expenseID, "rows", n)
	return nil
}

func (w *MirrorWorker) deleteGroup(ctx context.Context, groupID string) error {
	n, err := w.mirror.DeleteGroupRows(ctx, groupID)
	if err != nil {
		return fmt.Errorf("delete group rows: %w", err)
	}
	slog.InfoContext(ctx, "Deleted group rows", "group_id", groupID, "rows", n)
	return nil
}

// findGroup reports ok=false, without error, for a group deleted after the
// event was published.
func (w *MirrorWorker) findGroup(ctx context.Context, groupID string) (core.Group, bool, error) {
	groups, err := w.ledger.Groups(ctx)
	if err != nil {
		return core.Group{}, false, fmt.Errorf("load groups: %w", err)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return g, true, nil
		}
	}
	slog.WarnContext(ctx, "Group no longer exists, skipping", "group_id", groupID)
	return core.Group{}, false, nil
}
