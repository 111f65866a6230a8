package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"spendsense/internal/amqp"
	"spendsense/internal/core"
)

// ExportDocument is the one-way JSON snapshot of the ledger.
type ExportDocument struct {
	PersonalExpenses []core.PersonalExpense `json:"personal_expenses"`
	Groups           []core.Group           `json:"groups"`
	ActiveGroup      *string                `json:"active_group"`
	ExportedAt       string                 `json:"exported_at"`
}

// ExportFilename names the file an export taken at t is saved as.
func ExportFilename(t time.Time) string {
	return fmt.Sprintf("spendsense-export-%s.json", t.Format(time.DateOnly))
}

// Export reads the personal, group and active-group blobs concurrently and
// merges them as stored. There is no import counterpart.
func (s *LedgerService) Export(ctx context.Context) (doc ExportDocument, err error) {
	defer s.track("export", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var active string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		personal, err := s.ledger.PersonalExpenses(gctx)
		if err != nil {
			return fmt.Errorf("load personal expenses: %w", err)
		}
		doc.PersonalExpenses = personal
		return nil
	})
	g.Go(func() error {
		groups, err := s.ledger.Groups(gctx)
		if err != nil {
			return fmt.Errorf("load groups: %w", err)
		}
		doc.Groups = groups
		return nil
	})
	g.Go(func() error {
		id, err := s.ledger.ActiveGroupID(gctx)
		if err != nil {
			return fmt.Errorf("load active group: %w", err)
		}
		active = id
		return nil
	})
	if err := g.Wait(); err != nil {
		return ExportDocument{}, persistence("export", err)
	}

	if active != "" {
		doc.ActiveGroup = &active
	}
	doc.ExportedAt = core.FormatISO(s.now())

	slog.InfoContext(ctx, "Ledger exported",
		"personal_expenses", len(doc.PersonalExpenses), "groups", len(doc.Groups))
	return doc, nil
}

// Reset removes every stored blob, preferences included. There is no undo.
func (s *LedgerService) Reset(ctx context.Context) (err error) {
	defer s.track("reset", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.ledger.ClearAll(ctx)
	if err != nil {
		return persistence("reset", err)
	}
	s.metrics.RecordGauge(MetricGroupsTotal, 0, nil)

	slog.WarnContext(ctx, "Ledger reset", "removed_keys", len(removed))
	s.publish(ctx, amqp.EventLedgerReset, "", "")
	return nil
}
