package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"spendsense/internal/amqp"
	"spendsense/internal/core"
	"spendsense/internal/storage"
)

// LedgerService orchestrates group, member, expense and settlement changes
// over the ledger store. Every mutation is a read-modify-write of a whole
// blob done under one lock, so the store is always the source of truth:
// a caller only sees success after the write went through.
type LedgerService struct {
	ledger    *storage.Ledger
	publisher Publisher
	metrics   MetricsRecorder
	now       func() time.Time
	loc       *time.Location

	mu sync.RWMutex
}

type Option func(*LedgerService)

// WithPublisher announces every successful write through p.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *LedgerService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithLocation sets the zone used for month windows and display dates.
func WithLocation(loc *time.Location) Option {
	return func(s *LedgerService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		ledger:  storage.NewLedger(store),
		metrics: noopMetrics{},
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger exposes the typed store, e.g. for readiness checks.
func (s *LedgerService) Ledger() *storage.Ledger {
	return s.ledger
}

// CreateGroup adds a group in front of the list. When the profile has a
// name, a self member carrying it is seeded as the first member.
func (s *LedgerService) CreateGroup(ctx context.Context, name string) (g core.Group, err error) {
	defer s.track("create_group", time.Now(), &err)

	name = strings.TrimSpace(name)
	g = core.Group{
		ID:        core.NewID(),
		Name:      name,
		CreatedAt: core.FormatISO(s.now()),
	}.Normalized()
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.ledger.Profile(ctx)
	if err != nil {
		return core.Group{}, persistence("load profile", err)
	}
	if self := strings.TrimSpace(profile.Name); self != "" {
		g.Members = append(g.Members, core.Member{ID: core.NewSelfMemberID(), Name: self})
	}

	groups, err := s.ledger.Groups(ctx)
	if err != nil {
		return core.Group{}, persistence("load groups", err)
	}
	next := append([]core.Group{g}, groups...)
	if err := s.ledger.SaveGroups(ctx, next); err != nil {
		return core.Group{}, persistence("save groups", err)
	}
	s.metrics.RecordGauge(MetricGroupsTotal, float64(len(next)), nil)

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "members", len(g.Members))
	s.publish(ctx, amqp.EventGroupCreated, g.ID, g.ID)
	return g, nil
}

// DeleteGroup removes the group with everything it owns and clears the
// active pointer when it pointed at it.
func (s *LedgerService) DeleteGroup(ctx context.Context, groupID string) (err error) {
	defer s.track("delete_group", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	groups, err := s.ledger.Groups(ctx)
	if err != nil {
		return persistence("load groups", err)
	}
	next := make([]core.Group, 0, len(groups))
	for _, g := range groups {
		if g.ID != groupID {
			next = append(next, g)
		}
	}
	if len(next) == len(groups) {
		return core.ErrGroupNotFound
	}
	active, err := s.ledger.ActiveGroupID(ctx)
	if err != nil {
		return persistence("load active group", err)
	}
	if err := s.ledger.SaveGroups(ctx, next); err != nil {
		return persistence("save groups", err)
	}
	s.metrics.RecordGauge(MetricGroupsTotal, float64(len(next)), nil)

	// A pointer left behind reads as no active group, so the delete stands.
	if active == groupID {
		if err := s.ledger.ClearActiveGroupID(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to clear active group pointer", "group_id", groupID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Group deleted", "group_id", groupID, "was_active", active == groupID)
	s.publish(ctx, amqp.EventGroupDeleted, groupID, groupID)
	return nil
}

func (s *LedgerService) ListGroups(ctx context.Context) (groups []core.Group, err error) {
	defer s.track("list_groups", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	groups, err = s.ledger.Groups(ctx)
	if err != nil {
		return nil, persistence("load groups", err)
	}
	return groups, nil
}

func (s *LedgerService) GetGroup(ctx context.Context, groupID string) (g core.Group, err error) {
	defer s.track("get_group", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadGroup(ctx, groupID)
}

// SetActiveGroup points the active pointer at an existing group.
func (s *LedgerService) SetActiveGroup(ctx context.Context, groupID string) (err error) {
	defer s.track("set_active_group", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.loadGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.ledger.SaveActiveGroupID(ctx, groupID); err != nil {
		return persistence("save active group", err)
	}
	slog.InfoContext(ctx, "Active group set", "group_id", groupID)
	return nil
}

// ActiveGroup returns the active group, or nil when no pointer is stored or
// it points at a group that no longer exists.
func (s *LedgerService) ActiveGroup(ctx context.Context) (g *core.Group, err error) {
	defer s.track("active_group", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.ledger.ActiveGroupID(ctx)
	if err != nil {
		return nil, persistence("load active group", err)
	}
	if id == "" {
		return nil, nil
	}
	group, err := s.loadGroup(ctx, id)
	if errors.Is(err, core.ErrGroupNotFound) {
		slog.WarnContext(ctx, "Active group pointer is dangling", "group_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *LedgerService) ClearActiveGroup(ctx context.Context) (err error) {
	defer s.track("clear_active_group", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.ClearActiveGroupID(ctx); err != nil {
		return persistence("clear active group", err)
	}
	return nil
}

// AddMember appends a member. A non-nil draft picks up the payer and
// participant defaults for the grown group.
func (s *LedgerService) AddMember(ctx context.Context, groupID, name string, draft *core.ExpenseDraft) (m core.Member, err error) {
	defer s.track("add_member", time.Now(), &err)

	m = core.Member{ID: core.NewID(), Name: strings.TrimSpace(name)}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		g.Members = append(append([]core.Member{}, g.Members...), m)
		return nil
	})
	if err != nil {
		return core.Member{}, err
	}
	if draft != nil {
		draft.OnMemberAdded(g, m.ID)
	}

	slog.InfoContext(ctx, "Member added", "group_id", groupID, "member_id", m.ID)
	s.publish(ctx, amqp.EventMemberAdded, groupID, m.ID)
	return m, nil
}

func (s *LedgerService) RenameMember(ctx context.Context, groupID, memberID, name string) (m core.Member, err error) {
	defer s.track("rename_member", time.Now(), &err)

	m = core.Member{ID: memberID, Name: strings.TrimSpace(name)}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		if _, ok := g.FindMember(memberID); !ok {
			return core.ErrMemberNotFound
		}
		members := make([]core.Member, len(g.Members))
		for i, existing := range g.Members {
			if existing.ID == memberID {
				existing = m
			}
			members[i] = existing
		}
		g.Members = members
		return nil
	})
	if err != nil {
		return core.Member{}, err
	}

	slog.InfoContext(ctx, "Member renamed", "group_id", groupID, "member_id", memberID)
	s.publish(ctx, amqp.EventMemberRenamed, groupID, memberID)
	return m, nil
}

// RemoveMember drops the member from the group and scrubs it from draft.
// Saved expenses keep referencing the id; their shares then show up only in
// ledger.OrphanedBalances.
func (s *LedgerService) RemoveMember(ctx context.Context, groupID, memberID string, draft *core.ExpenseDraft) (err error) {
	defer s.track("remove_member", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.mutateGroup(ctx, groupID, func(g *core.Group) error {
		if _, ok := g.FindMember(memberID); !ok {
			return core.ErrMemberNotFound
		}
		members := make([]core.Member, 0, len(g.Members)-1)
		for _, m := range g.Members {
			if m.ID != memberID {
				members = append(members, m)
			}
		}
		g.Members = members
		return nil
	})
	if err != nil {
		return err
	}
	if draft != nil {
		draft.OnMemberRemoved(memberID, g)
	}

	slog.InfoContext(ctx, "Member removed", "group_id", groupID, "member_id", memberID)
	s.publish(ctx, amqp.EventMemberRemoved, groupID, memberID)
	return nil
}

// loadGroup returns the group with nil collections filled. Callers hold mu.
func (s *LedgerService) loadGroup(ctx context.Context, groupID string) (core.Group, error) {
	groups, err := s.ledger.Groups(ctx)
	if err != nil {
		return core.Group{}, persistence("load groups", err)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return g.Normalized(), nil
		}
	}
	return core.Group{}, core.ErrGroupNotFound
}

// mutateGroup applies fn to one group and writes the whole list back.
// fn must replace the slices it changes rather than edit them in place.
// Callers hold mu.
func (s *LedgerService) mutateGroup(ctx context.Context, groupID string, fn func(*core.Group) error) (core.Group, error) {
	groups, err := s.ledger.Groups(ctx)
	if err != nil {
		return core.Group{}, persistence("load groups", err)
	}
	idx := -1
	for i, g := range groups {
		if g.ID == groupID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.Group{}, core.ErrGroupNotFound
	}

	g := groups[idx].Normalized()
	if err := fn(&g); err != nil {
		return core.Group{}, err
	}
	next := append([]core.Group(nil), groups...)
	next[idx] = g
	if err := s.ledger.SaveGroups(ctx, next); err != nil {
		return core.Group{}, persistence("save groups", err)
	}
	return g, nil
}

func (s *LedgerService) publish(ctx context.Context, t amqp.EventType, groupID, entityID string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Publisher not configured, skipping ledger event", "event_type", t)
		return
	}
	event := amqp.NewLedgerEvent(t, groupID, entityID)
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		// the write already succeeded; consumers catch up from the store
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"event_type", t, "group_id", groupID, "entity_id", entityID, "error", err)
		s.metrics.IncrementCounter(MetricEventPublished, map[string]string{"type": string(t), "status": "failed"})
		return
	}
	s.metrics.IncrementCounter(MetricEventPublished, map[string]string{"type": string(t), "status": "success"})
}

func (s *LedgerService) track(op string, start time.Time, errp *error) {
	s.metrics.RecordProcessingTime(op, time.Since(start))
	s.metrics.IncrementCounter(MetricLedgerOperation, map[string]string{
		"operation": op,
		"status":    statusOf(*errp),
	})
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, core.ErrValidation):
		return "validation_error"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, core.ErrPersistence, err)
}

// Close closes the store and, when it can be closed, the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if err := s.ledger.Store().Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}

	return nil
}
