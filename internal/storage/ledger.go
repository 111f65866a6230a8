package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"spendsense/internal/core"
)

// Ledger reads and writes the typed blobs on top of a Store.
// Absent keys decode to empty values.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Store exposes the underlying blob store.
func (l *Ledger) Store() Store {
	return l.store
}

// PersonalExpenses loads personal expenses, deriving dateISO for legacy records.
func (l *Ledger) PersonalExpenses(ctx context.Context) ([]core.PersonalExpense, error) {
	var out []core.PersonalExpense
	if err := l.load(ctx, KeyPersonalExpenses, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.PersonalExpense{}
	}
	for i := range out {
		out[i] = out[i].Normalized()
	}
	return out, nil
}

func (l *Ledger) SavePersonalExpenses(ctx context.Context, expenses []core.PersonalExpense) error {
	if expenses == nil {
		expenses = []core.PersonalExpense{}
	}
	return l.save(ctx, KeyPersonalExpenses, expenses)
}

func (l *Ledger) Groups(ctx context.Context) ([]core.Group, error) {
	var out []core.Group
	if err := l.load(ctx, KeyGroups, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.Group{}
	}
	for i := range out {
		out[i] = out[i].Normalized()
	}
	return out, nil
}

func (l *Ledger) SaveGroups(ctx context.Context, groups []core.Group) error {
	if groups == nil {
		groups = []core.Group{}
	}
	return l.save(ctx, KeyGroups, groups)
}

// ActiveGroupID returns the stored active group id, or "" when none is set.
// The id is stored as a bare string, not JSON.
func (l *Ledger) ActiveGroupID(ctx context.Context) (string, error) {
	raw, err := l.store.Get(ctx, KeyActiveGroupID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", KeyActiveGroupID, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (l *Ledger) SaveActiveGroupID(ctx context.Context, id string) error {
	if err := l.store.Set(ctx, KeyActiveGroupID, []byte(id)); err != nil {
		return fmt.Errorf("set %s: %w", KeyActiveGroupID, err)
	}
	return nil
}

func (l *Ledger) ClearActiveGroupID(ctx context.Context) error {
	if err := l.store.Remove(ctx, KeyActiveGroupID); err != nil {
		return fmt.Errorf("remove %s: %w", KeyActiveGroupID, err)
	}
	return nil
}

func (l *Ledger) Profile(ctx context.Context) (core.Profile, error) {
	var p core.Profile
	if err := l.load(ctx, KeyProfile, &p); err != nil {
		return core.Profile{}, err
	}
	return p, nil
}

func (l *Ledger) SaveProfile(ctx context.Context, p core.Profile) error {
	return l.save(ctx, KeyProfile, p)
}

// ClearAll removes every key with the application prefix plus KnownKeys.
// It returns the removed keys.
func (l *Ledger) ClearAll(ctx context.Context) ([]string, error) {
	keys, err := l.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	seen := make(map[string]struct{})
	remove := make([]string, 0, len(keys)+len(KnownKeys))
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		remove = append(remove, k)
	}
	for _, k := range keys {
		if strings.HasPrefix(k, KeyPrefix) {
			add(k)
		}
	}
	for _, k := range KnownKeys {
		add(k)
	}
	if err := l.store.Remove(ctx, remove...); err != nil {
		return nil, fmt.Errorf("remove keys: %w", err)
	}
	return remove, nil
}

func (l *Ledger) load(ctx context.Context, key string, v any) error {
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (l *Ledger) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := l.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
