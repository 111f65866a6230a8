// Package storage persists the ledger as a handful of JSON blobs under
// well-known string keys. Adapters live in the sqlite and postgres
// subpackages; MemoryStore serves tests and throwaway runs.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when the key has never been set or was removed.
var ErrNotFound = errors.New("key not found")

// Key prefix shared by every blob the application owns.
const KeyPrefix = "@spendsense"

const (
	KeyPersonalExpenses = "@spendsense_personal_expenses"
	KeyGroups           = "@spendsense_groups"
	KeyActiveGroupID    = "@spendsense_active_group_id"
	KeyProfile          = "@spendsense_profile"
	KeyTheme            = "@spendsense_theme"
	KeyNotifications    = "@spendsense_notifications"
)

// KnownKeys lists the keys removed by a reset even if Keys fails to report them.
var KnownKeys = []string{
	KeyPersonalExpenses,
	KeyGroups,
	KeyActiveGroupID,
	KeyProfile,
	KeyTheme,
	KeyNotifications,
}

// Store is a string-keyed blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes the given keys; absent keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
