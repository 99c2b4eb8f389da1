// Package store defines the two abstract stores the tracking core runs on:
// a key-value store with TTLs and per-field hash writes, and an ordered-set
// store for rankings. Both can be backed by the same system (see redis.go)
// or held in memory (memory.go).
package store

import (
	"context"
	"time"
)

// KV handles plain values and hashes with per-key TTLs.
// All writes are idempotent; HSetNX provides if-not-exists semantics for
// first-crossing-wins fields.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// HSetNX writes a hash field only when absent. Returns true when the
	// write happened.
	HSetNX(ctx context.Context, key, field, val string) (bool, error)
}

// Member is one entry of an ordered set.
type Member struct {
	ID    string
	Score float64
}

// OrderedSet keeps members sorted by ascending score.
type OrderedSet interface {
	// Add inserts or overwrites the member's score and refreshes the TTL.
	Add(ctx context.Context, key, member string, score float64, ttl time.Duration) error
	// TopN returns up to n members, best (lowest score) first.
	TopN(ctx context.Context, key string, n int) ([]Member, error)
	// Rank returns the 1-based ascending rank of a member.
	Rank(ctx context.Context, key, member string) (int, bool, error)
	Card(ctx context.Context, key string) (int, error)
	Remove(ctx context.Context, key, member string) error
}

// Store composes both halves. Consumers should depend on the narrow
// interface they need.
type Store interface {
	KV
	OrderedSet

	// Close releases the backing connection.
	Close() error
}
