// Package store provides the key-value persistence surface used by the widget.
//
// Records are opaque text blobs grouped by scope. A scope is one browsing
// context (an anonymous visitor), so every widget instance opened by the same
// visitor sees the same records.
package store

import (
	"context"
	"time"
)

// Store defines the interface for persisting scoped key-value records.
type Store interface {
	// Get returns the value stored under key. ok is false when no record exists.
	Get(ctx context.Context, scope, key string) (value string, ok bool, err error)

	// Set creates or replaces a record.
	Set(ctx context.Context, scope, key, value string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, scope string, keys ...string) error

	// DeleteStale removes every record not written within retention.
	DeleteStale(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
