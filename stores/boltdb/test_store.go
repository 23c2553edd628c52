package boltdb

import (
	"path/filepath"
	"testing"
)

// NewTestStore opens an event store in a temporary directory that is removed when the
// test finishes.
func NewTestStore(t testing.TB, options ...EventStoreOption) (*EventStore, *Environment) {
	t.Helper()

	env, err := Open(filepath.Join(t.TempDir(), "ledger.db"), WithDurability(MaxPerformance))
	if err != nil {
		t.Fatalf("failed to open test environment: %+v", err)
	}
	t.Cleanup(func() {
		if err := env.Close(); err != nil {
			t.Errorf("failed to close test environment: %+v", err)
		}
	})

	store, err := NewEventStore(env, options...)
	if err != nil {
		t.Fatalf("failed to create test store: %+v", err)
	}

	return store, env
}
