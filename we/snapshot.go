package we

import (
	"context"
	"time"
)

// Snapshot caches an aggregate's folded state. It is never authoritative: readers replay
// every event after LastSequence on top of it.
type Snapshot struct {
	AggregateId  AggregateId `json:"aggregate_id"`
	Version      Version     `json:"version"`
	LastSequence Sequence    `json:"last_sequence"`
	State        []byte      `json:"state"`
	CreatedAt    time.Time   `json:"created_at"`
}

type SnapshotStore interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, id AggregateId) (*Snapshot, error)
	ShouldSnapshot(eventsSinceLast uint64, lastSnapshot time.Time) bool
}
