package snapshots

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

const tracerName = "wee-ledger/snapshots"

var snapshotsBucket = []byte("snapshots")

var _ we.SnapshotStore = (*SnapshotDb)(nil)

type Option func(*SnapshotDb)

func WithLogger(log *zerolog.Logger) Option {
	return func(db *SnapshotDb) {
		db.log = log
	}
}

func WithClock(clock we.Clock) Option {
	return func(db *SnapshotDb) {
		db.clock = clock
	}
}

// SnapshotDb keeps one snapshot per aggregate; a save replaces the previous one. It only
// stores and retrieves: consumers stay correct with an empty or stale store by replaying
// events after LastSequence.
type SnapshotDb struct {
	env    *boltdb.Environment
	policy Policy
	clock  we.Clock
	log    *zerolog.Logger
}

func NewSnapshotDb(env *boltdb.Environment, policy Policy, options ...Option) (*SnapshotDb, error) {
	db := &SnapshotDb{env: env, policy: policy}
	for _, option := range options {
		option(db)
	}

	if db.policy == nil {
		db.policy = Never()
	}
	if db.clock == nil {
		db.clock = we.SystemClock
	}
	if db.log == nil {
		db.log = &log.Logger
	}

	if err := env.EnsureBuckets(snapshotsBucket); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *SnapshotDb) ShouldSnapshot(eventsSinceLast uint64, lastSnapshot time.Time) bool {
	return db.policy.ShouldSnapshot(eventsSinceLast, lastSnapshot)
}

func (db *SnapshotDb) Save(ctx context.Context, snapshot we.Snapshot) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "save snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate", snapshot.AggregateId.String()))

	if err := snapshot.AggregateId.Validate(); err != nil {
		return err
	}

	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = db.clock.Now().UTC()
	}

	value, err := json.Marshal(snapshot)
	if err != nil {
		return we.SerializationFailed("save snapshot", err)
	}

	err = db.env.Update(ctx, "save snapshot", func(tx *bbolt.Tx) error {
		b, err := boltdb.Bucket(tx, snapshotsBucket)
		if err != nil {
			return err
		}
		return b.Put(snapshot.AggregateId.Bytes(), value)
	})
	if err != nil {
		return err
	}

	db.log.Debug().
		Str("aggregate", snapshot.AggregateId.String()).
		Uint64("sequence", uint64(snapshot.LastSequence)).
		Msg("saved snapshot")

	return nil
}

// Load returns nil when the aggregate has no snapshot.
func (db *SnapshotDb) Load(ctx context.Context, id we.AggregateId) (*we.Snapshot, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "load snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate", id.String()))

	if err := id.Validate(); err != nil {
		return nil, err
	}

	var value []byte
	err := db.env.View(ctx, "load snapshot", func(tx *bbolt.Tx) error {
		b, err := boltdb.Bucket(tx, snapshotsBucket)
		if err != nil {
			return err
		}

		if raw := b.Get(id.Bytes()); raw != nil {
			value = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if value == nil {
		return nil, nil
	}

	var snapshot we.Snapshot
	if err := json.Unmarshal(value, &snapshot); err != nil {
		return nil, we.SerializationFailed("load snapshot", err)
	}

	return &snapshot, nil
}

func (db *SnapshotDb) Delete(ctx context.Context, id we.AggregateId) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "delete snapshot")
	defer span.End()

	if err := id.Validate(); err != nil {
		return err
	}

	return db.env.Update(ctx, "delete snapshot", func(tx *bbolt.Tx) error {
		b, err := boltdb.Bucket(tx, snapshotsBucket)
		if err != nil {
			return err
		}
		return b.Delete(id.Bytes())
	})
}
