package projections

import (
	"bytes"
	"context"
	"fmt"
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

const tracerName = "wee-ledger/projections"

var (
	stateBucket     = []byte("projection_state")
	positionsBucket = []byte("projection_positions")
)

// Update is one read-model write. A nil Value deletes the key.
type Update struct {
	Key   string
	Value []byte
}

// Position is the checkpoint of one projection version: the last sequence whose batch
// was committed.
type Position struct {
	Name      string      `json:"projection_name"`
	Version   uint32      `json:"projection_version"`
	Sequence  we.Sequence `json:"last_processed_sequence"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Entry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

func PositionKey(name string, version uint32) string {
	return fmt.Sprintf("%s:v%d", name, version)
}

type ProjectionDbOption func(*ProjectionDb)

func WithDbLogger(log *zerolog.Logger) ProjectionDbOption {
	return func(db *ProjectionDb) {
		db.log = log
	}
}

func WithDbClock(clock we.Clock) ProjectionDbOption {
	return func(db *ProjectionDb) {
		db.clock = clock
	}
}

// ProjectionDb holds read models and their checkpoints in the shared environment.
type ProjectionDb struct {
	env   *boltdb.Environment
	clock we.Clock
	log   *zerolog.Logger
}

func NewProjectionDb(env *boltdb.Environment, options ...ProjectionDbOption) (*ProjectionDb, error) {
	db := &ProjectionDb{env: env}
	for _, option := range options {
		option(db)
	}

	if db.clock == nil {
		db.clock = we.SystemClock
	}
	if db.log == nil {
		db.log = &log.Logger
	}

	if err := env.EnsureBuckets(stateBucket, positionsBucket); err != nil {
		return nil, err
	}

	return db, nil
}

// UpdateBatch applies every update and moves the checkpoint to sequence in a single
// transaction. Either all of it lands or none of it does. A checkpoint behind the stored
// one is refused; use ResetPosition to start over.
func (db *ProjectionDb) UpdateBatch(ctx context.Context, name string, version uint32, updates []Update, sequence we.Sequence) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "update projection batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("projection", name),
		attribute.Int("version", int(version)),
		attribute.Int("updates", len(updates)),
		attribute.Int64("sequence", int64(sequence)),
	)

	for _, update := range updates {
		if update.Key == "" {
			return we.ValidationFailed("update projection batch", "read-model key must not be empty")
		}
	}

	position := Position{Name: name, Version: version, Sequence: sequence, UpdatedAt: db.clock.Now().UTC()}
	value, err := json.Marshal(position)
	if err != nil {
		return we.SerializationFailed("update projection batch", err)
	}

	err = db.env.Update(ctx, "update projection batch", func(tx *bbolt.Tx) error {
		state, err := boltdb.Bucket(tx, stateBucket)
		if err != nil {
			return err
		}
		positions, err := boltdb.Bucket(tx, positionsBucket)
		if err != nil {
			return err
		}

		key := []byte(PositionKey(name, version))
		current, err := decodePosition(positions.Get(key))
		if err != nil {
			return err
		}
		if current != nil && sequence < current.Sequence {
			return we.ValidationFailed(
				"update projection batch",
				fmt.Sprintf("checkpoint %d is behind stored checkpoint %d", sequence, current.Sequence),
			)
		}

		for _, update := range updates {
			if update.Value == nil {
				if err := state.Delete([]byte(update.Key)); err != nil {
					return err
				}
				continue
			}

			if err := state.Put([]byte(update.Key), update.Value); err != nil {
				return err
			}
		}

		return positions.Put(key, value)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	db.log.Debug().
		Str("projection", name).
		Uint32("version", version).
		Int("batch", len(updates)).
		Uint64("sequence", uint64(sequence)).
		Msg("committed projection batch")

	return nil
}

// Position returns the checkpoint sequence, 0 for a projection version never seen before.
func (db *ProjectionDb) Position(ctx context.Context, name string, version uint32) (we.Sequence, error) {
	position, err := db.Checkpoint(ctx, name, version)
	if err != nil {
		return 0, err
	}

	if position == nil {
		return 0, nil
	}

	return position.Sequence, nil
}

// Checkpoint returns the stored checkpoint row or nil.
func (db *ProjectionDb) Checkpoint(ctx context.Context, name string, version uint32) (*Position, error) {
	var position *Position
	err := db.env.View(ctx, "get position", func(tx *bbolt.Tx) error {
		positions, err := boltdb.Bucket(tx, positionsBucket)
		if err != nil {
			return err
		}

		position, err = decodePosition(positions.Get([]byte(PositionKey(name, version))))
		return err
	})
	if err != nil {
		return nil, err
	}

	return position, nil
}

// ResetPosition removes the checkpoint so the projection version starts again from 0.
func (db *ProjectionDb) ResetPosition(ctx context.Context, name string, version uint32) error {
	return db.env.Update(ctx, "reset position", func(tx *bbolt.Tx) error {
		positions, err := boltdb.Bucket(tx, positionsBucket)
		if err != nil {
			return err
		}
		return positions.Delete([]byte(PositionKey(name, version)))
	})
}

// Get returns the read-model value for key, nil when absent.
func (db *ProjectionDb) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.env.View(ctx, "get projection", func(tx *bbolt.Tx) error {
		state, err := boltdb.Bucket(tx, stateBucket)
		if err != nil {
			return err
		}

		if raw := state.Get([]byte(key)); raw != nil {
			value = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

func (db *ProjectionDb) Delete(ctx context.Context, key string) error {
	return db.env.Update(ctx, "delete projection", func(tx *bbolt.Tx) error {
		state, err := boltdb.Bucket(tx, stateBucket)
		if err != nil {
			return err
		}
		return state.Delete([]byte(key))
	})
}

// Scan returns read-model entries whose key starts with prefix, in key order. A limit of
// 0 returns every match.
func (db *ProjectionDb) Scan(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	entries := []Entry{}
	err := db.env.View(ctx, "scan projections", func(tx *bbolt.Tx) error {
		state, err := boltdb.Bucket(tx, stateBucket)
		if err != nil {
			return err
		}

		p := []byte(prefix)
		c := state.Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			entries = append(entries, Entry{Key: string(k), Value: append([]byte(nil), v...)})
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func decodePosition(raw []byte) (*Position, error) {
	if raw == nil {
		return nil, nil
	}

	var position Position
	if err := json.Unmarshal(raw, &position); err != nil {
		return nil, we.SerializationFailed("decode position", err)
	}

	return &position, nil
}
