package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/weegigs/wee-ledger-go/internal/dispatch"
	"github.com/weegigs/wee-ledger-go/we"
)

const DefaultCapacity = int64(1 << 30)

// Environment owns the bbolt file shared by the event store, snapshots and projections.
// Every operation runs in its own short-lived transaction on the blocking pool; see
// package dispatch for the cancellation contract.
type Environment struct {
	path       string
	db         *bbolt.DB
	pool       *dispatch.Pool
	log        *zerolog.Logger
	durability Durability
	capacity   int64
}

type Option func(*environmentOptions)

type environmentOptions struct {
	timeout    time.Duration
	durability Durability
	workers    int
	capacity   int64
	mmapSize   int
	log        *zerolog.Logger
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *environmentOptions) {
		o.timeout = timeout
	}
}

func WithDurability(durability Durability) Option {
	return func(o *environmentOptions) {
		o.durability = durability
	}
}

// WithWorkers bounds how many transactions run at once.
func WithWorkers(workers int) Option {
	return func(o *environmentOptions) {
		o.workers = workers
	}
}

// WithCapacity sets the file size that storage metrics report usage against.
func WithCapacity(bytes int64) Option {
	return func(o *environmentOptions) {
		o.capacity = bytes
	}
}

func WithInitialMmapSize(bytes int) Option {
	return func(o *environmentOptions) {
		o.mmapSize = bytes
	}
}

func WithEnvironmentLogger(log *zerolog.Logger) Option {
	return func(o *environmentOptions) {
		o.log = log
	}
}

func Open(path string, options ...Option) (*Environment, error) {
	o := &environmentOptions{
		timeout:    time.Second,
		durability: MaxDurability,
		workers:    dispatch.DefaultSize,
		capacity:   DefaultCapacity,
	}
	for _, option := range options {
		option(o)
	}
	if o.log == nil {
		o.log = &log.Logger
	}

	if strings.TrimSpace(path) == "" {
		return nil, we.InitializationFailed("open", errors.New("storage path is required"))
	}

	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o700); err != nil {
		return nil, we.InitializationFailed("open", errors.Wrap(err, "create storage directory"))
	}

	bolt := &bbolt.Options{
		Timeout:         o.timeout,
		InitialMmapSize: o.mmapSize,
	}
	o.durability.apply(bolt)

	var db *bbolt.DB
	err := retry.Do(
		func() error {
			var err error
			db, err = bbolt.Open(clean, 0o600, bolt)
			return err
		},
		retry.RetryIf(
			func(err error) bool {
				return errors.Is(err, bbolt.ErrTimeout)
			},
		),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			o.log.Warn().Err(err).Str("path", clean).Uint("attempt", n+1).Msg("storage file is locked, retrying")
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, we.InitializationFailed("open", errors.Wrapf(err, "open storage db %s", clean))
	}
	o.durability.applyDB(db)

	env := &Environment{
		path:       clean,
		db:         db,
		pool:       dispatch.NewPool(o.workers),
		log:        o.log,
		durability: o.durability,
		capacity:   o.capacity,
	}

	env.log.Debug().Str("path", clean).Str("durability", o.durability.String()).Msg("opened storage")

	return env, nil
}

func (e *Environment) Path() string {
	return e.path
}

func (e *Environment) Durability() Durability {
	return e.durability
}

// EnsureBuckets creates any missing top-level buckets. It runs on the pool like any other
// write and cannot be cancelled once called.
func (e *Environment) EnsureBuckets(names ...[]byte) error {
	err := e.pool.Do(context.Background(), func() error {
		return e.db.Update(func(tx *bbolt.Tx) error {
			for _, name := range names {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return errors.Wrapf(err, "create %s bucket", name)
				}
			}
			return nil
		})
	})
	if err != nil {
		return we.InitializationFailed("ensure buckets", err)
	}

	return nil
}

// Update runs fn in a write transaction. Errors from the storage taxonomy pass through,
// anything else becomes StorageFailed.
func (e *Environment) Update(ctx context.Context, op string, fn func(tx *bbolt.Tx) error) error {
	err := e.pool.Do(ctx, func() error {
		return e.db.Update(fn)
	})

	return classify(op, err)
}

// View runs fn in a read-only snapshot transaction.
func (e *Environment) View(ctx context.Context, op string, fn func(tx *bbolt.Tx) error) error {
	err := e.pool.Do(ctx, func() error {
		return e.db.View(fn)
	})

	return classify(op, err)
}

// Close waits for in-flight transactions and closes the file. Only the owner of the
// environment closes it.
func (e *Environment) Close() error {
	if e == nil || e.db == nil {
		return nil
	}

	if err := e.pool.Drain(context.Background()); err != nil {
		return err
	}
	defer e.pool.Release()

	return e.db.Close()
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if we.IsStoreError(err) {
		return err
	}

	return we.StorageFailed(op, err)
}

// Bucket returns a top-level bucket that EnsureBuckets created.
func Bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, errors.Errorf("%s bucket is missing", name)
	}

	return b, nil
}
