package main

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/weegigs/wee-ledger-go/projections"
	"github.com/weegigs/wee-ledger-go/samples/journal"
	"github.com/weegigs/wee-ledger-go/snapshots"
	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/support"
	"github.com/weegigs/wee-ledger-go/we"
)

type App struct {
	Config      *support.Config
	Log         *zerolog.Logger
	Env         *boltdb.Environment
	Store       *boltdb.EventStore
	ReadModels  *projections.ProjectionDb
	Projections *projections.Runner
	Journal     journal.Service
}

func ProvideEnvironment(cfg *support.Config, log *zerolog.Logger) (*boltdb.Environment, func(), error) {
	durability, err := cfg.DurabilityMode()
	if err != nil {
		return nil, nil, err
	}

	env, err := boltdb.Open(
		cfg.Store.Path,
		boltdb.WithDurability(durability),
		boltdb.WithTimeout(cfg.Store.OpenTimeout),
		boltdb.WithCapacity(cfg.Store.CapacityBytes),
		boltdb.WithWorkers(cfg.Store.Workers),
		boltdb.WithEnvironmentLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := env.Close(); err != nil {
			log.Error().Err(err).Str("path", cfg.Store.Path).Msg("failed to close store")
		}
	}

	return env, cleanup, nil
}

func ProvideEventStore(env *boltdb.Environment, cfg *support.Config, log *zerolog.Logger) (*boltdb.EventStore, error) {
	return boltdb.NewEventStore(env, boltdb.WithLogger(log), boltdb.WithStreamBatchSize(cfg.Store.StreamBatchSize))
}

func ProvideSnapshotPolicy(cfg *support.Config) snapshots.Policy {
	var policies []snapshots.Policy
	if cfg.Snapshots.EveryEvents > 0 {
		policies = append(policies, snapshots.EveryNEvents(cfg.Snapshots.EveryEvents))
	}
	if cfg.Snapshots.EveryInterval > 0 {
		policies = append(policies, snapshots.EveryInterval(cfg.Snapshots.EveryInterval, we.SystemClock))
	}

	if len(policies) == 0 {
		return snapshots.Never()
	}
	return snapshots.AnyOf(policies...)
}

func ProvideSnapshotDb(env *boltdb.Environment, policy snapshots.Policy, log *zerolog.Logger) (*snapshots.SnapshotDb, error) {
	return snapshots.NewSnapshotDb(env, policy, snapshots.WithLogger(log))
}

func ProvideProjectionDb(env *boltdb.Environment, log *zerolog.Logger) (*projections.ProjectionDb, error) {
	return projections.NewProjectionDb(env, projections.WithDbLogger(log))
}

// ProvideRunner registers the projections served by this binary and wakes them on every
// append.
func ProvideRunner(store *boltdb.EventStore, db *projections.ProjectionDb, cfg *support.Config, log *zerolog.Logger) (*projections.Runner, error) {
	worker, err := projections.NewWorker(
		journal.ProjectionName, journal.ProjectionVersion, store, db,
		projections.WithStrategy(journal.Strategy(cfg.Projections.BatchSize)),
		projections.WithMapper(journal.Mapper),
		projections.WithBreaker(cfg.Projections.BreakerFailures, cfg.Projections.BreakerTimeout),
		projections.WithWorkerLogger(log),
	)
	if err != nil {
		return nil, err
	}

	runner := projections.NewRunner(
		[]*projections.Worker{worker},
		projections.WithPollInterval(cfg.Projections.PollInterval),
		projections.WithRunnerLogger(log),
	)
	store.Subscribe(func([]we.RecordedEvent) { runner.Wake() })

	return runner, nil
}

var storage = wire.NewSet(
	ProvideEnvironment,
	ProvideEventStore,
	ProvideSnapshotPolicy,
	ProvideSnapshotDb,
	ProvideProjectionDb,
	ProvideRunner,
	wire.Bind(new(we.EventStore), new(*boltdb.EventStore)),
	wire.Bind(new(we.SnapshotStore), new(*snapshots.SnapshotDb)),
)

var Live = wire.NewSet(
	storage,
	journal.Live,
	wire.Struct(new(App), "*"),
)
