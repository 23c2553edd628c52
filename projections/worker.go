package projections

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/weegigs/wee-ledger-go/we"
)

const (
	DefaultPollInterval    = time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second

	unbounded = we.Sequence(math.MaxUint64)
)

var ErrAlreadyRunning = errors.New("projection worker is already running")

type State int32

const (
	Behind State = iota
	CatchingUp
	CaughtUp
)

func (s State) String() string {
	switch s {
	case Behind:
		return "behind"
	case CatchingUp:
		return "catching-up"
	case CaughtUp:
		return "caught-up"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type WorkerOption func(*Worker)

func WithStrategy(strategy Strategy) WorkerOption {
	return func(w *Worker) {
		w.strategy = strategy
	}
}

func WithMapper(mapper Mapper) WorkerOption {
	return func(w *Worker) {
		w.mapper = mapper
	}
}

func WithWorkerLogger(log *zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.log = log
	}
}

// WithBreaker pauses the continuous loop for timeout after failures consecutive failed
// passes.
func WithBreaker(failures uint32, timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		w.breakerFailures = failures
		w.breakerTimeout = timeout
	}
}

// Worker tails the event log into a ProjectionDb. Each flushed batch commits its read-model
// writes together with the checkpoint, so a restart resumes from the last committed batch.
type Worker struct {
	name     string
	version  uint32
	store    we.EventStore
	db       *ProjectionDb
	strategy Strategy
	mapper   Mapper
	log      *zerolog.Logger

	breakerFailures uint32
	breakerTimeout  time.Duration
	breaker         *gobreaker.CircuitBreaker[we.Sequence]
	batches         metric.Int64Counter

	state   atomic.Int32
	scanned atomic.Uint64
	running atomic.Bool
	pass    sync.Mutex
	wake    chan struct{}
}

func NewWorker(name string, version uint32, store we.EventStore, db *ProjectionDb, options ...WorkerOption) (*Worker, error) {
	if name == "" {
		return nil, we.ValidationFailed("new projection worker", "projection name must not be empty")
	}

	w := &Worker{
		name:            name,
		version:         version,
		store:           store,
		db:              db,
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
		wake:            make(chan struct{}, 1),
	}
	for _, option := range options {
		option(w)
	}

	if w.strategy == nil {
		w.strategy = AcceptAll(DefaultBatchSize)
	}
	if w.mapper == nil {
		w.mapper = DefaultMapper
	}
	if w.log == nil {
		w.log = &log.Logger
	}
	if w.breakerFailures == 0 {
		w.breakerFailures = DefaultBreakerFailures
	}

	w.breaker = gobreaker.NewCircuitBreaker[we.Sequence](gobreaker.Settings{
		Name:    PositionKey(name, version),
		Timeout: w.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= w.breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.log.Warn().
				Str("projection", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("projection breaker state change")
		},
	})

	batches, err := otel.Meter(tracerName).Int64Counter(
		"ledger.projection.batches",
		metric.WithDescription("projection batches committed"),
	)
	if err != nil {
		return nil, we.InitializationFailed("new projection worker", err)
	}
	w.batches = batches

	return w, nil
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Version() uint32 {
	return w.version
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Wake requests an early pass of the continuous loop. It never blocks and is safe to use
// as an append notifier.
func (w *Worker) Wake() {
	w.state.CompareAndSwap(int32(CaughtUp), int32(Behind))

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Rebuild replays the log from the beginning up to the latest sequence present when it
// started.
func (w *Worker) Rebuild(ctx context.Context) (we.Sequence, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rebuild projection")
	defer span.End()
	span.SetAttributes(attribute.String("projection", w.name), attribute.Int("version", int(w.version)))

	w.pass.Lock()
	defer w.pass.Unlock()

	latest, err := w.store.LatestSequence(ctx)
	if err != nil {
		return 0, w.failed(span, err)
	}

	if err := w.db.ResetPosition(ctx, w.name, w.version); err != nil {
		return 0, w.failed(span, err)
	}
	w.scanned.Store(0)
	w.state.Store(int32(Behind))

	w.log.Info().
		Str("projection", w.name).
		Uint32("version", w.version).
		Uint64("sequence", uint64(latest)).
		Msg("rebuilding projection")

	if latest == 0 {
		w.state.Store(int32(CaughtUp))
		return 0, nil
	}

	checkpoint, err := w.process(ctx, 1, latest)
	if err != nil {
		return checkpoint, w.failed(span, err)
	}

	return checkpoint, nil
}

// ProcessFrom applies every event from the given sequence to the end of the log and
// returns the checkpoint: the sequence of the last flushed event. Sequences at or below
// the stored checkpoint are skipped; use Rebuild to replay them.
func (w *Worker) ProcessFrom(ctx context.Context, from we.Sequence) (we.Sequence, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "process projection")
	defer span.End()
	span.SetAttributes(
		attribute.String("projection", w.name),
		attribute.Int("version", int(w.version)),
		attribute.Int64("from", int64(from)),
	)

	w.pass.Lock()
	defer w.pass.Unlock()

	checkpoint, err := w.process(ctx, from, unbounded)
	if err != nil {
		return checkpoint, w.failed(span, err)
	}

	return checkpoint, nil
}

// Run polls the log until ctx ends, processing whatever the projection has not seen yet.
// Only one Run may be active per worker.
func (w *Worker) Run(ctx context.Context, poll time.Duration) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	if poll <= 0 {
		poll = DefaultPollInterval
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	w.log.Info().Str("projection", w.name).Uint32("version", w.version).Dur("poll", poll).Msg("projection worker started")

	for {
		w.tick(ctx)

		select {
		case <-ctx.Done():
			w.log.Info().Str("projection", w.name).Uint32("version", w.version).Msg("projection worker stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	_, err := w.breaker.Execute(func() (we.Sequence, error) {
		return w.catchUp(ctx)
	})

	switch {
	case err == nil || ctx.Err() != nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		w.log.Debug().Str("projection", w.name).Msg("projection paused by breaker")
	default:
		w.log.Error().Err(err).Str("projection", w.name).Uint32("version", w.version).Msg("projection pass failed")
	}
}

func (w *Worker) catchUp(ctx context.Context) (we.Sequence, error) {
	w.pass.Lock()
	defer w.pass.Unlock()

	checkpoint, err := w.db.Position(ctx, w.name, w.version)
	if err != nil {
		return 0, err
	}

	latest, err := w.store.LatestSequence(ctx)
	if err != nil {
		return checkpoint, err
	}

	from := max(checkpoint, we.Sequence(w.scanned.Load())).Next()
	if from > latest {
		w.state.Store(int32(CaughtUp))
		return checkpoint, nil
	}

	return w.process(ctx, from, unbounded)
}

// process must be called with pass held.
func (w *Worker) process(ctx context.Context, from we.Sequence, until we.Sequence) (we.Sequence, error) {
	checkpoint, err := w.db.Position(ctx, w.name, w.version)
	if err != nil {
		w.state.Store(int32(Behind))
		return 0, err
	}

	if from <= checkpoint {
		from = checkpoint.Next()
	}

	w.state.Store(int32(CatchingUp))

	size := w.strategy.BatchSize()
	var (
		batch   []Update
		pending int
		last    we.Sequence
		read    we.Sequence
	)

	flush := func() error {
		if err := w.db.UpdateBatch(ctx, w.name, w.version, batch, last); err != nil {
			return err
		}

		w.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", w.name)))
		checkpoint = last
		batch = nil
		pending = 0
		return nil
	}

	fail := func(err error) (we.Sequence, error) {
		w.state.Store(int32(Behind))
		return checkpoint, err
	}

	stream := w.store.Stream(from)
	for stream.Next(ctx) {
		event := stream.Event()
		if event.Sequence > until {
			break
		}
		read = event.Sequence

		if !w.strategy.ShouldUpdate(event) {
			continue
		}

		updates, err := w.mapper(event)
		if err != nil {
			return fail(errors.Wrapf(err, "projection %s failed to map event %d", w.name, event.Sequence))
		}

		batch = append(batch, updates...)
		pending++
		last = event.Sequence

		if pending >= size {
			if err := flush(); err != nil {
				return fail(err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fail(err)
	}

	if pending > 0 {
		if err := flush(); err != nil {
			return fail(err)
		}
	}

	if read > we.Sequence(w.scanned.Load()) {
		w.scanned.Store(uint64(read))
	}

	latest, err := w.store.LatestSequence(ctx)
	if err != nil {
		return fail(err)
	}

	if max(checkpoint, we.Sequence(w.scanned.Load())) >= latest {
		w.state.Store(int32(CaughtUp))
	} else {
		w.state.Store(int32(Behind))
	}

	w.log.Debug().
		Str("projection", w.name).
		Uint32("version", w.version).
		Uint64("sequence", uint64(checkpoint)).
		Uint64("read", uint64(read)).
		Msg("processed projection events")

	return checkpoint, nil
}

func (w *Worker) failed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
