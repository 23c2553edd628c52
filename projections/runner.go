package projections

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrNoWorkers = errors.New("no projection workers registered")

// Runner runs a set of workers until the context ends. The first worker to fail cancels
// the others and its error is returned.
type Runner struct {
	workers []*Worker
	poll    time.Duration
	log     *zerolog.Logger
}

type RunnerOption func(*Runner)

func WithPollInterval(poll time.Duration) RunnerOption {
	return func(r *Runner) {
		r.poll = poll
	}
}

func WithRunnerLogger(log *zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

func NewRunner(workers []*Worker, options ...RunnerOption) *Runner {
	r := &Runner{workers: workers, poll: DefaultPollInterval}
	for _, option := range options {
		option(r)
	}

	if r.log == nil {
		r.log = &log.Logger
	}

	return r
}

func (r *Runner) Workers() []*Worker {
	return r.workers
}

// Wake wakes every worker. It has the shape of an append notifier.
func (r *Runner) Wake() {
	for _, w := range r.workers {
		w.Wake()
	}
}

// Lags reports the lag of every worker in registration order.
func (r *Runner) Lags(ctx context.Context) ([]Lag, error) {
	lags := make([]Lag, 0, len(r.workers))
	for _, w := range r.workers {
		lag, err := w.Lag(ctx)
		if err != nil {
			return nil, err
		}
		lags = append(lags, lag)
	}
	return lags, nil
}

func (r *Runner) Find(name string, version uint32) (*Worker, bool) {
	for _, w := range r.workers {
		if w.name == name && w.version == version {
			return w, true
		}
	}
	return nil, false
}

// Run returns ctx.Err() once the context ends, or the first worker failure.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.workers) == 0 {
		return ErrNoWorkers
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		group.Go(func() error {
			err := w.Run(gctx, r.poll)
			if err == nil || gctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "projection %s failed", PositionKey(w.name, w.version))
		})
	}

	r.log.Info().Int("workers", len(r.workers)).Msg("projection runner started")

	if err := group.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}
