package we

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

const tracerName = "wee-ledger"

type EntityService[T any] interface {
	Load(ctx context.Context, id AggregateId) (Entity[T], error)
	Execute(ctx context.Context, id AggregateId, command Command) (Entity[T], error)
}

type EntityServiceOption func(*serviceOptions)

type serviceOptions struct {
	attempts uint
	delay    time.Duration
}

// WithConflictRetries sets how many times a command runs against a freshly loaded entity
// when it hits a version conflict. The command always runs at least once.
func WithConflictRetries(attempts uint, delay time.Duration) EntityServiceOption {
	return func(o *serviceOptions) {
		o.attempts = attempts
		o.delay = delay
	}
}

func NewEntityService[T any](loader *EntityLoader[T], dispatcher Dispatcher[T], options ...EntityServiceOption) *entityService[T] {
	o := &serviceOptions{attempts: 5, delay: 10 * time.Millisecond}
	for _, option := range options {
		option(o)
	}
	if o.attempts == 0 {
		o.attempts = 1
	}

	return &entityService[T]{
		loader:     loader,
		dispatcher: dispatcher,
		options:    *o,
	}
}

type entityService[T any] struct {
	loader     *EntityLoader[T]
	dispatcher Dispatcher[T]
	options    serviceOptions
}

func (s *entityService[T]) Load(ctx context.Context, id AggregateId) (Entity[T], error) {
	return s.loader.Load(ctx, id)
}

func (s *entityService[T]) Execute(ctx context.Context, id AggregateId, command Command) (Entity[T], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "execute command")
	defer span.End()

	var result Entity[T]
	err := retry.Do(
		func() error {
			entity, err := s.Load(ctx, id)
			if err != nil {
				return err
			}

			published, err := s.dispatcher.Dispatch(ctx, entity, command)
			if err != nil {
				return err
			}

			if !published {
				result = entity
				return nil
			}

			result, err = s.Load(ctx, id)
			return err
		},
		retry.RetryIf(
			func(err error) bool {
				return errors.Is(err, ErrVersionConflict) && ctx.Err() == nil
			},
		),
		retry.Attempts(s.options.attempts),
		retry.Delay(s.options.delay),
		retry.LastErrorOnly(true),
	)

	if err != nil {
		return Entity[T]{}, err
	}

	return result, nil
}
