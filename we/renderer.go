package we

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

type Reducers[T any] map[EventType]Reducer[T]

type Renderer[T any] struct {
	Reducers Reducers[T]
}

func (r *Renderer[T]) Render(ctx context.Context, aggregate Aggregate) (Entity[T], error) {
	var state T
	initial := Entity[T]{Aggregate: aggregate.Id, State: &state}

	return r.Apply(ctx, initial, aggregate.Events)
}

// Apply folds events into a copy of entity's state. Events without a reducer only advance
// the version.
func (r *Renderer[T]) Apply(ctx context.Context, entity Entity[T], events []RecordedEvent) (Entity[T], error) {
	var state T
	if entity.State != nil {
		state = *entity.State
	}

	_, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("render %s", NameOf(state)))
	defer span.End()

	version := entity.Version
	sequence := entity.Sequence
	for _, event := range events {
		version = event.Version
		sequence = event.Sequence

		reducer := r.Reducers[event.EventType]
		if nil == reducer {
			continue
		}

		if err := reducer.Reduce(&state, &event); err != nil {
			return Entity[T]{}, errors.Wrap(
				err,
				fmt.Sprintf("failed to process update with %s", event.EventType),
			)
		}
	}

	return Entity[T]{
		Aggregate: entity.Aggregate,
		Version:   version,
		Sequence:  sequence,
		Type:      EntityTypeOf(state),
		State:     &state,
	}, nil
}
