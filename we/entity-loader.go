package we

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// EntityLoader renders entities from their events, starting from a snapshot when a
// snapshot store is configured.
type EntityLoader[T any] struct {
	Store     EventStore
	Renderer  *Renderer[T]
	Snapshots SnapshotStore
	Log       *zerolog.Logger
}

func (s *EntityLoader[T]) Load(ctx context.Context, id AggregateId) (Entity[T], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "load entity")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate", id.String()))

	if s.Snapshots == nil {
		aggregate, err := s.Store.Load(ctx, id)
		if err != nil {
			return Entity[T]{}, err
		}

		return s.Renderer.Render(ctx, aggregate)
	}

	return s.loadFromSnapshot(ctx, id)
}

func (s *EntityLoader[T]) logger() *zerolog.Logger {
	if s.Log == nil {
		return &log.Logger
	}
	return s.Log
}

func (s *EntityLoader[T]) loadFromSnapshot(ctx context.Context, id AggregateId) (Entity[T], error) {
	var state T
	entity := Entity[T]{Aggregate: id, State: &state}
	var taken time.Time

	snapshot, err := s.Snapshots.Load(ctx, id)
	if err != nil {
		return Entity[T]{}, err
	}

	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, &state); err != nil {
			s.logger().Warn().Err(err).Str("aggregate", id.String()).Msg("ignoring unreadable snapshot")
			state = *new(T)
		} else {
			entity.Version = snapshot.Version
			entity.Sequence = snapshot.LastSequence
			taken = snapshot.CreatedAt
		}
	}

	stream := s.Store.AggregateStream(id, entity.Sequence.Next())
	var events []RecordedEvent
	for stream.Next(ctx) {
		events = append(events, stream.Event())
	}
	if err := stream.Err(); err != nil {
		return Entity[T]{}, err
	}

	rendered, err := s.Renderer.Apply(ctx, entity, events)
	if err != nil {
		return Entity[T]{}, err
	}

	if len(events) > 0 && s.Snapshots.ShouldSnapshot(uint64(len(events)), taken) {
		s.save(ctx, rendered)
	}

	return rendered, nil
}

func (s *EntityLoader[T]) save(ctx context.Context, entity Entity[T]) {
	state, err := json.Marshal(entity.State)
	if err != nil {
		s.logger().Warn().Err(err).Str("aggregate", entity.Aggregate.String()).Msg("failed to encode snapshot")
		return
	}

	snapshot := Snapshot{
		AggregateId:  entity.Aggregate,
		Version:      entity.Version,
		LastSequence: entity.Sequence,
		State:        state,
	}

	if err := s.Snapshots.Save(ctx, snapshot); err != nil {
		s.logger().Warn().Err(err).Str("aggregate", entity.Aggregate.String()).Msg("failed to save snapshot")
	}
}
