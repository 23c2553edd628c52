package we

import (
	"context"
)

type EventLoader = func(ctx context.Context, id AggregateId) (Aggregate, error)
type EventAppender = func(ctx context.Context, id AggregateId, options AppendOptions, events ...DomainEvent) (Sequence, error)

// EventStream is a forward-only cursor over recorded events.
//
//	for stream.Next(ctx) {
//		event := stream.Event()
//	}
//	if err := stream.Err(); err != nil {
//		...
//	}
type EventStream interface {
	Next(ctx context.Context) bool
	Event() RecordedEvent
	Err() error
}

type EventStore interface {
	// Append writes events as the next versions of the aggregate and returns the global
	// sequence of the last one. The batch commits atomically or not at all.
	Append(ctx context.Context, id AggregateId, options AppendOptions, events ...DomainEvent) (Sequence, error)

	// Events returns the aggregate's events in version order. An unknown aggregate has no events.
	Events(ctx context.Context, id AggregateId) ([]RecordedEvent, error)

	// AllEvents returns every event with a sequence of at least from, in global order.
	AllEvents(ctx context.Context, from Sequence) ([]RecordedEvent, error)

	LatestSequence(ctx context.Context) (Sequence, error)

	Load(ctx context.Context, id AggregateId) (Aggregate, error)

	Stream(from Sequence) EventStream
	AggregateStream(id AggregateId, from Sequence) EventStream
}

func Loader(store EventStore) EventLoader {
	return store.Load
}

func Appender(store EventStore) EventAppender {
	return store.Append
}

type AppendOptions struct {
	RecordedEventMetadata
	ExpectedVersion ExpectedVersion
}

type AppendOption func(modifier *AppendOptions)

func Options(options ...AppendOption) AppendOptions {
	modifiers := &AppendOptions{ExpectedVersion: AnyVersion}
	for _, option := range options {
		option(modifiers)
	}

	return *modifiers
}

func WithExpectedVersion(expected ExpectedVersion) AppendOption {
	return func(modifier *AppendOptions) {
		modifier.ExpectedVersion = expected
	}
}

func WithCorrelationId(correlationId CorrelationID) AppendOption {
	return func(modifier *AppendOptions) {
		modifier.RecordedEventMetadata.CorrelationId = correlationId
	}
}

func WithCausationId(correlationId CorrelationID, causationId EventID) AppendOption {
	return func(modifier *AppendOptions) {
		modifier.RecordedEventMetadata.CausationId = causationId
		modifier.RecordedEventMetadata.CorrelationId = correlationId
	}
}
