package boltdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/weegigs/wee-ledger-go/we"
)

const (
	tracerName       = "wee-ledger/boltdb"
	DefaultBatchSize = 100
)

var _ we.EventStore = (*EventStore)(nil)

func NewEventStore(env *Environment, options ...EventStoreOption) (*EventStore, error) {
	store := &EventStore{env: env}

	for _, option := range options {
		option(store)
	}

	if store.log == nil {
		store.log = &log.Logger
	}

	if store.clock == nil {
		store.clock = we.SystemClock
	}

	if store.ids == nil {
		store.ids = we.NewUlidGenerator()
	}

	if store.marshaller == nil {
		store.marshaller = JSONMarshaller{}
	}

	if store.batchSize <= 0 {
		store.batchSize = DefaultBatchSize
	}

	appended, err := otel.Meter(tracerName).Int64Counter(
		"ledger.events.appended",
		metric.WithDescription("events committed to the log"),
	)
	if err != nil {
		return nil, we.InitializationFailed("event store", err)
	}
	store.appended = appended

	if err := env.EnsureBuckets(eventsBucket, streamsBucket, headsBucket); err != nil {
		return nil, err
	}

	return store, nil
}

type EventStore struct {
	env        *Environment
	log        *zerolog.Logger
	clock      we.Clock
	ids        we.IDGenerator
	marshaller Marshaller
	batchSize  int
	appended   metric.Int64Counter

	lk        sync.RWMutex
	notifiers []Notifier
}

type pendingEvent struct {
	eventType we.EventType
	data      we.Data
}

// Subscribe registers a notifier for appends committed from now on.
func (es *EventStore) Subscribe(notifier Notifier) {
	es.lk.Lock()
	defer es.lk.Unlock()

	es.notifiers = append(es.notifiers, notifier)
}

func (es *EventStore) Append(ctx context.Context, id we.AggregateId, options we.AppendOptions, events ...we.DomainEvent) (we.Sequence, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "append events")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate", id.String()), attribute.Int("count", len(events)))

	if err := id.Validate(); err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, we.ValidationFailed("append", "attempted to append an empty list of events")
	}

	pending := make([]pendingEvent, len(events))
	for index, event := range events {
		data, err := we.MarshalToData(event)
		if err != nil {
			return 0, we.SerializationFailed("append", err)
		}

		pending[index] = pendingEvent{eventType: we.EventTypeOf(event), data: data}
	}

	var last we.Sequence
	err := es.env.Update(ctx, "append", func(tx *bbolt.Tx) error {
		recorded, err := es.write(tx, id, options, pending)
		if err != nil {
			return err
		}

		last = recorded[len(recorded)-1].Sequence
		tx.OnCommit(func() { es.notify(recorded) })

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		es.log.Debug().Err(err).Str("aggregate", id.String()).Msg("append rejected")
		return 0, err
	}

	es.appended.Add(ctx, int64(len(events)))
	es.log.Debug().Str("aggregate", id.String()).Uint64("sequence", uint64(last)).Int("count", len(events)).Msg("appended events")

	return last, nil
}

// write assigns sequences and versions inside the write transaction, so a failed commit
// leaves neither gaps nor duplicates.
func (es *EventStore) write(tx *bbolt.Tx, id we.AggregateId, options we.AppendOptions, pending []pendingEvent) ([]we.RecordedEvent, error) {
	events, err := Bucket(tx, eventsBucket)
	if err != nil {
		return nil, err
	}
	streams, err := Bucket(tx, streamsBucket)
	if err != nil {
		return nil, err
	}
	heads, err := Bucket(tx, headsBucket)
	if err != nil {
		return nil, err
	}

	current, err := head(heads, id)
	if err != nil {
		return nil, err
	}

	if !options.ExpectedVersion.Matches(current) {
		return nil, we.VersionConflict(id, options.ExpectedVersion, current)
	}

	now := es.clock.Now()
	timestamp := we.TimestampFromTime(now)
	recorded := make([]we.RecordedEvent, len(pending))

	for index, p := range pending {
		next, err := events.NextSequence()
		if err != nil {
			return nil, err
		}

		eventID, err := es.ids.NewEventID(now)
		if err != nil {
			return nil, we.SerializationFailed("append", errors.Wrap(err, "generate event id"))
		}

		event := we.RecordedEvent{
			Sequence:    we.Sequence(next),
			AggregateId: id,
			Version:     current + we.Version(index+1),
			EventID:     eventID,
			EventType:   p.eventType,
			Timestamp:   timestamp,
			Metadata:    options.RecordedEventMetadata,
			Data:        p.data,
		}

		value, err := es.marshaller.Marshal(envelopeOf(event))
		if err != nil {
			return nil, we.SerializationFailed("append", err)
		}

		sequence := event.Sequence.Bytes()
		if err := events.Put(sequence, value); err != nil {
			return nil, err
		}
		if err := streams.Put(event.Key().Bytes(), sequence); err != nil {
			return nil, err
		}

		recorded[index] = event
	}

	if err := heads.Put(id.Bytes(), recorded[len(recorded)-1].Version.Bytes()); err != nil {
		return nil, err
	}

	return recorded, nil
}

func head(heads *bbolt.Bucket, id we.AggregateId) (we.Version, error) {
	raw := heads.Get(id.Bytes())
	if raw == nil {
		return we.InitialVersion, nil
	}

	return we.VersionFromBytes(raw)
}

func (es *EventStore) notify(events []we.RecordedEvent) {
	es.lk.RLock()
	defer es.lk.RUnlock()

	for _, notifier := range es.notifiers {
		notifier(events)
	}
}

func (es *EventStore) Events(ctx context.Context, id we.AggregateId) ([]we.RecordedEvent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "get events")
	defer span.End()
	span.SetAttributes(attribute.String("aggregate", id.String()))

	if err := id.Validate(); err != nil {
		return nil, err
	}

	events := []we.RecordedEvent{}
	err := es.env.View(ctx, "get events", func(tx *bbolt.Tx) error {
		loaded, err := es.scanAggregate(tx, id, 0, we.InitialVersion, 0)
		events = append(events, loaded...)
		return err
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

func (es *EventStore) AllEvents(ctx context.Context, from we.Sequence) ([]we.RecordedEvent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "get all events")
	defer span.End()
	span.SetAttributes(attribute.Int64("from", int64(from)))

	events := []we.RecordedEvent{}
	err := es.env.View(ctx, "get all events", func(tx *bbolt.Tx) error {
		loaded, err := es.scanAll(tx, from, 0)
		events = append(events, loaded...)
		return err
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

func (es *EventStore) LatestSequence(ctx context.Context) (we.Sequence, error) {
	var latest we.Sequence
	err := es.env.View(ctx, "latest sequence", func(tx *bbolt.Tx) error {
		events, err := Bucket(tx, eventsBucket)
		if err != nil {
			return err
		}

		latest = we.Sequence(events.Sequence())
		return nil
	})
	if err != nil {
		return 0, err
	}

	return latest, nil
}

// Version returns the aggregate's current version, InitialVersion when it has no events.
func (es *EventStore) Version(ctx context.Context, id we.AggregateId) (we.Version, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}

	var version we.Version
	err := es.env.View(ctx, "aggregate version", func(tx *bbolt.Tx) error {
		heads, err := Bucket(tx, headsBucket)
		if err != nil {
			return err
		}

		version, err = head(heads, id)
		return err
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}

func (es *EventStore) Load(ctx context.Context, id we.AggregateId) (we.Aggregate, error) {
	events, err := es.Events(ctx, id)
	if err != nil {
		return we.Aggregate{}, err
	}

	version := we.InitialVersion
	if len(events) > 0 {
		version = events[len(events)-1].Version
	}

	return we.Aggregate{
		Id:      id,
		Events:  events,
		Version: version,
	}, nil
}

func (es *EventStore) Stream(from we.Sequence) we.EventStream {
	return newEventStream(es, from, nil)
}

func (es *EventStore) AggregateStream(id we.AggregateId, from we.Sequence) we.EventStream {
	return newEventStream(es, from, &id)
}

// scanAll reads events with a sequence of at least from. A limit of 0 reads to the end.
func (es *EventStore) scanAll(tx *bbolt.Tx, from we.Sequence, limit int) ([]we.RecordedEvent, error) {
	events, err := Bucket(tx, eventsBucket)
	if err != nil {
		return nil, err
	}

	var result []we.RecordedEvent
	c := events.Cursor()
	for k, v := c.Seek(from.Bytes()); k != nil; k, v = c.Next() {
		event, err := es.decode(k, v)
		if err != nil {
			return nil, err
		}

		result = append(result, event)
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

// scanAggregate reads the aggregate's events after version `after`, skipping any below
// sequence from. A limit of 0 reads to the end of the stream.
func (es *EventStore) scanAggregate(tx *bbolt.Tx, id we.AggregateId, from we.Sequence, after we.Version, limit int) ([]we.RecordedEvent, error) {
	events, err := Bucket(tx, eventsBucket)
	if err != nil {
		return nil, err
	}
	streams, err := Bucket(tx, streamsBucket)
	if err != nil {
		return nil, err
	}

	var result []we.RecordedEvent
	c := streams.Cursor()
	start := we.EventKey{Aggregate: id, Version: after + 1}.Bytes()
	for k, v := c.Seek(start); k != nil && we.HasAggregatePrefix(k, id); k, v = c.Next() {
		sequence, err := we.SequenceFromBytes(v)
		if err != nil {
			return nil, err
		}

		if sequence < from {
			continue
		}

		key := sequence.Bytes()
		raw := events.Get(key)
		if raw == nil {
			return nil, we.StorageFailed("scan aggregate", errMissingEvent(id, sequence))
		}

		event, err := es.decode(key, raw)
		if err != nil {
			return nil, err
		}

		result = append(result, event)
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, nil
}

func (es *EventStore) decode(key []byte, value []byte) (we.RecordedEvent, error) {
	sequence, err := we.SequenceFromBytes(key)
	if err != nil {
		return we.RecordedEvent{}, err
	}

	var stored envelope
	if err := es.marshaller.Unmarshal(value, &stored); err != nil {
		return we.RecordedEvent{}, we.SerializationFailed("decode event", err)
	}

	return stored.recorded(sequence), nil
}
