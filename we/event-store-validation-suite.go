package we

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// NewEventStoreValidationSuite checks the behaviour every EventStore implementation shares.
// The store may already hold events; the suite only relies on aggregates it creates.
func NewEventStoreValidationSuite(ctx context.Context, store EventStore) *EventStoreValidationSuite {
	faker := faker.New()
	return &EventStoreValidationSuite{
		store: store,
		ctx:   ctx,
		faker: faker,
	}
}

type EventStoreValidationSuite struct {
	store EventStore
	ctx   context.Context
	faker faker.Faker
}

type StoreValidationEvent struct {
	TestStringValue string `json:"test_string_value"`
	TestIntValue    int    `json:"test_int_value"`
}

func (s *EventStoreValidationSuite) Run(t *testing.T) {
	t.Run("loads an initial version", s.LoadInitial)
	t.Run("loads a version with events", s.LoadsVersionWithEvents)
	t.Run("appends single event", s.AppendsSingleEvent)
	t.Run("appends multiple events in a single transaction", s.AppendsMultipleEvents)
	t.Run("rejects an empty append", s.RejectsEmptyAppend)
	t.Run("returns a version conflict on a new stream", s.VersionConflictOnNoStream)
	t.Run("returns a version conflict on subsequent version", s.VersionConflictOnSubsequentVersion)
	t.Run("keeps global order across aggregates", s.GlobalOrder)
	t.Run("streams aggregate events from a sequence", s.StreamsAggregateEvents)
	t.Run("supports causation id", s.Causation)
}

func (s *EventStoreValidationSuite) MakeTestAggregateId() AggregateId {
	return AggregateId("go-test." + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

func (s *EventStoreValidationSuite) MakeTestEvent() StoreValidationEvent {
	return StoreValidationEvent{
		TestStringValue: s.faker.Lorem().Sentence(10),
		TestIntValue:    s.faker.Int(),
	}
}

func (s *EventStoreValidationSuite) MakeTestEvents(count int) []DomainEvent {
	events := make([]DomainEvent, count)
	for i := 0; i < count; i++ {
		events[i] = s.MakeTestEvent()
	}

	return events
}

func (s *EventStoreValidationSuite) LoadInitial(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()
	aggregate, err := s.store.Load(s.ctx, aggregateId)
	require.NoError(t, err)

	assert.Empty(t, aggregate.Events)
	assert.Equal(t, InitialVersion, aggregate.Version)
	assert.Equal(t, aggregateId, aggregate.Id)

	events, err := s.store.Events(s.ctx, aggregateId)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func (s *EventStoreValidationSuite) AppendsSingleEvent(t *testing.T) {
	event := s.MakeTestEvent()

	aggregateId := s.MakeTestAggregateId()
	sequence, err := s.store.Append(s.ctx, aggregateId, Options(), event)
	require.NoError(t, err)

	latest, err := s.store.LatestSequence(s.ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, sequence)

	events, err := s.store.Events(s.ctx, aggregateId)
	require.NoError(t, err)
	require.Len(t, events, 1)

	var decoded StoreValidationEvent
	require.NoError(t, events[0].Decode(&decoded))
	assert.Equal(t, event, decoded)
	assert.Equal(t, Version(1), events[0].Version)
	assert.Equal(t, sequence, events[0].Sequence)
	assert.NotEmpty(t, events[0].EventID)
}

func (s *EventStoreValidationSuite) AppendsMultipleEvents(t *testing.T) {
	events := s.MakeTestEvents(17)

	aggregateId := s.MakeTestAggregateId()
	last, err := s.store.Append(s.ctx, aggregateId, Options(), events...)
	require.NoError(t, err)

	recorded, err := s.store.Events(s.ctx, aggregateId)
	require.NoError(t, err)
	require.Len(t, recorded, 17)

	for i, event := range recorded {
		assert.Equal(t, Version(i+1), event.Version)
		if i > 0 {
			assert.Greater(t, event.Sequence, recorded[i-1].Sequence)
		}
	}
	assert.Equal(t, last, recorded[16].Sequence)
}

func (s *EventStoreValidationSuite) RejectsEmptyAppend(t *testing.T) {
	_, err := s.store.Append(s.ctx, s.MakeTestAggregateId(), Options())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func (s *EventStoreValidationSuite) LoadsVersionWithEvents(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()
	event := s.MakeTestEvent()

	_, err := s.store.Append(s.ctx, aggregateId, Options(), event)
	require.NoError(t, err)

	aggregate, err := s.store.Load(s.ctx, aggregateId)
	require.NoError(t, err)

	assert.NotEmpty(t, aggregate.Events)
	assert.Equal(t, Version(1), aggregate.Version)
	assert.Equal(t, aggregateId, aggregate.Id)
}

func (s *EventStoreValidationSuite) Last(id AggregateId) (*RecordedEvent, error) {
	loaded, err := s.store.Load(s.ctx, id)
	if err != nil {
		return nil, err
	}

	length := len(loaded.Events)
	if length == 0 {
		return nil, ValidationFailed("last", "no events found")
	}

	return &loaded.Events[length-1], nil
}

func (s *EventStoreValidationSuite) VersionConflictOnNoStream(t *testing.T) {
	event := s.MakeTestEvent()

	aggregateId := s.MakeTestAggregateId()
	_, err := s.store.Append(s.ctx, aggregateId, Options(WithExpectedVersion(NoStream)), event)
	require.NoError(t, err)

	_, err = s.store.Append(s.ctx, aggregateId, Options(WithExpectedVersion(NoStream)), event)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func (s *EventStoreValidationSuite) VersionConflictOnSubsequentVersion(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()

	_, err := s.store.Append(s.ctx, aggregateId, Options(), s.MakeTestEvents(3)...)
	require.NoError(t, err)

	_, err = s.store.Append(s.ctx, aggregateId, Options(WithExpectedVersion(ExactVersion(2))), s.MakeTestEvent())
	assert.ErrorIs(t, err, ErrVersionConflict)

	var conflict *VersionConflictError
	if assert.ErrorAs(t, err, &conflict) {
		assert.Equal(t, Version(3), conflict.Actual)
	}

	_, err = s.store.Append(s.ctx, aggregateId, Options(WithExpectedVersion(ExactVersion(3))), s.MakeTestEvent())
	assert.NoError(t, err)

	events, err := s.store.Events(s.ctx, aggregateId)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func (s *EventStoreValidationSuite) GlobalOrder(t *testing.T) {
	start, err := s.store.LatestSequence(s.ctx)
	require.NoError(t, err)

	first := s.MakeTestAggregateId()
	second := s.MakeTestAggregateId()
	for i := 0; i < 3; i++ {
		_, err := s.store.Append(s.ctx, first, Options(), s.MakeTestEvent())
		require.NoError(t, err)
		_, err = s.store.Append(s.ctx, second, Options(), s.MakeTestEvent())
		require.NoError(t, err)
	}

	events, err := s.store.AllEvents(s.ctx, start.Next())
	require.NoError(t, err)
	require.Len(t, events, 6)

	for i, event := range events {
		assert.Equal(t, start+Sequence(i+1), event.Sequence)
	}
}

func (s *EventStoreValidationSuite) StreamsAggregateEvents(t *testing.T) {
	aggregateId := s.MakeTestAggregateId()
	_, err := s.store.Append(s.ctx, aggregateId, Options(), s.MakeTestEvents(5)...)
	require.NoError(t, err)

	recorded, err := s.store.Events(s.ctx, aggregateId)
	require.NoError(t, err)

	stream := s.store.AggregateStream(aggregateId, recorded[2].Sequence)
	var streamed []RecordedEvent
	for stream.Next(s.ctx) {
		streamed = append(streamed, stream.Event())
	}
	require.NoError(t, stream.Err())

	assert.Equal(t, recorded[2:], streamed)
}

func (s *EventStoreValidationSuite) Causation(t *testing.T) {
	event := s.MakeTestEvent()

	aggregateId := s.MakeTestAggregateId()
	_, err := s.store.Append(s.ctx, aggregateId, Options(), event)
	require.NoError(t, err)

	first, err := s.Last(aggregateId)
	require.NoError(t, err)

	correlationId := CorrelationID(strings.Join([]string{"event/", first.EventID.String()}, ""))

	_, err = s.store.Append(
		s.ctx,
		aggregateId,
		Options(WithCausationId(correlationId, first.EventID)),
		event,
	)
	require.NoError(t, err)

	second, err := s.Last(aggregateId)
	require.NoError(t, err)

	assert.Equal(t, correlationId, second.Metadata.CorrelationId)
	assert.Equal(t, first.EventID, second.Metadata.CausationId)
}
