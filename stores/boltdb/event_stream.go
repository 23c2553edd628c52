package boltdb

import (
	"context"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/weegigs/wee-ledger-go/we"
)

var _ we.EventStream = (*EventStream)(nil)

// EventStream reads the log in batches, each from a fresh read transaction, so no
// transaction stays open while the caller works through the buffer. It is single pass:
// once Next returns false the stream is exhausted.
type EventStream struct {
	store     *EventStore
	aggregate *we.AggregateId
	from      we.Sequence
	next      we.Sequence
	after     we.Version

	buffer  []we.RecordedEvent
	current we.RecordedEvent
	err     error
	done    bool
}

func newEventStream(store *EventStore, from we.Sequence, aggregate *we.AggregateId) *EventStream {
	return &EventStream{
		store:     store,
		aggregate: aggregate,
		from:      from,
		next:      from,
	}
}

func (s *EventStream) Next(ctx context.Context) bool {
	if len(s.buffer) == 0 {
		if s.done {
			return false
		}

		if err := s.fill(ctx); err != nil {
			s.err = err
			s.done = true
			return false
		}

		if len(s.buffer) == 0 {
			s.done = true
			return false
		}
	}

	s.current = s.buffer[0]
	s.buffer = s.buffer[1:]

	return true
}

func (s *EventStream) Event() we.RecordedEvent {
	return s.current
}

func (s *EventStream) Err() error {
	return s.err
}

func (s *EventStream) fill(ctx context.Context) error {
	if s.aggregate != nil {
		if err := s.aggregate.Validate(); err != nil {
			return err
		}
	}

	var batch []we.RecordedEvent
	err := s.store.env.View(ctx, "stream events", func(tx *bbolt.Tx) error {
		var err error
		if s.aggregate == nil {
			batch, err = s.store.scanAll(tx, s.next, s.store.batchSize)
		} else {
			batch, err = s.store.scanAggregate(tx, *s.aggregate, s.from, s.after, s.store.batchSize)
		}
		return err
	})
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		last := batch[len(batch)-1]
		s.next = last.Sequence.Next()
		s.after = last.Version
	}
	s.buffer = batch

	return nil
}

func errMissingEvent(id we.AggregateId, sequence we.Sequence) error {
	return errors.Errorf("stream index of %s points at missing event %d", id, sequence)
}
