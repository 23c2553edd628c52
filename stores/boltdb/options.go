package boltdb

import (
	"github.com/rs/zerolog"

	"github.com/weegigs/wee-ledger-go/we"
)

type EventStoreOption func(*EventStore)

// Notifier receives the events of every committed append. It runs on the committing
// goroutine after the write lock is released and must not block.
type Notifier func(events []we.RecordedEvent)

func WithLogger(log *zerolog.Logger) EventStoreOption {
	return func(store *EventStore) {
		store.log = log
	}
}

func WithClock(clock we.Clock) EventStoreOption {
	return func(store *EventStore) {
		store.clock = clock
	}
}

func WithIdGenerator(generator we.IDGenerator) EventStoreOption {
	return func(store *EventStore) {
		store.ids = generator
	}
}

func WithMarshaller(marshaller Marshaller) EventStoreOption {
	return func(store *EventStore) {
		store.marshaller = marshaller
	}
}

// WithStreamBatchSize sets how many events a stream loads per read transaction.
func WithStreamBatchSize(size int) EventStoreOption {
	return func(store *EventStore) {
		store.batchSize = size
	}
}

func WithNotifier(notifier Notifier) EventStoreOption {
	return func(store *EventStore) {
		store.notifiers = append(store.notifiers, notifier)
	}
}
