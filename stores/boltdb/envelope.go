package boltdb

import (
	"github.com/goccy/go-json"

	"github.com/weegigs/wee-ledger-go/we"
)

var (
	eventsBucket  = []byte("events")
	streamsBucket = []byte("streams")
	headsBucket   = []byte("heads")
)

// envelope is the stored value of an event. The global sequence is the key and is not
// repeated here.
type envelope struct {
	EventID     we.EventID               `json:"id"`
	EventType   we.EventType             `json:"event_type"`
	AggregateId we.AggregateId           `json:"aggregate_id"`
	Version     we.Version               `json:"version"`
	Timestamp   we.Timestamp             `json:"timestamp"`
	Metadata    we.RecordedEventMetadata `json:"metadata"`
	Encoding    string                   `json:"encoding"`
	Payload     []byte                   `json:"payload"`
}

func envelopeOf(event we.RecordedEvent) envelope {
	return envelope{
		EventID:     event.EventID,
		EventType:   event.EventType,
		AggregateId: event.AggregateId,
		Version:     event.Version,
		Timestamp:   event.Timestamp,
		Metadata:    event.Metadata,
		Encoding:    event.Data.Encoding,
		Payload:     event.Data.Data,
	}
}

func (e envelope) recorded(sequence we.Sequence) we.RecordedEvent {
	return we.RecordedEvent{
		Sequence:    sequence,
		AggregateId: e.AggregateId,
		Version:     e.Version,
		EventID:     e.EventID,
		EventType:   e.EventType,
		Timestamp:   e.Timestamp,
		Metadata:    e.Metadata,
		Data:        we.Data{Encoding: e.Encoding, Data: e.Payload},
	}
}

type Marshaller interface {
	Unmarshal(data []byte, v any) error
	Marshal(v any) ([]byte, error)
}

type JSONMarshaller struct{}

func (JSONMarshaller) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONMarshaller) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
