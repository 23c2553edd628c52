package we

type EventID string

func (id EventID) String() string {
	return string(id)
}

type EventType string

func (et EventType) String() string {
	return string(et)
}

type CorrelationID string

func (id CorrelationID) String() string {
	return string(id)
}

type Data struct {
	Encoding string `json:"encoding"`
	Data     []byte `json:"data"`
}

type DomainEvent any

type EventTyped interface {
	EventType() EventType
}

func EventTypeOf(event DomainEvent) EventType {
	if typed, ok := event.(EventTyped); ok {
		return typed.EventType()
	}

	return EventType(NameOf(event))
}

type RecordedEventMetadata struct {
	CausationId   EventID       `json:"causationId,omitempty"`
	CorrelationId CorrelationID `json:"correlationId,omitempty"`
}

type RecordedEvent struct {
	Sequence    Sequence              `json:"sequence"`
	AggregateId AggregateId           `json:"aggregate"`
	Version     Version               `json:"version"`
	EventID     EventID               `json:"id"`
	EventType   EventType             `json:"type"`
	Timestamp   Timestamp             `json:"timestamp"`
	Metadata    RecordedEventMetadata `json:"metadata"`
	Data        Data                  `json:"data"`
}

func (e *RecordedEvent) Key() EventKey {
	return EventKey{Aggregate: e.AggregateId, Version: e.Version}
}

func (e *RecordedEvent) Decode(value any) error {
	return UnmarshalFromData(e.Data, value)
}
