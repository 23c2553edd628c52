package we

import "fmt"

// MaxAggregateIdLength is the longest identifier an EventKey can carry.
const MaxAggregateIdLength = 255

// AggregateId identifies an event stream. Identifiers are stored verbatim and are never
// truncated or padded, so anything longer than MaxAggregateIdLength is rejected.
type AggregateId string

func (id AggregateId) String() string {
	return string(id)
}

func (id AggregateId) Bytes() []byte {
	return []byte(id)
}

func (id AggregateId) Validate() error {
	if len(id) == 0 {
		return ValidationFailed("aggregate id", "aggregate id must not be empty")
	}

	if len(id) > MaxAggregateIdLength {
		return ValidationFailed(
			"aggregate id",
			fmt.Sprintf("aggregate id is %d bytes, limit is %d", len(id), MaxAggregateIdLength),
		)
	}

	return nil
}

type Aggregate struct {
	Id      AggregateId     `json:"id"`
	Events  []RecordedEvent `json:"events,omitempty"`
	Version Version         `json:"version"`
}

func (a Aggregate) LastSequence() Sequence {
	if len(a.Events) == 0 {
		return 0
	}

	return a.Events[len(a.Events)-1].Sequence
}
