package projections

import (
	"github.com/goccy/go-json"

	"github.com/weegigs/wee-ledger-go/we"
)

// Mapper turns an accepted event into read-model writes. Writes must be idempotent: a
// batch may be applied again after a crash before its checkpoint committed.
type Mapper func(event we.RecordedEvent) ([]Update, error)

// DefaultMapper stores each event as JSON under "{aggregate}:{version}".
func DefaultMapper(event we.RecordedEvent) ([]Update, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, we.SerializationFailed("map event", err)
	}

	return []Update{{Key: event.Key().String(), Value: value}}, nil
}
