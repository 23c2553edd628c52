package projections

import (
	"github.com/weegigs/wee-ledger-go/we"
)

const DefaultBatchSize = 100

// Strategy selects the events a projection cares about and how many of them to commit
// per batch.
type Strategy interface {
	ShouldUpdate(event we.RecordedEvent) bool
	BatchSize() int
}

type strategy struct {
	batch  int
	filter func(event we.RecordedEvent) bool
}

func (s strategy) ShouldUpdate(event we.RecordedEvent) bool {
	return s.filter(event)
}

func (s strategy) BatchSize() int {
	if s.batch <= 0 {
		return DefaultBatchSize
	}
	return s.batch
}

func AcceptAll(batch int) Strategy {
	return strategy{batch: batch, filter: func(we.RecordedEvent) bool { return true }}
}

func EventTypes(batch int, types ...we.EventType) Strategy {
	accepted := make(map[we.EventType]struct{}, len(types))
	for _, t := range types {
		accepted[t] = struct{}{}
	}

	return strategy{batch: batch, filter: func(event we.RecordedEvent) bool {
		_, ok := accepted[event.EventType]
		return ok
	}}
}

func Aggregates(batch int, ids ...we.AggregateId) Strategy {
	accepted := make(map[we.AggregateId]struct{}, len(ids))
	for _, id := range ids {
		accepted[id] = struct{}{}
	}

	return strategy{batch: batch, filter: func(event we.RecordedEvent) bool {
		_, ok := accepted[event.AggregateId]
		return ok
	}}
}

// StrategyFunc adapts a predicate into a Strategy.
func StrategyFunc(batch int, filter func(event we.RecordedEvent) bool) Strategy {
	return strategy{batch: batch, filter: filter}
}
