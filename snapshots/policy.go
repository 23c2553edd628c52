package snapshots

import (
	"time"

	"github.com/weegigs/wee-ledger-go/we"
)

// Policy decides when a fresh snapshot is worth taking. It is a pure function of the
// number of events folded since the last snapshot and the time that snapshot was taken;
// a zero time means there is none.
type Policy interface {
	ShouldSnapshot(eventsSinceLast uint64, lastSnapshot time.Time) bool
}

type PolicyFunc func(eventsSinceLast uint64, lastSnapshot time.Time) bool

func (f PolicyFunc) ShouldSnapshot(eventsSinceLast uint64, lastSnapshot time.Time) bool {
	return f(eventsSinceLast, lastSnapshot)
}

// EveryNEvents snapshots once n or more events have been folded since the last snapshot.
func EveryNEvents(n uint64) Policy {
	return PolicyFunc(func(eventsSinceLast uint64, _ time.Time) bool {
		return n > 0 && eventsSinceLast >= n
	})
}

// EveryInterval snapshots when there is no snapshot yet or the last one is older than d.
func EveryInterval(d time.Duration, clock we.Clock) Policy {
	if clock == nil {
		clock = we.SystemClock
	}

	return PolicyFunc(func(_ uint64, lastSnapshot time.Time) bool {
		if lastSnapshot.IsZero() {
			return true
		}

		return clock.Now().Sub(lastSnapshot) >= d
	})
}

func Never() Policy {
	return PolicyFunc(func(uint64, time.Time) bool {
		return false
	})
}

func AnyOf(policies ...Policy) Policy {
	return PolicyFunc(func(eventsSinceLast uint64, lastSnapshot time.Time) bool {
		for _, policy := range policies {
			if policy.ShouldSnapshot(eventsSinceLast, lastSnapshot) {
				return true
			}
		}
		return false
	})
}
