package we

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

var SystemClock Clock = ClockFunc(time.Now)

type IDGenerator interface {
	NewEventID(t time.Time) (EventID, error)
}

// UlidGenerator issues lexically sortable event ids. Ids created within the same
// millisecond stay ordered through monotonic entropy.
type UlidGenerator struct {
	lk      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewUlidGenerator() *UlidGenerator {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)

	return &UlidGenerator{
		entropy: entropy,
	}
}

// NewEventID fails when t is outside the range a ULID timestamp can hold.
func (g *UlidGenerator) NewEventID(t time.Time) (EventID, error) {
	g.lk.Lock()
	defer g.lk.Unlock()

	id, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		return "", err
	}

	return EventID(id.String()), nil
}
