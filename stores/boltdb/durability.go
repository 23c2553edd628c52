package boltdb

import (
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
)

// Durability trades commit latency against what survives a crash.
type Durability int

const (
	// MaxDurability fsyncs data and freelist on every commit.
	MaxDurability Durability = iota
	// Balanced skips the freelist sync; the freelist is rebuilt on open.
	Balanced
	// MaxPerformance skips fsync entirely. Recent commits can be lost on power failure.
	MaxPerformance
)

func (d Durability) String() string {
	switch d {
	case MaxDurability:
		return "max-durability"
	case Balanced:
		return "balanced"
	case MaxPerformance:
		return "max-performance"
	default:
		return fmt.Sprintf("durability(%d)", int(d))
	}
}

func ParseDurability(value string) (Durability, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "max-durability":
		return MaxDurability, nil
	case "balanced":
		return Balanced, nil
	case "max-performance":
		return MaxPerformance, nil
	default:
		return MaxDurability, fmt.Errorf("unknown durability %q", value)
	}
}

func (d Durability) apply(options *bbolt.Options) {
	options.NoFreelistSync = d != MaxDurability
}

func (d Durability) applyDB(db *bbolt.DB) {
	db.NoSync = d == MaxPerformance
}
