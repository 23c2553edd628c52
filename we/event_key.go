package we

import (
	"bytes"
	"encoding/binary"
)

// EventKey addresses one event inside an aggregate stream. Its byte form is
//
//	len(aggregate id) [1] ++ aggregate id ++ big-endian version [8]
//
// so all keys of an aggregate share a prefix and sort by version.
type EventKey struct {
	Aggregate AggregateId
	Version   Version
}

func NewEventKey(id AggregateId, version Version) (EventKey, error) {
	if err := id.Validate(); err != nil {
		return EventKey{}, err
	}

	return EventKey{Aggregate: id, Version: version}, nil
}

func (k EventKey) Bytes() []byte {
	prefix := AggregatePrefix(k.Aggregate)
	b := make([]byte, len(prefix)+8)
	copy(b, prefix)
	binary.BigEndian.PutUint64(b[len(prefix):], uint64(k.Version))
	return b
}

func (k EventKey) String() string {
	return k.Aggregate.String() + ":" + k.Version.String()
}

func EventKeyFromBytes(b []byte) (EventKey, error) {
	if len(b) < 1+8 {
		return EventKey{}, ValidationFailed("event key", "event key too short")
	}

	size := int(b[0])
	if size == 0 || len(b) != 1+size+8 {
		return EventKey{}, ValidationFailed("event key", "event key length does not match its id length")
	}

	return EventKey{
		Aggregate: AggregateId(b[1 : 1+size]),
		Version:   Version(binary.BigEndian.Uint64(b[1+size:])),
	}, nil
}

// AggregatePrefix is the key prefix shared by every event of id. The id must be valid.
func AggregatePrefix(id AggregateId) []byte {
	b := make([]byte, 1+len(id))
	b[0] = byte(len(id))
	copy(b[1:], id)
	return b
}

func HasAggregatePrefix(key []byte, id AggregateId) bool {
	return bytes.HasPrefix(key, AggregatePrefix(id)) && len(key) == 1+len(id)+8
}
