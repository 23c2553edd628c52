package we

import (
	"encoding/binary"
	"strconv"
)

// Sequence is the store-wide position of an event. The first event is 1; 0 means
// nothing has been written.
type Sequence uint64

func (s Sequence) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

func (s Sequence) Next() Sequence {
	return s + 1
}

// Bytes encodes the sequence as 8 big-endian bytes, the global-order key of the log.
func (s Sequence) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b
}

func SequenceFromBytes(b []byte) (Sequence, error) {
	if len(b) != 8 {
		return 0, ValidationFailed("sequence", "sequence must be 8 bytes")
	}

	return Sequence(binary.BigEndian.Uint64(b)), nil
}

// Version is the position of an event within its aggregate, starting at 1.
type Version uint64

const InitialVersion = Version(0)

func (v Version) String() string {
	return strconv.FormatUint(uint64(v), 10)
}

func (v Version) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func VersionFromBytes(b []byte) (Version, error) {
	if len(b) != 8 {
		return 0, ValidationFailed("version", "version must be 8 bytes")
	}

	return Version(binary.BigEndian.Uint64(b)), nil
}
