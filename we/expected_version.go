package we

import "fmt"

// ExpectedVersion is the optimistic concurrency token passed with an append.
type ExpectedVersion struct {
	exact   bool
	version Version
}

// AnyVersion appends without checking the aggregate's current version.
var AnyVersion = ExpectedVersion{}

// NoStream requires the aggregate to have no events.
var NoStream = ExactVersion(InitialVersion)

func ExactVersion(version Version) ExpectedVersion {
	return ExpectedVersion{exact: true, version: version}
}

func (e ExpectedVersion) IsAny() bool {
	return !e.exact
}

func (e ExpectedVersion) Version() (Version, bool) {
	return e.version, e.exact
}

func (e ExpectedVersion) Matches(current Version) bool {
	return !e.exact || e.version == current
}

func (e ExpectedVersion) String() string {
	if !e.exact {
		return "any"
	}

	return fmt.Sprintf("exact(%d)", e.version)
}
