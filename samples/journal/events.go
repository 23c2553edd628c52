package journal

import "github.com/weegigs/wee-ledger-go/we"

var (
	RecordedEvent = we.EventType("journal:recorded")
	ApprovedEvent = we.EventType("journal:approved")
	RejectedEvent = we.EventType("journal:rejected")
	PostedEvent   = we.EventType("journal:posted")
)

type EntryRecorded struct {
	Description string `json:"description"`
	Lines       []Line `json:"lines"`
	By          string `json:"by"`
}

func (EntryRecorded) EventType() we.EventType {
	return RecordedEvent
}

type EntryApproved struct {
	By string `json:"by"`
}

func (EntryApproved) EventType() we.EventType {
	return ApprovedEvent
}

type EntryRejected struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
}

func (EntryRejected) EventType() we.EventType {
	return RejectedEvent
}

// EntryPosted carries the lines so ledger read models can be built from it alone.
type EntryPosted struct {
	Lines []Line `json:"lines"`
	By    string `json:"by"`
}

func (EntryPosted) EventType() we.EventType {
	return PostedEvent
}
