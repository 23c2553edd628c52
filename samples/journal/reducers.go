package journal

import "github.com/weegigs/wee-ledger-go/we"

func Reducers() we.Reducers[JournalEntry] {
	return we.Reducers[JournalEntry]{
		RecordedEvent: recorded(),
		ApprovedEvent: approved(),
		RejectedEvent: rejected(),
		PostedEvent:   posted(),
	}
}

func recorded() we.Reducer[JournalEntry] {
	var reducer we.ReducerFunction[JournalEntry, EntryRecorded] = func(entry *JournalEntry, evt *EntryRecorded) error {
		entry.Description = evt.Description
		entry.Lines = evt.Lines
		entry.RecordedBy = evt.By
		entry.ApprovedBy = ""
		entry.Status = Draft
		return nil
	}

	return reducer
}

func approved() we.Reducer[JournalEntry] {
	var reducer we.ReducerFunction[JournalEntry, EntryApproved] = func(entry *JournalEntry, evt *EntryApproved) error {
		entry.ApprovedBy = evt.By
		entry.Status = Approved
		return nil
	}

	return reducer
}

func rejected() we.Reducer[JournalEntry] {
	var reducer we.ReducerFunction[JournalEntry, EntryRejected] = func(entry *JournalEntry, evt *EntryRejected) error {
		entry.Status = Rejected
		return nil
	}

	return reducer
}

func posted() we.Reducer[JournalEntry] {
	var reducer we.ReducerFunction[JournalEntry, EntryPosted] = func(entry *JournalEntry, evt *EntryPosted) error {
		entry.PostedBy = evt.By
		entry.Status = Posted
		return nil
	}

	return reducer
}
