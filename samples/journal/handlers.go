package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/weegigs/wee-ledger-go/we"
)

func CommandHandlers() we.CommandHandlers[JournalEntry] {
	return we.CommandHandlers[JournalEntry]{
		RecordCmd:  record(),
		ApproveCmd: approve(),
		RejectCmd:  reject(),
		PostCmd:    post(),
	}
}

func rejectCommand(cmd we.CommandName, format string, args ...any) error {
	return we.ValidationFailed(string(cmd), fmt.Sprintf(format, args...))
}

// record creates an entry or replaces a draft or rejected one.
func record() we.CommandHandler[JournalEntry] {
	var handler we.CommandHandlerFunction[JournalEntry, Record] = func(ctx context.Context, cmd Record, state we.Entity[JournalEntry], publish we.EventAppender) error {
		if state.Initialized() && state.State.Status != Draft && state.State.Status != Rejected {
			return rejectCommand(RecordCmd, "entry %s is %s", state.Aggregate, state.State.Status)
		}
		if strings.TrimSpace(cmd.By) == "" {
			return rejectCommand(RecordCmd, "recorder is required")
		}
		if len(cmd.Lines) < 2 {
			return rejectCommand(RecordCmd, "an entry needs at least two lines")
		}
		for _, line := range cmd.Lines {
			if line.Account == "" || line.Amount == 0 {
				return rejectCommand(RecordCmd, "every line needs an account and a non-zero amount")
			}
		}
		if !balanced(cmd.Lines) {
			return rejectCommand(RecordCmd, "debits and credits do not balance")
		}

		_, err := publish(ctx, state.Aggregate, we.Options(), EntryRecorded{Description: cmd.Description, Lines: cmd.Lines, By: cmd.By})
		return err
	}

	return handler
}

func approve() we.CommandHandler[JournalEntry] {
	var handler we.CommandHandlerFunction[JournalEntry, Approve] = func(ctx context.Context, cmd Approve, state we.Entity[JournalEntry], publish we.EventAppender) error {
		if !state.Initialized() || state.State.Status != Draft {
			return rejectCommand(ApproveCmd, "only draft entries can be approved")
		}
		if cmd.By == "" || cmd.By == state.State.RecordedBy {
			return rejectCommand(ApproveCmd, "an entry must be approved by someone other than its recorder")
		}

		_, err := publish(ctx, state.Aggregate, we.Options(), EntryApproved{By: cmd.By})
		return err
	}

	return handler
}

func reject() we.CommandHandler[JournalEntry] {
	var handler we.CommandHandlerFunction[JournalEntry, Reject] = func(ctx context.Context, cmd Reject, state we.Entity[JournalEntry], publish we.EventAppender) error {
		if !state.Initialized() || state.State.Status != Draft {
			return rejectCommand(RejectCmd, "only draft entries can be rejected")
		}

		_, err := publish(ctx, state.Aggregate, we.Options(), EntryRejected{By: cmd.By, Reason: cmd.Reason})
		return err
	}

	return handler
}

func post() we.CommandHandler[JournalEntry] {
	var handler we.CommandHandlerFunction[JournalEntry, Post] = func(ctx context.Context, cmd Post, state we.Entity[JournalEntry], publish we.EventAppender) error {
		if !state.Initialized() || state.State.Status != Approved {
			return rejectCommand(PostCmd, "only approved entries can be posted")
		}

		_, err := publish(ctx, state.Aggregate, we.Options(), EntryPosted{Lines: state.State.Lines, By: cmd.By})
		return err
	}

	return handler
}
