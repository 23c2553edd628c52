package journal

import "github.com/weegigs/wee-ledger-go/we"

type Status string

const (
	Draft    Status = "draft"
	Approved Status = "approved"
	Rejected Status = "rejected"
	Posted   Status = "posted"
)

// Line is one side of a posting. Positive amounts are debits, negative amounts credits,
// in minor currency units.
type Line struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type JournalEntry struct {
	Description string `json:"description"`
	Lines       []Line `json:"lines"`
	Status      Status `json:"status"`
	RecordedBy  string `json:"recorded_by"`
	ApprovedBy  string `json:"approved_by,omitempty"`
	PostedBy    string `json:"posted_by,omitempty"`
}

func (JournalEntry) EntityType() we.EntityType {
	return "journal-entry"
}

// Total is the sum of the debit lines.
func (e *JournalEntry) Total() int64 {
	return debits(e.Lines)
}

func debits(lines []Line) int64 {
	var total int64
	for _, line := range lines {
		if line.Amount > 0 {
			total += line.Amount
		}
	}
	return total
}

func balanced(lines []Line) bool {
	var sum int64
	for _, line := range lines {
		sum += line.Amount
	}
	return sum == 0
}
