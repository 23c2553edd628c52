package journal

import "github.com/weegigs/wee-ledger-go/we"

const (
	RecordCmd  we.CommandName = "journal:record"
	ApproveCmd we.CommandName = "journal:approve"
	RejectCmd  we.CommandName = "journal:reject"
	PostCmd    we.CommandName = "journal:post"
)

type Record struct {
	Description string `json:"description"`
	Lines       []Line `json:"lines"`
	By          string `json:"by"`
}

type Approve struct {
	By string `json:"by"`
}

type Reject struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
}

type Post struct {
	By string `json:"by"`
}

func (Record) TypeName() string {
	return string(RecordCmd)
}

func (Approve) TypeName() string {
	return string(ApproveCmd)
}

func (Reject) TypeName() string {
	return string(RejectCmd)
}

func (Post) TypeName() string {
	return string(PostCmd)
}
