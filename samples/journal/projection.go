package journal

import (
	"github.com/goccy/go-json"

	"github.com/weegigs/wee-ledger-go/projections"
	"github.com/weegigs/wee-ledger-go/we"
)

const (
	ProjectionName    = "journal"
	ProjectionVersion = 1
)

// Summary is the read model kept under SummaryKey for every entry.
type Summary struct {
	Id          we.AggregateId `json:"id"`
	Description string         `json:"description"`
	Total       int64          `json:"total"`
	Status      Status         `json:"status"`
	Version     we.Version     `json:"version"`
}

func SummaryKey(id we.AggregateId) string {
	return "journal:" + id.String()
}

func StatusKey(id we.AggregateId) string {
	return "journal:" + id.String() + ":status"
}

// PostingKey addresses the amount an entry posted to an account, so "ledger:{account}:"
// scans list every posting to it.
func PostingKey(account string, id we.AggregateId) string {
	return "ledger:" + account + ":" + id.String()
}

// Strategy accepts every journal event.
func Strategy(batch int) projections.Strategy {
	return projections.EventTypes(batch, RecordedEvent, ApprovedEvent, RejectedEvent, PostedEvent)
}

// Mapper derives read models from single events. Each key depends only on its event,
// so replaying a batch rewrites the same values.
func Mapper(event we.RecordedEvent) ([]projections.Update, error) {
	id := event.AggregateId

	switch event.EventType {
	case RecordedEvent:
		var recorded EntryRecorded
		if err := event.Decode(&recorded); err != nil {
			return nil, err
		}

		summary := Summary{
			Id:          id,
			Description: recorded.Description,
			Total:       debits(recorded.Lines),
			Status:      Draft,
			Version:     event.Version,
		}
		return puts(
			put(SummaryKey(id), summary),
			put(StatusKey(id), Draft),
		)

	case ApprovedEvent:
		return puts(put(StatusKey(id), Approved))

	case RejectedEvent:
		return puts(put(StatusKey(id), Rejected))

	case PostedEvent:
		var posted EntryPosted
		if err := event.Decode(&posted); err != nil {
			return nil, err
		}

		amounts := map[string]int64{}
		for _, line := range posted.Lines {
			amounts[line.Account] += line.Amount
		}

		writes := []write{put(StatusKey(id), Posted)}
		for account, amount := range amounts {
			writes = append(writes, put(PostingKey(account, id), amount))
		}
		return puts(writes...)
	}

	return nil, nil
}

type write struct {
	key   string
	value any
}

func put(key string, value any) write {
	return write{key: key, value: value}
}

func puts(writes ...write) ([]projections.Update, error) {
	updates := make([]projections.Update, 0, len(writes))
	for _, w := range writes {
		value, err := json.Marshal(w.value)
		if err != nil {
			return nil, we.SerializationFailed("journal projection", err)
		}
		updates = append(updates, projections.Update{Key: w.key, Value: value})
	}
	return updates, nil
}
