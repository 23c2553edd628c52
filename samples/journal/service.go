package journal

import (
	"github.com/google/wire"

	"github.com/weegigs/wee-ledger-go/we"
)

type Service = we.EntityService[JournalEntry]

func Renderer() *we.Renderer[JournalEntry] {
	return &we.Renderer[JournalEntry]{Reducers: Reducers()}
}

// Loader renders entries from events, starting from a snapshot when snapshots is not nil.
func Loader(store we.EventStore, snapshots we.SnapshotStore) *we.EntityLoader[JournalEntry] {
	return &we.EntityLoader[JournalEntry]{Store: store, Renderer: Renderer(), Snapshots: snapshots}
}

func NewService(store we.EventStore, snapshots we.SnapshotStore) Service {
	dispatcher := we.RoutedDispatcher[JournalEntry]{Handlers: CommandHandlers(), Publish: store.Append}
	return we.NewEntityService(Loader(store, snapshots), &dispatcher)
}

var Live = wire.NewSet(NewService)
