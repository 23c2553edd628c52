package journal_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/projections"
	"github.com/weegigs/wee-ledger-go/samples/journal"
	"github.com/weegigs/wee-ledger-go/snapshots"
	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

func createId() we.AggregateId {
	return we.AggregateId("JE-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

type test = func(t *testing.T)

var rent = journal.Record{
	Description: "October rent",
	Lines: []journal.Line{
		{Account: "rent", Amount: 1_200_00},
		{Account: "bank", Amount: -1_200_00},
	},
	By: "ana",
}

func loadsInitialEntry(service journal.Service) test {
	return func(t *testing.T) {
		entity, err := service.Load(context.Background(), createId())
		require.NoError(t, err)

		assert.Equal(t, we.InitialVersion, entity.Version)
		assert.False(t, entity.Initialized())
	}
}

func recordsAndPosts(service journal.Service) test {
	return func(t *testing.T) {
		ctx := context.Background()
		id := createId()

		entity, err := service.Execute(ctx, id, rent)
		require.NoError(t, err)
		assert.Equal(t, journal.Draft, entity.State.Status)
		assert.Equal(t, int64(1_200_00), entity.State.Total())

		entity, err = service.Execute(ctx, id, journal.Approve{By: "bo"})
		require.NoError(t, err)
		assert.Equal(t, journal.Approved, entity.State.Status)

		entity, err = service.Execute(ctx, id, journal.Post{By: "bo"})
		require.NoError(t, err)
		assert.Equal(t, journal.Posted, entity.State.Status)
		assert.Equal(t, we.Version(3), entity.Version)
		assert.Equal(t, we.EntityType("journal-entry"), entity.Type)
	}
}

func rejectsUnbalancedEntries(service journal.Service) test {
	return func(t *testing.T) {
		unbalanced := journal.Record{
			Description: "typo",
			Lines:       []journal.Line{{Account: "rent", Amount: 100}, {Account: "bank", Amount: -10}},
			By:          "ana",
		}

		_, err := service.Execute(context.Background(), createId(), unbalanced)
		assert.ErrorIs(t, err, we.ErrValidationFailed)
	}
}

func enforcesTheWorkflow(service journal.Service) test {
	return func(t *testing.T) {
		ctx := context.Background()
		id := createId()

		_, err := service.Execute(ctx, id, journal.Post{By: "bo"})
		assert.ErrorIs(t, err, we.ErrValidationFailed)

		_, err = service.Execute(ctx, id, rent)
		require.NoError(t, err)

		_, err = service.Execute(ctx, id, journal.Approve{By: "ana"})
		assert.ErrorIs(t, err, we.ErrValidationFailed, "recorder cannot approve")

		entity, err := service.Execute(ctx, id, journal.Reject{By: "bo", Reason: "wrong period"})
		require.NoError(t, err)
		assert.Equal(t, journal.Rejected, entity.State.Status)

		entity, err = service.Execute(ctx, id, rent)
		require.NoError(t, err)
		assert.Equal(t, journal.Draft, entity.State.Status)
		assert.Equal(t, we.Version(3), entity.Version)
	}
}

func TestJournalService(t *testing.T) {
	store, env := boltdb.NewTestStore(t)
	db, err := snapshots.NewSnapshotDb(env, snapshots.EveryNEvents(2))
	require.NoError(t, err)

	for name, service := range map[string]journal.Service{
		"replay":    journal.NewService(store, nil),
		"snapshots": journal.NewService(store, db),
	} {
		t.Run(name, func(t *testing.T) {
			t.Run("loads initial entry", loadsInitialEntry(service))
			t.Run("records and posts", recordsAndPosts(service))
			t.Run("rejects unbalanced entries", rejectsUnbalancedEntries(service))
			t.Run("enforces the workflow", enforcesTheWorkflow(service))
		})
	}
}

func TestExecuteWithoutConflictRetries(t *testing.T) {
	ctx := context.Background()
	store, _ := boltdb.NewTestStore(t)

	dispatcher := we.RoutedDispatcher[journal.JournalEntry]{Handlers: journal.CommandHandlers(), Publish: store.Append}
	var service journal.Service = we.NewEntityService(journal.Loader(store, nil), &dispatcher, we.WithConflictRetries(0, 0))

	id := createId()
	entity, err := service.Execute(ctx, id, rent)
	require.NoError(t, err)
	assert.True(t, entity.Initialized())
	assert.Equal(t, id, entity.Aggregate)
	assert.Equal(t, we.Version(1), entity.Version)

	events, err := store.Events(ctx, id)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestJournalProjection(t *testing.T) {
	ctx := context.Background()
	store, env := boltdb.NewTestStore(t)
	service := journal.NewService(store, nil)

	id := createId()
	_, err := service.Execute(ctx, id, rent)
	require.NoError(t, err)
	_, err = service.Execute(ctx, id, journal.Approve{By: "bo"})
	require.NoError(t, err)
	_, err = service.Execute(ctx, id, journal.Post{By: "bo"})
	require.NoError(t, err)

	db, err := projections.NewProjectionDb(env)
	require.NoError(t, err)
	worker, err := projections.NewWorker(
		journal.ProjectionName, journal.ProjectionVersion, store, db,
		projections.WithStrategy(journal.Strategy(10)),
		projections.WithMapper(journal.Mapper),
	)
	require.NoError(t, err)

	checkpoint, err := worker.ProcessFrom(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, we.Sequence(3), checkpoint)

	raw, err := db.Get(ctx, journal.SummaryKey(id))
	require.NoError(t, err)
	var summary journal.Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, "October rent", summary.Description)
	assert.Equal(t, int64(1_200_00), summary.Total)

	status, err := db.Get(ctx, journal.StatusKey(id))
	require.NoError(t, err)
	assert.JSONEq(t, `"posted"`, string(status))

	postings, err := db.Scan(ctx, "ledger:bank:", 0)
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.JSONEq(t, `-120000`, string(postings[0].Value))

	before, err := db.Scan(ctx, "", 0)
	require.NoError(t, err)
	_, err = worker.Rebuild(ctx)
	require.NoError(t, err)
	after, err := db.Scan(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
