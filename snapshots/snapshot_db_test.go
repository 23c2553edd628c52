package snapshots_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/snapshots"
	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

type Balance struct {
	Total int `json:"total"`
}

type Deposited struct {
	Amount int `json:"amount"`
}

func balanceRenderer() *we.Renderer[Balance] {
	var deposited we.ReducerFunction[Balance, Deposited] = func(state *Balance, evt *Deposited) error {
		state.Total += evt.Amount
		return nil
	}

	return &we.Renderer[Balance]{Reducers: we.Reducers[Balance]{we.EventTypeOf(Deposited{}): deposited}}
}

func TestSnapshotDb(t *testing.T) {
	ctx := context.Background()
	_, env := boltdb.NewTestStore(t)

	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	db, err := snapshots.NewSnapshotDb(env, snapshots.EveryNEvents(2), snapshots.WithClock(we.ClockFunc(func() time.Time { return now })))
	require.NoError(t, err)

	t.Run("loads nothing for an unknown aggregate", func(t *testing.T) {
		snapshot, err := db.Load(ctx, "JE404")
		require.NoError(t, err)
		assert.Nil(t, snapshot)
	})

	t.Run("saves and loads", func(t *testing.T) {
		err := db.Save(ctx, we.Snapshot{AggregateId: "JE001", Version: 3, LastSequence: 7, State: []byte(`{"total":3}`)})
		require.NoError(t, err)

		snapshot, err := db.Load(ctx, "JE001")
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Equal(t, we.Sequence(7), snapshot.LastSequence)
		assert.Equal(t, we.Version(3), snapshot.Version)
		assert.JSONEq(t, `{"total":3}`, string(snapshot.State))
		assert.True(t, now.Equal(snapshot.CreatedAt))
	})

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, db.Save(ctx, we.Snapshot{AggregateId: "JE002", LastSequence: 1, State: []byte(`1`)}))
		require.NoError(t, db.Save(ctx, we.Snapshot{AggregateId: "JE002", LastSequence: 9, State: []byte(`2`)}))

		snapshot, err := db.Load(ctx, "JE002")
		require.NoError(t, err)
		assert.Equal(t, we.Sequence(9), snapshot.LastSequence)
		assert.Equal(t, []byte(`2`), snapshot.State)
	})

	t.Run("deletes", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, "JE002"))

		snapshot, err := db.Load(ctx, "JE002")
		require.NoError(t, err)
		assert.Nil(t, snapshot)

		assert.NoError(t, db.Delete(ctx, "JE002"))
	})

	t.Run("delegates to the policy", func(t *testing.T) {
		assert.False(t, db.ShouldSnapshot(1, time.Time{}))
		assert.True(t, db.ShouldSnapshot(2, time.Time{}))
	})

	t.Run("rejects invalid ids", func(t *testing.T) {
		err := db.Save(ctx, we.Snapshot{})
		assert.ErrorIs(t, err, we.ErrValidationFailed)
	})
}

func TestPolicies(t *testing.T) {
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := we.ClockFunc(func() time.Time { return now })

	t.Run("every n events", func(t *testing.T) {
		policy := snapshots.EveryNEvents(10)
		assert.False(t, policy.ShouldSnapshot(9, now))
		assert.True(t, policy.ShouldSnapshot(10, now))
		assert.True(t, policy.ShouldSnapshot(11, now))
		assert.False(t, snapshots.EveryNEvents(0).ShouldSnapshot(100, now))
	})

	t.Run("every interval", func(t *testing.T) {
		policy := snapshots.EveryInterval(time.Hour, clock)
		assert.True(t, policy.ShouldSnapshot(0, time.Time{}))
		assert.False(t, policy.ShouldSnapshot(0, now.Add(-59*time.Minute)))
		assert.True(t, policy.ShouldSnapshot(0, now.Add(-time.Hour)))
	})

	t.Run("combined", func(t *testing.T) {
		policy := snapshots.AnyOf(snapshots.Never(), snapshots.EveryNEvents(5))
		assert.False(t, policy.ShouldSnapshot(4, now))
		assert.True(t, policy.ShouldSnapshot(5, now))
	})
}

func TestEntityLoaderWithSnapshots(t *testing.T) {
	ctx := context.Background()
	store, env := boltdb.NewTestStore(t)

	db, err := snapshots.NewSnapshotDb(env, snapshots.EveryNEvents(3))
	require.NoError(t, err)

	loader := &we.EntityLoader[Balance]{Store: store, Renderer: balanceRenderer(), Snapshots: db}

	_, err = store.Append(ctx, "ACC-1", we.Options(), Deposited{Amount: 1}, Deposited{Amount: 2}, Deposited{Amount: 3})
	require.NoError(t, err)

	t.Run("renders from events and takes a snapshot", func(t *testing.T) {
		entity, err := loader.Load(ctx, "ACC-1")
		require.NoError(t, err)
		assert.Equal(t, 6, entity.State.Total)
		assert.Equal(t, we.Version(3), entity.Version)

		snapshot, err := db.Load(ctx, "ACC-1")
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.Equal(t, we.Sequence(3), snapshot.LastSequence)
	})

	t.Run("replays events after a stale snapshot", func(t *testing.T) {
		_, err := store.Append(ctx, "ACC-1", we.Options(), Deposited{Amount: 10})
		require.NoError(t, err)

		entity, err := loader.Load(ctx, "ACC-1")
		require.NoError(t, err)
		assert.Equal(t, 16, entity.State.Total)
		assert.Equal(t, we.Version(4), entity.Version)
		assert.Equal(t, we.Sequence(4), entity.Sequence)
	})

	t.Run("ignores an unreadable snapshot", func(t *testing.T) {
		require.NoError(t, db.Save(ctx, we.Snapshot{AggregateId: "ACC-1", Version: 4, LastSequence: 4, State: []byte(`"broken"`)}))

		entity, err := loader.Load(ctx, "ACC-1")
		require.NoError(t, err)
		assert.Equal(t, 16, entity.State.Total)
	})

	t.Run("matches a loader without snapshots", func(t *testing.T) {
		plain := &we.EntityLoader[Balance]{Store: store, Renderer: balanceRenderer()}

		expected, err := plain.Load(ctx, "ACC-1")
		require.NoError(t, err)
		actual, err := loader.Load(ctx, "ACC-1")
		require.NoError(t, err)

		assert.Equal(t, expected.State, actual.State)
		assert.Equal(t, expected.Version, actual.Version)
	})
}
