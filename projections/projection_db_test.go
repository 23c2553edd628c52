package projections_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weegigs/wee-ledger-go/projections"
	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

func TestProjectionDb(t *testing.T) {
	ctx := context.Background()
	_, env := boltdb.NewTestStore(t)

	now := time.Date(2024, 6, 30, 17, 0, 0, 0, time.UTC)
	db, err := projections.NewProjectionDb(env, projections.WithDbClock(we.ClockFunc(func() time.Time { return now })))
	require.NoError(t, err)

	t.Run("unseen projection starts at zero", func(t *testing.T) {
		position, err := db.Position(ctx, "balances", 1)
		require.NoError(t, err)
		assert.Equal(t, we.Sequence(0), position)

		checkpoint, err := db.Checkpoint(ctx, "balances", 1)
		require.NoError(t, err)
		assert.Nil(t, checkpoint)
	})

	t.Run("commits updates with the checkpoint", func(t *testing.T) {
		updates := []projections.Update{
			{Key: "balance:cash", Value: []byte(`100`)},
			{Key: "balance:bank", Value: []byte(`250`)},
		}
		require.NoError(t, db.UpdateBatch(ctx, "balances", 1, updates, 7))

		value, err := db.Get(ctx, "balance:cash")
		require.NoError(t, err)
		assert.Equal(t, []byte(`100`), value)

		checkpoint, err := db.Checkpoint(ctx, "balances", 1)
		require.NoError(t, err)
		require.NotNil(t, checkpoint)
		assert.Equal(t, "balances", checkpoint.Name)
		assert.Equal(t, uint32(1), checkpoint.Version)
		assert.Equal(t, we.Sequence(7), checkpoint.Sequence)
		assert.True(t, now.Equal(checkpoint.UpdatedAt))
	})

	t.Run("versions keep separate checkpoints", func(t *testing.T) {
		position, err := db.Position(ctx, "balances", 2)
		require.NoError(t, err)
		assert.Equal(t, we.Sequence(0), position)
		assert.Equal(t, "balances:v2", projections.PositionKey("balances", 2))
	})

	t.Run("nil values delete keys", func(t *testing.T) {
		require.NoError(t, db.UpdateBatch(ctx, "balances", 1, []projections.Update{{Key: "balance:bank"}}, 8))

		value, err := db.Get(ctx, "balance:bank")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("rejects a checkpoint that moves backwards", func(t *testing.T) {
		err := db.UpdateBatch(ctx, "balances", 1, []projections.Update{{Key: "balance:cash", Value: []byte(`1`)}}, 3)
		assert.ErrorIs(t, err, we.ErrValidationFailed)

		value, err := db.Get(ctx, "balance:cash")
		require.NoError(t, err)
		assert.Equal(t, []byte(`100`), value)

		position, err := db.Position(ctx, "balances", 1)
		require.NoError(t, err)
		assert.Equal(t, we.Sequence(8), position)
	})

	t.Run("rolls back every write when one fails", func(t *testing.T) {
		updates := []projections.Update{
			{Key: "balance:cash", Value: []byte(`999`)},
			{Key: strings.Repeat("k", 40_000), Value: []byte(`1`)},
		}
		err := db.UpdateBatch(ctx, "balances", 1, updates, 9)
		assert.ErrorIs(t, err, we.ErrStorageFailed)

		value, err := db.Get(ctx, "balance:cash")
		require.NoError(t, err)
		assert.Equal(t, []byte(`100`), value)

		position, err := db.Position(ctx, "balances", 1)
		require.NoError(t, err)
		assert.Equal(t, we.Sequence(8), position)
	})

	t.Run("rejects empty keys", func(t *testing.T) {
		err := db.UpdateBatch(ctx, "balances", 1, []projections.Update{{Value: []byte(`1`)}}, 10)
		assert.ErrorIs(t, err, we.ErrValidationFailed)
	})

	t.Run("scans by prefix in key order", func(t *testing.T) {
		updates := []projections.Update{
			{Key: "account:3", Value: []byte(`c`)},
			{Key: "account:1", Value: []byte(`a`)},
			{Key: "account:2", Value: []byte(`b`)},
			{Key: "accounts", Value: []byte(`x`)},
		}
		require.NoError(t, db.UpdateBatch(ctx, "accounts", 1, updates, 1))

		entries, err := db.Scan(ctx, "account:", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "account:1", entries[0].Key)
		assert.Equal(t, "account:3", entries[2].Key)

		limited, err := db.Scan(ctx, "account:", 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		none, err := db.Scan(ctx, "missing:", 0)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("deletes outside a batch", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, "accounts"))

		value, err := db.Get(ctx, "accounts")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("resets a checkpoint", func(t *testing.T) {
		require.NoError(t, db.ResetPosition(ctx, "balances", 1))

		position, err := db.Position(ctx, "balances", 1)
		require.NoError(t, err)
		assert.Equal(t, we.Sequence(0), position)

		require.NoError(t, db.UpdateBatch(ctx, "balances", 1, nil, 2))
	})
}
