package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("returns the call result", func(t *testing.T) {
		pool := NewPool(2)

		err := pool.Do(context.Background(), func() error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("does not start a call for a done context", func(t *testing.T) {
		pool := NewPool(2)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Bool
		err := pool.Do(ctx, func() error {
			ran.Store(true)
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran.Load())
	})

	t.Run("finishes a handed off call after cancellation", func(t *testing.T) {
		pool := NewPool(1)
		ctx, cancel := context.WithCancel(context.Background())

		started := make(chan struct{})
		release := make(chan struct{})
		var finished atomic.Bool

		result := make(chan error, 1)
		go func() {
			result <- pool.Do(ctx, func() error {
				close(started)
				<-release
				finished.Store(true)
				return nil
			})
		}()

		<-started
		cancel()
		assert.ErrorIs(t, <-result, context.Canceled)

		close(release)
		require.NoError(t, pool.Drain(context.Background()))
		assert.True(t, finished.Load())
		pool.Release()
	})

	t.Run("bounds concurrency", func(t *testing.T) {
		pool := NewPool(2)
		var running, peak atomic.Int32

		errs := make(chan error, 6)
		for i := 0; i < 6; i++ {
			go func() {
				errs <- pool.Do(context.Background(), func() error {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					running.Add(-1)
					return nil
				})
			}()
		}

		for i := 0; i < 6; i++ {
			require.NoError(t, <-errs)
		}
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})
}
