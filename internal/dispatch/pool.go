// Package dispatch runs blocking storage calls on a bounded set of goroutines.
//
// Cancellation contract: a context that is already done when Do is called prevents the
// call. Once the call has been handed to the pool it always runs to completion and its
// effect lands, even if the caller's context ends and Do returns ctx.Err() early. Timeouts
// built on top of Do must not assume that cancellation undid the work.
package dispatch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

const DefaultSize = 16

type Pool struct {
	size  int64
	slots *semaphore.Weighted
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}

	return &Pool{size: int64(size), slots: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn on the pool and waits for it or for ctx, whichever comes first.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.slots.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
			return ctx.Err()
		}
	}
}

// Drain blocks until every call handed to the pool has finished. Calls made after Drain
// returns wait for Release.
func (p *Pool) Drain(ctx context.Context) error {
	return p.slots.Acquire(ctx, p.size)
}

func (p *Pool) Release() {
	p.slots.Release(p.size)
}
