package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryJob(t *testing.T) {
	var completed int32
	jobs := make([]Job, 15)
	for i := range jobs {
		jobs[i] = func() error {
			atomic.AddInt32(&completed, 1)
			return nil
		}
	}

	errs := NewPool(4, 3).Run(context.Background(), jobs)
	require.Len(t, errs, len(jobs))
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, len(jobs), atomic.LoadInt32(&completed))
}

func TestPoolIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	var completed int32
	jobs := []Job{
		func() error { atomic.AddInt32(&completed, 1); return nil },
		func() error { return boom },
		func() error { panic("bad record") },
		func() error { atomic.AddInt32(&completed, 1); return nil },
	}

	errs := NewPool(2, 1).Run(context.Background(), jobs)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.ErrorIs(t, errs[2], ErrPanic)
	assert.NoError(t, errs[3])
	assert.EqualValues(t, 2, atomic.LoadInt32(&completed))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak int32
	jobs := make([]Job, 20)
	for i := range jobs {
		jobs[i] = func() error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}
	}

	NewPool(3, 2).Run(context.Background(), jobs)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestPoolSkipsJobsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = func() error { atomic.AddInt32(&ran, 1); return nil }
	}

	errs := NewPool(2, 3).Run(ctx, jobs)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestPoolEmpty(t *testing.T) {
	assert.Empty(t, NewPool(0, 0).Run(context.Background(), nil))
}
