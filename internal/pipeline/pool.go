package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrPanic wraps a panic recovered from a job.
var ErrPanic = errors.New("job panicked")

// Job is one unit of work run by a Pool.
type Job func() error

// Pool runs a batch of jobs on a fixed number of goroutines. Workers claim
// jobs in contiguous chunks. A failing or panicking job never affects the
// others.
type Pool struct {
	workers   int
	chunkSize int
}

// NewPool creates a pool with the given number of workers and chunk size.
func NewPool(workers, chunkSize int) *Pool {
	return &Pool{workers: max(1, workers), chunkSize: max(1, chunkSize)}
}

// Run executes every job and blocks until all have finished. The returned
// slice holds each job's error at the job's index. Once ctx is done, jobs
// that have not started are not run and report ctx.Err().
func (p *Pool) Run(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))
	if len(jobs) == 0 {
		return errs
	}

	type chunk struct{ start, end int }
	chunks := make(chan chunk)

	nchunks := (len(jobs) + p.chunkSize - 1) / p.chunkSize
	var wg sync.WaitGroup
	for w := 0; w < min(p.workers, nchunks); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range chunks {
				for i := c.start; i < c.end; i++ {
					if err := ctx.Err(); err != nil {
						errs[i] = err
						continue
					}
					errs[i] = runJob(jobs[i])
				}
			}
		}()
	}

	for start := 0; start < len(jobs); start += p.chunkSize {
		chunks <- chunk{start: start, end: min(start+p.chunkSize, len(jobs))}
	}
	close(chunks)
	wg.Wait()

	return errs
}

func runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return job()
}
