// Package workers bounds concurrent optimization work so request handlers
// cannot pile unbounded CPU-heavy solves onto one process.
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

// Pool limits how many solves run at once. Callers block until a slot frees
// or their context is canceled.
type Pool struct {
	sem    *semaphore.Weighted
	logger logging.Logger
}

// NewPool creates a pool with the given concurrency. Zero or negative means
// one slot per CPU.
func NewPool(concurrency int, logger logging.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger,
	}
}

// Do runs fn once a slot is available. The context bounds both the wait for
// a slot and the work itself.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
