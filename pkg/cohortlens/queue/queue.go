// Package queue runs analysis runs in the background. Runs are handed over by
// id; a fixed pool of workers drains the queue and executes each run through
// the pipeline runner. Execution errors are already recorded on the run row,
// so workers only log them.
package queue

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor executes a single queued run to a terminal status.
type Executor interface {
	Execute(ctx context.Context, runID int64) error
}

// Queue is a bounded in-process run queue.
type Queue struct {
	Exec Executor
	Log  *log.Logger

	ch      chan int64
	once    sync.Once
	closeMu sync.Mutex
	closed  bool
}

// New returns a queue that buffers up to depth pending run ids.
func New(exec Executor, depth int) *Queue {
	if depth <= 0 {
		depth = 16
	}
	return &Queue{Exec: exec, ch: make(chan int64, depth)}
}

// Enqueue schedules a run for execution. It blocks when the queue is full and
// is a no-op after Close.
func (q *Queue) Enqueue(runID int64) {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		q.logf("queue closed, dropping run %d", runID)
		return
	}
	// Held across the send so Close cannot close the channel mid-send.
	q.ch <- runID
}

// Start launches workers goroutines that drain the queue until the context is
// cancelled or Close is called. It returns immediately; the returned wait
// function blocks until every worker has finished.
func (q *Queue) Start(ctx context.Context, workers int) (wait func() error) {
	if workers <= 0 {
		workers = 2
	}
	eg, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case runID, ok := <-q.ch:
					if !ok {
						return nil
					}
					if err := q.Exec.Execute(gctx, runID); err != nil {
						q.logf("run %d: %v", runID, err)
					}
				}
			}
		})
	}
	return eg.Wait
}

// Close stops accepting new runs. Workers drain what is already queued and
// then exit.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.closeMu.Lock()
		defer q.closeMu.Unlock()
		q.closed = true
		close(q.ch)
	})
}

func (q *Queue) logf(format string, args ...any) {
	if q.Log != nil {
		q.Log.Printf(format, args...)
	}
}
