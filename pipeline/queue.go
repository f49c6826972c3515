package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/brendan-ward/rastertiler/tiles"
)

// DefaultQueueSize caps the number of outstanding jobs
const DefaultQueueSize = 32

// TileJob is a single tile to render. Tile is always in XYZ numbering; Path
// already reflects TMS numbering when that was requested.
type TileJob struct {
	Region string
	Path   string
	Tile   tiles.TileID
}

// JobQueue is a bounded FIFO of tile jobs shared by all workers. A nil job is
// the stop sentinel.
//
// Every item taken with Get must be marked with TaskDone; Join blocks until
// all items put on the queue, sentinels included, have been marked.
type JobQueue struct {
	jobs      chan *TileJob
	pending   sync.WaitGroup
	completed atomic.Int64
}

func NewJobQueue(capacity int) *JobQueue {
	if capacity < 1 {
		capacity = DefaultQueueSize
	}
	return &JobQueue{
		jobs: make(chan *TileJob, capacity),
	}
}

// Put adds a job, blocking while the queue is full. It returns ctx.Err() if
// ctx is done first, in which case the job was not queued.
func (q *JobQueue) Put(ctx context.Context, job *TileJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.pending.Add(1)
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

// Stop queues one stop sentinel. Call it once per worker after the last job.
func (q *JobQueue) Stop() {
	q.pending.Add(1)
	q.jobs <- nil
}

// Get takes the next job, blocking while the queue is empty
func (q *JobQueue) Get() *TileJob {
	return <-q.jobs
}

// TaskDone marks one item returned by Get as processed
func (q *JobQueue) TaskDone() {
	q.completed.Add(1)
	q.pending.Done()
}

// Join blocks until every queued item has been marked with TaskDone
func (q *JobQueue) Join() {
	q.pending.Wait()
}

// Completed returns the number of TaskDone calls so far
func (q *JobQueue) Completed() int64 {
	return q.completed.Load()
}

// Len returns the number of items currently waiting in the queue
func (q *JobQueue) Len() int {
	return len(q.jobs)
}

func (q *JobQueue) Cap() int {
	return cap(q.jobs)
}
