// Package queue runs build tasks on a bounded pool of workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	"github.com/dmitrijs2005/zipbuilder/internal/metrics"
)

// Handler processes one task. ctx is canceled when the queue stops.
type Handler func(ctx context.Context, taskKey string)

// Queue is a buffered channel of task keys drained by a fixed number of
// workers. Enqueue never blocks: a full buffer is reported to the caller.
type Queue struct {
	tasks    chan string
	workers  int
	maxSize  int
	handler  Handler
	logger   logging.Logger
	recorder metrics.Recorder

	mu      sync.Mutex
	active  map[string]string // task key -> worker id
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a queue holding up to maxSize pending tasks and running
// workers handlers concurrently. Non-positive values fall back to 100 and 2.
func New(maxSize, workers int, handler Handler, logger logging.Logger) *Queue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 2
	}
	if handler == nil {
		panic("queue.New: handler is required")
	}

	return &Queue{
		tasks:    make(chan string, maxSize),
		workers:  workers,
		maxSize:  maxSize,
		handler:  handler,
		logger:   logger.With("module", "queue"),
		recorder: metrics.NoopRecorder{},
		active:   make(map[string]string),
	}
}

// SetRecorder injects a metrics recorder for the queue depth gauge.
func (q *Queue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)

	q.logger.Info(ctx, "starting build queue", "workers", q.workers, "max_size", q.maxSize)
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels running handlers and waits for the workers to exit. Pending
// tasks stay unprocessed.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	q.logger.Info(ctx, "build queue stopped", "pending", len(q.tasks))
}

// Enqueue schedules taskKey.
func (q *Queue) Enqueue(taskKey string) error {
	if taskKey == "" {
		return errors.New("task key is required")
	}

	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return common.ErrQueueStopped
	}

	select {
	case q.tasks <- taskKey:
		q.recorder.SetQueueDepth(len(q.tasks))
		return nil
	default:
		return common.ErrQueueFull
	}
}

// Length returns the number of pending tasks.
func (q *Queue) Length() int {
	return len(q.tasks)
}

// Active returns the task keys currently being handled, sorted.
func (q *Queue) Active() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.active))
	for k := range q.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (q *Queue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case key := <-q.tasks:
			q.recorder.SetQueueDepth(len(q.tasks))
			q.process(ctx, key, workerID)
		}
	}
}

func (q *Queue) process(ctx context.Context, key, workerID string) {
	q.mu.Lock()
	q.active[key] = workerID
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.active, key)
		q.mu.Unlock()

		if p := recover(); p != nil {
			q.logger.Error(ctx, "task handler panicked", "task_key", key, "worker", workerID, "panic", p)
		}
	}()

	q.handler(ctx, key)
}
