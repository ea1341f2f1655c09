// Package queue runs scrape tasks one at a time. Tasks may be submitted
// from anywhere; a single worker executes them in order so only one
// browser session is ever active.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"igleads/pkg/logger"
	"igleads/pkg/scraper"
)

// Kind selects the scrape operation of a task
type Kind string

const (
	KindHashtag Kind = "hashtag"
	KindExplore Kind = "explore"
)

// Task is a queued scrape request
type Task struct {
	ID          string
	Kind        Kind
	Term        string
	MaxProfiles int
	Account     string
	SubmittedAt time.Time
}

// TaskResult is the outcome of a task
type TaskResult struct {
	Task     Task
	Result   *scraper.Result
	Err      error
	Duration time.Duration
}

// Runner executes scrape operations
type Runner interface {
	ScrapeByHashtag(ctx context.Context, term string, maxProfiles int, accountOverride string) (*scraper.Result, error)
	ScrapeExploreFeed(ctx context.Context, maxProfiles int, accountOverride string) (*scraper.Result, error)
}

// Queue feeds tasks to a single worker
type Queue struct {
	taskQueue   chan Task
	resultQueue chan TaskResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	runner      Runner
	logger      logger.Logger

	mu      sync.Mutex
	closed  bool
	pending int32
}

// New creates a queue holding up to capacity waiting tasks
func New(runner Runner, capacity int, log logger.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}
	if capacity <= 0 {
		capacity = 1
	}

	return &Queue{
		taskQueue:   make(chan Task, capacity),
		resultQueue: make(chan TaskResult, capacity),
		ctx:         ctx,
		cancel:      cancel,
		runner:      runner,
		logger:      log.WithField("component", "queue"),
	}
}

// Start launches the worker
func (q *Queue) Start() {
	q.logger.Info("Starting task queue")
	q.wg.Add(1)
	go q.worker()
}

// Stop waits for queued tasks to finish and closes Results
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.taskQueue)
	q.mu.Unlock()

	q.wg.Wait()
	close(q.resultQueue)
	q.cancel()

	q.logger.Info("Task queue stopped")
}

// Cancel aborts the running task and drops the waiting ones. Stop must
// still be called.
func (q *Queue) Cancel() {
	q.logger.Warn("Cancelling task queue")
	q.cancel()
}

// Submit enqueues a task and returns its id
func (q *Queue) Submit(task Task) (string, error) {
	if task.Kind == KindHashtag && task.Term == "" {
		return "", fmt.Errorf("hashtag task without term")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.SubmittedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", fmt.Errorf("task queue is stopped")
	}
	atomic.AddInt32(&q.pending, 1)
	select {
	case q.taskQueue <- task:
		q.logger.DebugWithFields("Task submitted", map[string]interface{}{
			"task_id": task.ID,
			"kind":    string(task.Kind),
			"term":    task.Term,
		})
		return task.ID, nil
	case <-q.ctx.Done():
		atomic.AddInt32(&q.pending, -1)
		return "", fmt.Errorf("task queue is shutting down")
	}
}

// Results returns the result channel. It is closed by Stop.
func (q *Queue) Results() <-chan TaskResult {
	return q.resultQueue
}

// Len returns the number of waiting tasks
func (q *Queue) Len() int {
	return len(q.taskQueue)
}

// Pending returns the number of tasks submitted but not yet finished,
// including the running one
func (q *Queue) Pending() int {
	return int(atomic.LoadInt32(&q.pending))
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for task := range q.taskQueue {
		if q.ctx.Err() != nil {
			q.logger.DebugWithFields("Dropping task after cancel", map[string]interface{}{
				"task_id": task.ID,
			})
			q.finish(TaskResult{Task: task, Err: q.ctx.Err()})
			continue
		}
		q.finish(q.run(task))
	}
}

func (q *Queue) finish(r TaskResult) {
	atomic.AddInt32(&q.pending, -1)
	q.resultQueue <- r
}

func (q *Queue) run(task Task) TaskResult {
	start := time.Now()
	log := q.logger.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"term":    task.Term,
	})
	log.DebugWithFields("Task started", map[string]interface{}{
		"waited": start.Sub(task.SubmittedAt).Round(time.Millisecond).String(),
	})

	var (
		res *scraper.Result
		err error
	)
	switch task.Kind {
	case KindHashtag:
		res, err = q.runner.ScrapeByHashtag(q.ctx, task.Term, task.MaxProfiles, task.Account)
	case KindExplore:
		res, err = q.runner.ScrapeExploreFeed(q.ctx, task.MaxProfiles, task.Account)
	default:
		err = fmt.Errorf("unknown task kind %q", task.Kind)
	}

	result := TaskResult{Task: task, Result: res, Err: err, Duration: time.Since(start)}
	if err != nil {
		log.WithError(err).Error("Task failed")
	} else {
		log.InfoWithFields("Task completed", map[string]interface{}{
			"collected": res.Collected,
			"duration":  result.Duration.Round(time.Second).String(),
		})
	}
	return result
}
