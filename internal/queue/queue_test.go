package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/logger"
	"igleads/pkg/scraper"
)

// MockRunner records calls and the highest number of concurrent runs
type MockRunner struct {
	delay  time.Duration
	err    error
	block  chan struct{}
	active int32
	peak   int32

	mu    sync.Mutex
	calls []string
}

func (m *MockRunner) enter(call string) {
	n := atomic.AddInt32(&m.active, 1)
	for {
		p := atomic.LoadInt32(&m.peak)
		if n <= p || atomic.CompareAndSwapInt32(&m.peak, p, n) {
			break
		}
	}
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *MockRunner) wait(ctx context.Context) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.err
}

func (m *MockRunner) ScrapeByHashtag(ctx context.Context, term string, maxProfiles int, account string) (*scraper.Result, error) {
	m.enter("hashtag:" + term + ":" + account)
	defer atomic.AddInt32(&m.active, -1)
	err := m.wait(ctx)
	return &scraper.Result{Target: term, Requested: maxProfiles, Collected: maxProfiles / 2}, err
}

func (m *MockRunner) ScrapeExploreFeed(ctx context.Context, maxProfiles int, account string) (*scraper.Result, error) {
	m.enter("explore:" + account)
	defer atomic.AddInt32(&m.active, -1)
	err := m.wait(ctx)
	return &scraper.Result{Target: "explore", Requested: maxProfiles}, err
}

func (m *MockRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func collect(q *Queue) <-chan []TaskResult {
	out := make(chan []TaskResult, 1)
	go func() {
		var results []TaskResult
		for r := range q.Results() {
			results = append(results, r)
		}
		out <- results
	}()
	return out
}

func TestQueueRunsTasksInOrder(t *testing.T) {
	runner := &MockRunner{delay: 5 * time.Millisecond}
	q := New(runner, 10, logger.NewNopLogger())
	q.Start()
	done := collect(q)

	tasks := []Task{
		{Kind: KindHashtag, Term: "confeitaria", MaxProfiles: 10},
		{Kind: KindExplore, MaxProfiles: 4, Account: "bob"},
		{Kind: KindHashtag, Term: "docesgourmet", MaxProfiles: 6, Account: "alice"},
	}
	var ids []string
	for _, task := range tasks {
		id, err := q.Submit(task)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	q.Stop()

	results := <-done
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, ids[i], r.Task.ID)
		assert.NoError(t, r.Err)
		assert.NotNil(t, r.Result)
		assert.Greater(t, r.Duration, time.Duration(0))
	}
	assert.Equal(t, 5, results[0].Result.Collected)
	assert.Equal(t, []string{"hashtag:confeitaria:", "explore:bob", "hashtag:docesgourmet:alice"}, runner.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.peak))
}

func TestQueueReportsRunnerErrors(t *testing.T) {
	runner := &MockRunner{err: errors.New("session lost")}
	q := New(runner, 2, logger.NewNopLogger())
	q.Start()
	done := collect(q)

	_, err := q.Submit(Task{Kind: KindHashtag, Term: "bolos"})
	require.NoError(t, err)
	_, err = q.Submit(Task{Kind: "reels"})
	require.NoError(t, err)
	q.Stop()

	results := <-done
	require.Len(t, results, 2)
	assert.EqualError(t, results[0].Err, "session lost")
	assert.NotNil(t, results[0].Result)
	assert.ErrorContains(t, results[1].Err, "unknown task kind")
	assert.Nil(t, results[1].Result)
}

func TestQueueSubmitValidation(t *testing.T) {
	q := New(&MockRunner{}, 1, logger.NewNopLogger())
	q.Start()
	done := collect(q)

	_, err := q.Submit(Task{Kind: KindHashtag})
	assert.Error(t, err)

	id, err := q.Submit(Task{ID: "fixed", Kind: KindExplore})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	q.Stop()
	q.Stop()
	<-done

	_, err = q.Submit(Task{Kind: KindExplore})
	assert.ErrorContains(t, err, "stopped")
}

func TestQueueCancelAbortsRunningTask(t *testing.T) {
	runner := &MockRunner{block: make(chan struct{})}
	q := New(runner, 5, logger.NewNopLogger())
	q.Start()
	done := collect(q)

	for _, term := range []string{"one", "two", "three"} {
		_, err := q.Submit(Task{Kind: KindHashtag, Term: term})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(runner.Calls()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, q.Pending())
	assert.Equal(t, 2, q.Len())

	q.Cancel()
	q.Stop()

	results := <-done
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Zero(t, q.Pending())
	assert.Len(t, runner.Calls(), 1)
}
