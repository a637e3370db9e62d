package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueRunsJobsSequentially(t *testing.T) {
	q := NewMemoryQueue(nil, &QueueConfig{Name: "test"})
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop(context.Background())

	var running, maxRunning, done int32
	block := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&done, 1)
		return nil
	}

	require.NoError(t, q.Enqueue(context.Background(), Func("a", block)))
	require.NoError(t, q.Enqueue(context.Background(), Func("b", block)))
	require.NoError(t, q.Enqueue(context.Background(), Func("c", block)))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 3 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxRunning))
}

func TestMemoryQueueCoalescesPendingJobs(t *testing.T) {
	q := NewMemoryQueue(nil, &QueueConfig{})
	release := make(chan struct{})
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop(context.Background())

	started := make(chan struct{})
	require.NoError(t, q.Enqueue(context.Background(), Func("busy", func(context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started

	noop := Func("tick", func(context.Context) error { return nil })
	require.NoError(t, q.Enqueue(context.Background(), noop))
	assert.ErrorIs(t, q.Enqueue(context.Background(), noop), ErrPending)
	close(release)
}

func TestMemoryQueueSurvivesPanicAndRetries(t *testing.T) {
	q := NewMemoryQueue(nil, &QueueConfig{RetryLimit: 1, RetryDelay: time.Millisecond})
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop(context.Background())

	var calls int32
	require.NoError(t, q.Enqueue(context.Background(), Func("flaky", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return nil
	})))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)

	var after int32
	require.NoError(t, q.Enqueue(context.Background(), Func("after", func(context.Context) error {
		atomic.StoreInt32(&after, 1)
		return errors.New("plain failure")
	})))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&after) == 1 }, time.Second, time.Millisecond)
}

func TestMemoryQueueRejectsWhenStopped(t *testing.T) {
	q := NewMemoryQueue(nil, nil)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Func("x", func(context.Context) error { return nil })), ErrNotRunning)
}
