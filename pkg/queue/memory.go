package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"DexSignal/pkg/logger"
)

var _ QueueService = (*MemoryQueue)(nil)

// MemoryQueue is an in-process job queue with a single consumer, so jobs
// never overlap. A job whose name is already waiting is coalesced instead of
// queued twice.
type MemoryQueue struct {
	logger  *logger.Logger
	config  *QueueConfig
	ch      chan Message
	pending map[string]struct{}
	mu      sync.Mutex
	wg      sync.WaitGroup

	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMemoryQueue creates a new queue. Start must be called before Enqueue.
func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig) *MemoryQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &MemoryQueue{
		logger:  lgr.With(logger.String("queue", config.Name)),
		config:  config,
		ch:      make(chan Message, config.QueueSize),
		pending: make(map[string]struct{}),
	}
}

// Start launches the worker. The worker stops when parent is cancelled or
// Stop is called.
func (q *MemoryQueue) Start(parent context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return fmt.Errorf("queue already running")
	}
	q.ctx, q.cancel = context.WithCancel(parent)
	q.isRunning = true

	q.wg.Add(1)
	go q.worker()
	q.logger.Info("queue started", logger.Int("size", q.config.QueueSize))
	return nil
}

// Stop cancels running jobs and waits for the worker.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.cancel()
	q.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("timeout waiting for queue worker", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		q.logger.Info("queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a job to the queue without blocking.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	return q.push(Message{
		ID:        uuid.NewString(),
		Job:       job,
		Timestamp: time.Now(),
	})
}

func (q *MemoryQueue) push(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return ErrNotRunning
	}
	name := msg.Job.Name()
	if _, ok := q.pending[name]; ok {
		return ErrPending
	}
	select {
	case q.ch <- msg:
		q.pending[name] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports the number of waiting jobs.
func (q *MemoryQueue) Pending() int { return len(q.ch) }

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			q.mu.Lock()
			delete(q.pending, msg.Job.Name())
			q.mu.Unlock()
			q.processMessage(msg)
		}
	}
}

func (q *MemoryQueue) processMessage(msg Message) {
	start := time.Now()
	err := q.run(msg.Job)
	elapsed := time.Since(start)

	if err == nil {
		q.logger.Debug("job done",
			logger.String("job", msg.Job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
		return
	}
	if errors.Is(err, context.Canceled) {
		q.logger.Warn("job cancelled",
			logger.String("id", msg.ID),
			logger.String("job", msg.Job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
		return
	}
	q.handleProcessingError(msg, err)
}

// run executes a job, turning a panic into an error.
func (q *MemoryQueue) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			q.logger.Error("job panicked",
				logger.String("job", job.Name()),
				logger.String("stack", string(debug.Stack())))
		}
	}()
	return job.Handle(q.ctx)
}

func (q *MemoryQueue) handleProcessingError(msg Message, err error) {
	q.logger.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", msg.Job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= q.config.RetryLimit {
		return
	}
	msg.Attempts++
	retryAt := time.Now().Add(q.config.RetryDelay)
	q.logger.Info("scheduled retry",
		logger.String("job", msg.Job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", retryAt.Format(time.RFC3339)))

	time.AfterFunc(q.config.RetryDelay, func() {
		if err := q.push(msg); err != nil && !errors.Is(err, ErrNotRunning) {
			q.logger.Warn("retry dropped", logger.String("job", msg.Job.Name()), logger.Error(err))
		}
	})
}
