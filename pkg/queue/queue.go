package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotRunning = errors.New("queue not running")
	ErrQueueFull  = errors.New("queue full")
	// ErrPending is returned when a job of the same name is already waiting.
	ErrPending = errors.New("job already pending")
)

// QueueService runs enqueued jobs between Start and Stop.
type QueueService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Enqueue(ctx context.Context, job Job) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Name       string        // used in logs
	QueueSize  int           // size of the queue
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
}

// Message represents a message in the queue
type Message struct {
	ID        string
	Job       Job
	Attempts  int
	Timestamp time.Time
}
