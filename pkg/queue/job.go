package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Handle runs the job once.
	Handle(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(context.Context) error
}

func (j funcJob) Name() string                     { return j.name }
func (j funcJob) Handle(ctx context.Context) error { return j.fn(ctx) }

// Func adapts a function to a Job.
func Func(name string, fn func(context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}
