package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"DexSignal/internal/domain/models"
	"DexSignal/pkg/logger"
	"DexSignal/pkg/queue"
)

// DefaultPredictionHours are the UTC hours prediction windows start at.
var DefaultPredictionHours = []int{1, 5, 9, 13, 17, 21}

// PredictionSchedule computes the fixed-clock prediction slots.
type PredictionSchedule struct {
	hours   []int
	horizon time.Duration
}

// NewPredictionSchedule copies and sorts hours. Invalid hours are dropped;
// an empty list falls back to DefaultPredictionHours.
func NewPredictionSchedule(hours []int, horizon time.Duration) PredictionSchedule {
	hs := make([]int, 0, len(hours))
	seen := map[int]bool{}
	for _, h := range hours {
		if h >= 0 && h < 24 && !seen[h] {
			seen[h] = true
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		hs = append(hs, DefaultPredictionHours...)
	}
	sort.Ints(hs)
	if horizon <= 0 {
		horizon = 4 * time.Hour
	}
	return PredictionSchedule{hours: hs, horizon: horizon}
}

// Horizon is the length of a prediction window.
func (s PredictionSchedule) Horizon() time.Duration { return s.horizon }

// NextRunTime returns the first allowed slot strictly after now.
func (s PredictionSchedule) NextRunTime(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range s.hours {
		if slot := day.Add(time.Duration(h) * time.Hour); slot.After(now) {
			return slot
		}
	}
	return day.AddDate(0, 0, 1).Add(time.Duration(s.hours[0]) * time.Hour)
}

// NextPredictionRun returns the delay until the next slot, at least one second.
func (s PredictionSchedule) NextPredictionRun(now time.Time) time.Duration {
	d := s.NextRunTime(now).Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// RoundedPredictionWindow snaps now down to the latest slot at or before its
// hour (the previous day's last slot before the first one) and adds the
// horizon.
func (s PredictionSchedule) RoundedPredictionWindow(now time.Time) models.PredictionWindow {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	start := day.AddDate(0, 0, -1).Add(time.Duration(s.hours[len(s.hours)-1]) * time.Hour)
	for _, h := range s.hours {
		if h <= now.Hour() {
			start = day.Add(time.Duration(h) * time.Hour)
		}
	}
	return models.PredictionWindow{Start: start, Expiry: start.Add(s.horizon)}
}

// Lane names.
const (
	LaneMarket      = "market"
	LaneBookkeeping = "bookkeeping"
)

// PeriodicJob is a job fired on a fixed interval, or by a custom delay
// function when Next is set.
type PeriodicJob struct {
	Job      queue.Job
	Lane     string
	Interval time.Duration
	Next     func(now time.Time) time.Duration
	// RunAtStart enqueues the job once immediately.
	RunAtStart bool
}

// Runner drives periodic jobs over two single-consumer lanes. Jobs that call
// external sources run on the market lane so they can never delay the
// bookkeeping lane (monitor ticks, sweeps and rotations).
type Runner struct {
	lanes map[string]queue.QueueService
	jobs  []PeriodicJob
	log   *logger.Logger
	now   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(log *logger.Logger, jobs ...PeriodicJob) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		lanes: map[string]queue.QueueService{
			LaneMarket:      queue.NewMemoryQueue(log, &queue.QueueConfig{Name: LaneMarket}),
			LaneBookkeeping: queue.NewMemoryQueue(log, &queue.QueueConfig{Name: LaneBookkeeping}),
		},
		jobs: jobs,
		log:  log.With(logger.String("component", "runner")),
		now:  time.Now,
	}
}

// Add registers a periodic job. It must be called before Start.
func (r *Runner) Add(j PeriodicJob) { r.jobs = append(r.jobs, j) }

// Start launches the lanes and one timer goroutine per periodic job.
func (r *Runner) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, q := range r.lanes {
		if err := q.Start(ctx); err != nil {
			return err
		}
	}
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
	r.log.Info("runner started", logger.Int("jobs", len(r.jobs)))
	return nil
}

// Trigger enqueues job on lane outside of its schedule.
func (r *Runner) Trigger(ctx context.Context, lane string, job queue.Job) error {
	q, ok := r.lanes[lane]
	if !ok {
		q = r.lanes[LaneMarket]
	}
	return q.Enqueue(ctx, job)
}

// Stop halts the timers and waits for running jobs.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	var errs []error
	for _, q := range r.lanes {
		errs = append(errs, q.Stop(ctx))
	}
	return errors.Join(errs...)
}

func (r *Runner) loop(ctx context.Context, j PeriodicJob) {
	defer r.wg.Done()

	if j.RunAtStart {
		r.enqueue(ctx, j)
	}
	for {
		delay := j.Interval
		if j.Next != nil {
			delay = j.Next(r.now())
		}
		if delay <= 0 {
			delay = time.Minute
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			r.enqueue(ctx, j)
		}
	}
}

func (r *Runner) enqueue(ctx context.Context, j PeriodicJob) {
	err := r.Trigger(ctx, j.Lane, j.Job)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrPending):
		r.log.Debug("job still pending, tick skipped", logger.String("job", j.Job.Name()))
	default:
		r.log.Warn("enqueue failed", logger.String("job", j.Job.Name()), logger.Error(err))
	}
}
