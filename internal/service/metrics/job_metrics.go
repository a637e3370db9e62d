package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"DexSignal/pkg/queue"
)

var (
	once sync.Once

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dexsignal",
			Subsystem: "runner",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"job"},
	)

	JobFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexsignal",
			Subsystem: "runner",
			Name:      "job_failures_total",
			Help:      "Scheduled job runs that returned an error",
		},
		[]string{"job"},
	)
)

// Register adds the job collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		reg.MustRegister(JobDuration, JobFailures)
	})
}

type instrumented struct {
	queue.Job
}

// Instrument wraps job so every run is timed and failures are counted.
func Instrument(job queue.Job) queue.Job {
	return instrumented{Job: job}
}

func (j instrumented) Handle(ctx context.Context) error {
	start := time.Now()
	err := j.Job.Handle(ctx)
	JobDuration.WithLabelValues(j.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		JobFailures.WithLabelValues(j.Name()).Inc()
	}
	return err
}
