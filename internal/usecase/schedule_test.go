package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/pkg/queue"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestNewPredictionScheduleNormalizesHours(t *testing.T) {
	s := NewPredictionSchedule([]int{21, 5, 5, 25, -1}, 0)
	assert.Equal(t, []int{5, 21}, s.hours)
	assert.Equal(t, 4*time.Hour, s.Horizon())

	s = NewPredictionSchedule(nil, 2*time.Hour)
	assert.Equal(t, DefaultPredictionHours, s.hours)
	assert.Equal(t, 2*time.Hour, s.Horizon())
}

func TestNextRunTime(t *testing.T) {
	s := NewPredictionSchedule(DefaultPredictionHours, 4*time.Hour)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"between slots", at(1, 14, 30), at(1, 17, 0)},
		{"on a slot is strictly after", at(1, 13, 0), at(1, 17, 0)},
		{"before the first slot", at(1, 0, 10), at(1, 1, 0)},
		{"after the last slot rolls over", at(1, 22, 0), at(2, 1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.NextRunTime(tt.now))
		})
	}

	loc := time.FixedZone("UTC+7", 7*3600)
	assert.Equal(t, at(1, 17, 0), s.NextRunTime(at(1, 14, 30).In(loc)))
}

func TestNextPredictionRunHasFloor(t *testing.T) {
	s := NewPredictionSchedule(DefaultPredictionHours, 4*time.Hour)
	assert.Equal(t, 150*time.Minute, s.NextPredictionRun(at(1, 14, 30)))
	assert.Equal(t, time.Second, s.NextPredictionRun(at(1, 17, 0).Add(-200*time.Millisecond)))
}

func TestRoundedPredictionWindow(t *testing.T) {
	s := NewPredictionSchedule(DefaultPredictionHours, 4*time.Hour)

	w := s.RoundedPredictionWindow(at(1, 14, 30))
	assert.Equal(t, at(1, 13, 0), w.Start)
	assert.Equal(t, at(1, 17, 0), w.Expiry)

	w = s.RoundedPredictionWindow(at(1, 13, 0))
	assert.Equal(t, at(1, 13, 0), w.Start)

	w = s.RoundedPredictionWindow(at(2, 0, 30))
	assert.Equal(t, at(1, 21, 0), w.Start, "before the first slot belongs to yesterday's last")
	assert.Equal(t, at(2, 1, 0), w.Expiry)
	assert.Equal(t, "2025-03-01T21:00:00Z", w.CycleID())
}

func TestRunnerRunsPeriodicAndTriggeredJobs(t *testing.T) {
	var ticks, manual atomic.Int32
	r := NewRunner(nil, PeriodicJob{
		Job: queue.Func("tick", func(context.Context) error {
			ticks.Add(1)
			return nil
		}),
		Lane:       LaneBookkeeping,
		Interval:   20 * time.Millisecond,
		RunAtStart: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))

	require.NoError(t, r.Trigger(ctx, "unknown-lane", queue.Func("manual", func(context.Context) error {
		manual.Add(1)
		return nil
	})))

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 && manual.Load() == 1 },
		2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, r.Stop(stopCtx))
}
