package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DexSignal/internal/domain/models"
	"DexSignal/pkg/logger"
)

// AccuracyTracker keeps the per-pair hit counters and their aggregate.
type AccuracyTracker struct {
	history       *HistoryStore
	expectedPairs int
	log           *logger.Logger
	now           func() time.Time

	mu        sync.Mutex
	periods   int
	lastReset time.Time
	rotated   bool
}

type AccuracyOption func(*AccuracyTracker)

func WithAccuracyLogger(l *logger.Logger) AccuracyOption {
	return func(a *AccuracyTracker) { a.log = l }
}

func WithAccuracyClock(now func() time.Time) AccuracyOption {
	return func(a *AccuracyTracker) { a.now = now }
}

// NewAccuracyTracker builds the tracker. expectedPairs is the denominator of
// the global accuracy strings.
func NewAccuracyTracker(history *HistoryStore, expectedPairs int, opts ...AccuracyOption) *AccuracyTracker {
	if expectedPairs <= 0 {
		expectedPairs = 98
	}
	a := &AccuracyTracker{
		history:       history,
		expectedPairs: expectedPairs,
		log:           logger.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastReset = a.now()
	return a
}

// RecordOutcome counts one resolved prediction of cycleID for pair. A cycle
// already recorded for the pair is ignored; the returned bool reports
// whether the counters changed.
func (a *AccuracyTracker) RecordOutcome(ctx context.Context, pairAddress string, hit bool, cycleID string) (bool, error) {
	now := a.now()
	changed, err := a.history.UpdateAccuracy(ctx, pairAddress, func(acc *models.PredictionAccuracy) bool {
		if cycleID != "" && acc.LastRecordedCycle == cycleID {
			return false
		}
		acc.CurrentTotal++
		if hit {
			acc.CurrentHits++
		}
		at := now
		acc.LastPredictionTime = &at
		acc.LastRecordedCycle = cycleID
		return true
	})
	if err != nil {
		return false, fmt.Errorf("record outcome: %w", err)
	}
	return changed, nil
}

// HandleOutcome adapts RecordOutcome to a monitor outcome sink.
func (a *AccuracyTracker) HandleOutcome(ctx context.Context, o models.Outcome) {
	changed, err := a.RecordOutcome(ctx, o.PairAddress, o.Hit, o.CycleID)
	if err != nil {
		a.log.Error("record outcome failed", logger.Pair(o.PairAddress), logger.Error(err))
		return
	}
	if !changed {
		a.log.Debug("outcome already recorded", logger.Pair(o.PairAddress), logger.String("cycle", o.CycleID))
	}
}

// RotatePeriods closes the running period of every pair: past takes the
// current counters and current starts from zero. Rotating twice without new
// outcomes leaves the past counters at zero.
func (a *AccuracyTracker) RotatePeriods(ctx context.Context) error {
	now := a.now()
	err := a.eachPair(ctx, func(acc *models.PredictionAccuracy) bool {
		acc.PastHits = acc.CurrentHits
		acc.PastTotal = acc.CurrentTotal
		acc.CurrentHits = 0
		acc.CurrentTotal = 0
		at := now
		acc.LastResetTime = &at
		return true
	})

	a.mu.Lock()
	a.periods++
	a.lastReset = now
	a.rotated = true
	periods := a.periods
	a.mu.Unlock()

	a.log.Info("accuracy periods rotated", logger.Int("periods", periods))
	return err
}

// ResetAll zeroes every counter of every pair.
func (a *AccuracyTracker) ResetAll(ctx context.Context) error {
	now := a.now()
	err := a.eachPair(ctx, func(acc *models.PredictionAccuracy) bool {
		at := now
		*acc = models.PredictionAccuracy{LastResetTime: &at, LastPredictionTime: acc.LastPredictionTime}
		return true
	})

	a.mu.Lock()
	a.periods = 0
	a.lastReset = now
	a.rotated = true
	a.mu.Unlock()
	return err
}

func (a *AccuracyTracker) eachPair(ctx context.Context, fn func(*models.PredictionAccuracy) bool) error {
	pairs, err := a.history.GetAllPairAddresses(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, pair := range pairs {
		if _, err := a.history.UpdateAccuracy(ctx, pair, fn); err != nil {
			a.log.Error("update accuracy failed", logger.Pair(pair), logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GlobalStats sums the counters of every pair. Until this process rotates
// or resets, the reset time is the newest one persisted on the pairs.
func (a *AccuracyTracker) GlobalStats(ctx context.Context) (models.GlobalStats, error) {
	recs, err := a.history.ListRecords(ctx)
	if err != nil {
		return models.GlobalStats{}, fmt.Errorf("global stats: %w", err)
	}

	st := models.GlobalStats{ExpectedPairs: a.expectedPairs, ActiveTokens: len(recs)}
	var stored time.Time
	for _, r := range recs {
		acc := r.PredictionAccuracy
		if acc.LastResetTime != nil && acc.LastResetTime.After(stored) {
			stored = *acc.LastResetTime
		}
		st.PastHits += acc.PastHits
		st.PastTotal += acc.PastTotal
		st.CurrentHits += acc.CurrentHits
		st.CurrentTotal += acc.CurrentTotal
	}
	st.PastAccuracy = FormatAccuracy(st.PastHits, st.PastTotal, a.expectedPairs)
	st.CurrentAccuracy = FormatAccuracy(st.CurrentHits, st.CurrentTotal, a.expectedPairs)

	a.mu.Lock()
	st.PredictionPeriods = a.periods
	reset := a.lastReset
	if !a.rotated && !stored.IsZero() {
		reset = stored
	}
	a.mu.Unlock()
	st.LastResetTime = &reset
	return st, nil
}

// FormatAccuracy renders "hits/denominator (pct%)", or "N/A" when nothing
// was recorded.
func FormatAccuracy(hits, total, denominator int) string {
	if total <= 0 || denominator <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d/%d (%.2f%%)", hits, denominator, float64(hits)/float64(denominator)*100)
}
