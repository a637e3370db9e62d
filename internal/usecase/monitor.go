package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/logger"
	"DexSignal/pkg/util"
)

// OutcomeSink is notified once per resolved monitor entry.
type OutcomeSink func(ctx context.Context, o models.Outcome)

// PriceTargetMonitor tracks, per pair, whether the live price reaches the
// forecast target before the window expires. Each entry resolves at most
// once: NotReached becomes Reached or Expired and is then recorded.
type PriceTargetMonitor struct {
	mu      sync.RWMutex
	entries map[string]*models.MonitorState

	history    *HistoryStore
	store      drepo.MonitorStateStore
	sinks      []OutcomeSink
	superseded func(ctx context.Context, prev models.MonitorState)
	staleAfter time.Duration
	metrics    drepo.Metrics
	log        *logger.Logger
}

type MonitorOption func(*PriceTargetMonitor)

// WithMonitorStore persists every entry change.
func WithMonitorStore(s drepo.MonitorStateStore) MonitorOption {
	return func(m *PriceTargetMonitor) { m.store = s }
}

// WithOutcomeSink adds a receiver of resolved outcomes.
func WithOutcomeSink(s OutcomeSink) MonitorOption {
	return func(m *PriceTargetMonitor) { m.sinks = append(m.sinks, s) }
}

// WithSupersededHook is called when a new target replaces an unresolved one
// of an earlier window.
func WithSupersededHook(fn func(ctx context.Context, prev models.MonitorState)) MonitorOption {
	return func(m *PriceTargetMonitor) { m.superseded = fn }
}

func WithMonitorMetrics(mt drepo.Metrics) MonitorOption {
	return func(m *PriceTargetMonitor) { m.metrics = mt }
}

func WithMonitorLogger(l *logger.Logger) MonitorOption {
	return func(m *PriceTargetMonitor) { m.log = l }
}

func NewPriceTargetMonitor(history *HistoryStore, staleAfter time.Duration, opts ...MonitorOption) *PriceTargetMonitor {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	m := &PriceTargetMonitor{
		entries:    make(map[string]*models.MonitorState),
		history:    history,
		staleAfter: staleAfter,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSink registers an outcome receiver after construction.
func (m *PriceTargetMonitor) AddSink(s OutcomeSink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

// Restore loads persisted entries, replacing the in-memory map.
func (m *PriceTargetMonitor) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	states, err := m.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*models.MonitorState, len(states))
	for _, st := range states {
		st := st.Clone()
		st.PairAddress = util.NormalizeAddress(st.PairAddress)
		m.entries[st.PairAddress] = &st
	}
	return len(states), nil
}

// UpdateTarget creates or resets the entry of pair to NotReached.
func (m *PriceTargetMonitor) UpdateTarget(ctx context.Context, pairAddress string, target float64, window models.PredictionWindow) {
	pair := util.NormalizeAddress(pairAddress)

	m.mu.Lock()
	prev, had := m.entries[pair]
	var prevCopy models.MonitorState
	replacing := had && !prev.Recorded && !prev.PredictionStart.Equal(window.Start)
	if replacing {
		prevCopy = prev.Clone()
	}
	st := &models.MonitorState{
		PairAddress:      pair,
		TargetPrice:      target,
		PredictionStart:  window.Start,
		PredictionExpiry: window.Expiry,
		HitStatus:        models.HitNotReached,
	}
	if had {
		st.LastChecked = prev.LastChecked
	}
	m.entries[pair] = st
	snapshot := st.Clone()
	m.mu.Unlock()

	m.log.Info("monitor target set", logger.Pair(pair), logger.Float64("target", target),
		logger.Time("start", window.Start), logger.Time("expiry", window.Expiry))
	if replacing && m.superseded != nil {
		m.superseded(ctx, prevCopy)
	}
	m.persist(ctx, snapshot)
}

// CheckTargets evaluates every unrecorded entry against the stored current
// price and returns the outcomes it resolved.
func (m *PriceTargetMonitor) CheckTargets(ctx context.Context, now time.Time) []models.Outcome {
	var outcomes []models.Outcome
	var changed []models.MonitorState

	for _, pair := range m.unrecorded() {
		rec, err := m.history.GetRecord(ctx, pair)
		if err != nil || rec.CurrentPrice == nil {
			continue
		}
		price := *rec.CurrentPrice

		m.mu.Lock()
		st, ok := m.entries[pair]
		if !ok || st.Recorded {
			m.mu.Unlock()
			continue
		}
		if price > 0 {
			st.TargetPriceDiff = models.Float((st.TargetPrice/price - 1) * 100)
		}
		st.LastChecked = now

		switch {
		case price >= st.TargetPrice:
			outcomes = append(outcomes, resolve(st, models.HitReached, true, &price, now))
		case !now.Before(st.PredictionExpiry):
			outcomes = append(outcomes, resolve(st, models.HitExpired, false, &price, now))
		}
		changed = append(changed, st.Clone())
		m.mu.Unlock()
	}

	for _, st := range changed {
		m.persist(ctx, st)
	}
	m.emit(ctx, outcomes)
	return outcomes
}

func resolve(st *models.MonitorState, status models.HitStatus, hit bool, price *float64, now time.Time) models.Outcome {
	at := now
	st.HitStatus = status
	st.HitTime = &at
	st.Recorded = true
	return models.Outcome{
		PairAddress: st.PairAddress,
		CycleID:     st.Window().CycleID(),
		Hit:         hit,
		Status:      status,
		TargetPrice: st.TargetPrice,
		Price:       copyFloat(price),
		Window:      st.Window(),
		ResolvedAt:  now,
	}
}

func (m *PriceTargetMonitor) unrecorded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for pair, st := range m.entries {
		if !st.Recorded {
			out = append(out, pair)
		}
	}
	sort.Strings(out)
	return out
}

// CleanupExpired removes entries that are recorded and past expiry.
func (m *PriceTargetMonitor) CleanupExpired(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var removed []string
	for pair, st := range m.entries {
		if st.Recorded && !now.Before(st.PredictionExpiry) {
			delete(m.entries, pair)
			removed = append(removed, pair)
		}
	}
	m.mu.Unlock()

	m.forget(ctx, removed)
	return len(removed)
}

// CleanupAll removes every entry that is past expiry or has not been checked
// within the stale period. An unrecorded entry past expiry is recorded as a
// miss before it goes.
func (m *PriceTargetMonitor) CleanupAll(ctx context.Context, now time.Time) int {
	var outcomes []models.Outcome
	var removed []string

	m.mu.Lock()
	for pair, st := range m.entries {
		expired := !now.Before(st.PredictionExpiry)
		idleSince := st.LastChecked
		if idleSince.IsZero() {
			idleSince = st.PredictionStart
		}
		stale := now.Sub(idleSince) > m.staleAfter
		if !expired && !stale {
			continue
		}
		if expired && !st.Recorded {
			outcomes = append(outcomes, resolve(st, models.HitExpired, false, nil, now))
		}
		delete(m.entries, pair)
		removed = append(removed, pair)
	}
	m.mu.Unlock()

	m.emit(ctx, outcomes)
	m.forget(ctx, removed)
	if len(removed) > 0 {
		m.log.Info("monitor sweep", logger.Int("removed", len(removed)), logger.Int("expired_unrecorded", len(outcomes)))
	}
	return len(removed)
}

// Status returns a copy of the entry of pair, or a NotReached default.
func (m *PriceTargetMonitor) Status(pairAddress string) models.MonitorState {
	pair := util.NormalizeAddress(pairAddress)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.entries[pair]; ok {
		return st.Clone()
	}
	return models.MonitorState{PairAddress: pair, HitStatus: models.HitNotReached}
}

// Len returns the number of tracked entries.
func (m *PriceTargetMonitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *PriceTargetMonitor) emit(ctx context.Context, outcomes []models.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	m.mu.RLock()
	sinks := append([]OutcomeSink(nil), m.sinks...)
	m.mu.RUnlock()

	for _, o := range outcomes {
		m.log.Info("target resolved", logger.Pair(o.PairAddress), logger.String("status", string(o.Status)),
			logger.Float64("target", o.TargetPrice), logger.OptFloat("price", o.Price))
		if m.metrics != nil {
			m.metrics.RecordOutcome(o.Hit)
		}
		for _, s := range sinks {
			s(ctx, o)
		}
	}
}

func (m *PriceTargetMonitor) persist(ctx context.Context, st models.MonitorState) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, st); err != nil {
		m.log.Warn("persist monitor state failed", logger.Pair(st.PairAddress), logger.Error(err))
	}
}

func (m *PriceTargetMonitor) forget(ctx context.Context, pairs []string) {
	if m.store == nil {
		return
	}
	for _, p := range pairs {
		if err := m.store.Delete(ctx, p); err != nil {
			m.log.Warn("delete monitor state failed", logger.Pair(p), logger.Error(err))
		}
	}
}
