package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
	"DexSignal/internal/repository"
	"DexSignal/pkg/cache"
)

type outcomeRecorder struct {
	got []models.Outcome
}

func (r *outcomeRecorder) sink(_ context.Context, o models.Outcome) { r.got = append(r.got, o) }

type monitorFixture struct {
	history *HistoryStore
	monitor *PriceTargetMonitor
	store   *repository.CacheMonitorStore
	out     *outcomeRecorder
	window  models.PredictionWindow
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	h := newHistory(t, &clock{t: testNow}, HistoryConfig{})
	seedPair(t, h, testPair)

	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	store := repository.NewCacheMonitorStore(c, time.Hour)
	out := &outcomeRecorder{}

	start := at(1, 13, 0)
	return &monitorFixture{
		history: h,
		monitor: NewPriceTargetMonitor(h, 2*time.Hour, WithMonitorStore(store), WithOutcomeSink(out.sink)),
		store:   store,
		out:     out,
		window:  models.PredictionWindow{Start: start, Expiry: start.Add(4 * time.Hour)},
	}
}

func (f *monitorFixture) setPrice(t *testing.T, price float64) {
	t.Helper()
	require.NoError(t, f.history.MergeMarketData(context.Background(), testPair, price, nil, nil, nil))
}

func TestCheckTargetsReachedOnce(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.monitor.UpdateTarget(ctx, testPair, 2.0, f.window)

	f.setPrice(t, 1.9)
	assert.Empty(t, f.monitor.CheckTargets(ctx, at(1, 14, 0)))
	st := f.monitor.Status(testPair)
	assert.Equal(t, models.HitNotReached, st.HitStatus)
	require.NotNil(t, st.TargetPriceDiff)
	assert.InDelta(t, (2.0/1.9-1)*100, *st.TargetPriceDiff, 1e-9)

	f.setPrice(t, 2.0)
	outcomes := f.monitor.CheckTargets(ctx, at(1, 15, 0))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Hit)
	assert.Equal(t, models.HitReached, outcomes[0].Status)
	assert.Equal(t, f.window.CycleID(), outcomes[0].CycleID)

	// a recorded entry never resolves again
	assert.Empty(t, f.monitor.CheckTargets(ctx, at(1, 16, 0)))
	assert.Len(t, f.out.got, 1)
	assert.True(t, f.monitor.Status(testPair).Recorded)
}

func TestCheckTargetsExpires(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.monitor.UpdateTarget(ctx, testPair, 3.0, f.window)
	f.setPrice(t, 2.0)

	outcomes := f.monitor.CheckTargets(ctx, f.window.Expiry)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Hit)
	assert.Equal(t, models.HitExpired, outcomes[0].Status)
	require.NotNil(t, outcomes[0].Price)
	assert.InDelta(t, 2.0, *outcomes[0].Price, 1e-12)
}

func TestCheckTargetsSkipsPairsWithoutPrice(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.monitor.UpdateTarget(ctx, testPair, 3.0, f.window)
	assert.Empty(t, f.monitor.CheckTargets(ctx, f.window.Expiry.Add(time.Hour)))
}

func TestUpdateTargetSupersedesUnresolvedWindow(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	var superseded []models.MonitorState
	WithSupersededHook(func(_ context.Context, prev models.MonitorState) {
		superseded = append(superseded, prev)
	})(f.monitor)

	f.monitor.UpdateTarget(ctx, testPair, 2.0, f.window)
	f.monitor.UpdateTarget(ctx, testPair, 2.1, f.window)
	assert.Empty(t, superseded, "same window is a refresh")

	next := models.PredictionWindow{Start: f.window.Expiry, Expiry: f.window.Expiry.Add(4 * time.Hour)}
	f.monitor.UpdateTarget(ctx, testPair, 2.2, next)
	require.Len(t, superseded, 1)
	assert.InDelta(t, 2.1, superseded[0].TargetPrice, 1e-12)

	st := f.monitor.Status(testPair)
	assert.Equal(t, models.HitNotReached, st.HitStatus)
	assert.False(t, st.Recorded)
	assert.Equal(t, next.Start, st.PredictionStart)
	assert.Equal(t, 1, f.monitor.Len())
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.monitor.UpdateTarget(ctx, testPair, 2.0, f.window)

	restored := NewPriceTargetMonitor(f.history, time.Hour, WithMonitorStore(f.store))
	n, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	st := restored.Status(testPair)
	assert.InDelta(t, 2.0, st.TargetPrice, 1e-12)
	assert.True(t, st.PredictionStart.Equal(f.window.Start))
}

func TestCleanupExpiredKeepsOpenEntries(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.monitor.UpdateTarget(ctx, testPair, 2.0, f.window)

	assert.Zero(t, f.monitor.CleanupExpired(ctx, f.window.Expiry.Add(time.Hour)), "unrecorded entries stay")

	f.setPrice(t, 2.5)
	require.Len(t, f.monitor.CheckTargets(ctx, at(1, 14, 0)), 1)
	assert.Zero(t, f.monitor.CleanupExpired(ctx, at(1, 15, 0)))
	assert.Equal(t, 1, f.monitor.CleanupExpired(ctx, f.window.Expiry))
	assert.Zero(t, f.monitor.Len())

	states, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestCleanupAllRecordsExpiredMisses(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	f.monitor.UpdateTarget(ctx, testPair, 2.0, f.window)

	assert.Zero(t, f.monitor.CleanupAll(ctx, at(1, 14, 0)))
	assert.Equal(t, 1, f.monitor.CleanupAll(ctx, f.window.Expiry))
	require.Len(t, f.out.got, 1)
	assert.Equal(t, models.HitExpired, f.out.got[0].Status)
	assert.Nil(t, f.out.got[0].Price)
	assert.Equal(t, models.HitNotReached, f.monitor.Status(testPair).HitStatus)
}

func TestCleanupAllDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	f := newMonitorFixture(t)
	long := models.PredictionWindow{Start: f.window.Start, Expiry: f.window.Start.Add(48 * time.Hour)}
	f.monitor.UpdateTarget(ctx, testPair, 2.0, long)

	assert.Equal(t, 1, f.monitor.CleanupAll(ctx, long.Start.Add(3*time.Hour)))
	assert.Empty(t, f.out.got, "stale but unexpired entries are not outcomes")
}
