package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type captureArchive struct {
	rows []models.ArchiveRow
	err  error
}

func (a *captureArchive) Enqueue(row models.ArchiveRow) error {
	if a.err != nil {
		return a.err
	}
	a.rows = append(a.rows, row)
	return nil
}

type captureHub struct{ events []models.Event }

func (h *captureHub) Broadcast(ev models.Event) { h.events = append(h.events, ev) }

func TestNotifierFansOut(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	arch := &captureArchive{}
	hub := &captureHub{}
	n := NewNotifier(nil, WithEventPublisher(pub), WithArchiveSink(arch), WithBroadcaster(hub),
		WithNotifierClock(func() time.Time { return testNow }))

	n.Tick(ctx, &models.MarketSnapshot{PairAddress: testPair, Price: 2.5})
	n.ForecastGenerated(ctx, models.ForecastResult{PairAddress: testPair})
	n.ForecastGenerated(ctx, models.ForecastResult{PairAddress: testPair, CombinedPrediction: models.Float(2.6)})
	n.SignalEmitted(ctx, models.PairSignal{PairAddress: testPair})
	n.HandleOutcome(ctx, models.Outcome{PairAddress: testPair, Hit: true, Status: models.HitReached})
	n.TargetSuperseded(ctx, models.MonitorState{PairAddress: testPair})

	assert.Equal(t, []models.EventType{
		models.EventForecastGenerated,
		models.EventForecastGenerated,
		models.EventSignalEmitted,
		models.EventOutcomeRecorded,
		models.EventTargetSuperseded,
	}, pub.types())
	assert.Len(t, hub.events, 5)
	for _, ev := range pub.events {
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, testNow, ev.OccurredAt)
		assert.Equal(t, testPair, ev.PairAddress)
	}

	require.Len(t, arch.rows, 3, "forecasts without a prediction are not archived")
	assert.Equal(t, models.ArchiveTick, arch.rows[0].Kind)
	assert.Equal(t, models.ArchiveForecast, arch.rows[1].Kind)
	assert.Equal(t, models.ArchiveOutcome, arch.rows[2].Kind)
}

func TestNotifierToleratesFailingOutputs(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{err: errors.New("broker down")}
	arch := &captureArchive{err: errors.New("buffer full")}
	n := NewNotifier(nil, WithEventPublisher(pub), WithArchiveSink(arch))

	assert.NotPanics(t, func() {
		n.Tick(ctx, &models.MarketSnapshot{PairAddress: testPair})
		n.HandleOutcome(ctx, models.Outcome{PairAddress: testPair})
	})
	assert.Len(t, pub.events, 1)
	assert.Empty(t, arch.rows)

	assert.NotPanics(t, func() {
		NewNotifier(nil).SignalEmitted(ctx, models.PairSignal{PairAddress: testPair})
	})
}

func TestNotifierResolvesTargetHistory(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, &clock{t: testNow}, HistoryConfig{})
	seedPair(t, h, testPair)
	w := models.PredictionWindow{Start: at(1, 13, 0), Expiry: at(1, 17, 0)}
	require.NoError(t, h.UpdateForecast(ctx, testPair, models.ForecastResult{
		CombinedPrediction: models.Float(2),
		TargetPrice:        models.Float(2.04),
		Window:             w,
	}))

	NewNotifier(h).HandleOutcome(ctx, models.Outcome{
		PairAddress: testPair,
		CycleID:     w.CycleID(),
		Status:      models.HitExpired,
		ResolvedAt:  w.Expiry,
	})

	rec, err := h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	assert.Equal(t, models.HitExpired, rec.TargetPriceHistory[0].HitStatus)
}
