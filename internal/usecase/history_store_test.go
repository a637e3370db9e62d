package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	"DexSignal/internal/repository"
)

func TestInitializeOrUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: testNow}
	h := newHistory(t, c, HistoryConfig{})

	rec, err := h.InitializeOrUpdateMetadata(ctx, models.PairMetadata{
		PairAddress:        testPair,
		TargetTokenAddress: testToken,
		TargetTokenSymbol:  "CAKE",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xpair000000000000000000000000000000000001", rec.PairAddress)
	assert.Equal(t, "N/A", rec.PredictionPredictedTime)
	assert.Equal(t, "N/A", rec.PredictionExpiryTime)
	assert.Equal(t, testNow, rec.LastUpdated)

	t.Run("unmonitored token is rejected", func(t *testing.T) {
		_, err := h.InitializeOrUpdateMetadata(ctx, models.PairMetadata{
			PairAddress:        otherPair,
			TargetTokenAddress: "0xdead",
		})
		assert.ErrorIs(t, err, drepo.ErrInvalidPair)
		_, err = h.GetRecord(ctx, otherPair)
		assert.ErrorIs(t, err, drepo.ErrNotFound)
	})

	t.Run("update keeps market data", func(t *testing.T) {
		require.NoError(t, h.MergeMarketData(ctx, testPair, 2.5, nil, nil, nil))
		rec, err := h.InitializeOrUpdateMetadata(ctx, models.PairMetadata{
			PairAddress:        testPair,
			TargetTokenAddress: testToken,
			TargetTokenSymbol:  "CAKE2",
		})
		require.NoError(t, err)
		assert.Equal(t, "CAKE2", rec.TargetTokenSymbol)
		require.NotNil(t, rec.CurrentPrice)
		assert.InDelta(t, 2.5, *rec.CurrentPrice, 1e-12)
	})
}

func TestMergeMarketData(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: testNow}
	h := newHistory(t, c, HistoryConfig{MaxAge: 24 * time.Hour, Retention: 4})
	seedPair(t, h, testPair)

	historical := []models.PricePoint{
		{Price: 1.0, Timestamp: testNow.Add(-48 * time.Hour)}, // outside the age window
		{Price: 2.0, Timestamp: testNow.Add(-3 * time.Hour)},
		{Price: 2.1, Timestamp: testNow.Add(-3*time.Hour + 400*time.Millisecond)},
		{Price: 2.2, Timestamp: testNow.Add(-2 * time.Hour)},
	}
	require.NoError(t, h.MergeMarketData(ctx, testPair, 2.5, models.Float(1000), nil, historical))

	prices, err := h.GetPriceHistory(ctx, testPair)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.InDelta(t, 2.1, prices[0].Price, 1e-12, "later sample of the same second wins")
	assert.InDelta(t, 2.2, prices[1].Price, 1e-12)
	assert.InDelta(t, 2.5, prices[2].Price, 1e-12)
	assert.Equal(t, testNow, prices[2].Timestamp)

	rec, err := h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	assert.Len(t, rec.VolumeHistory, 1)
	assert.Empty(t, rec.LiquidityHistory)
	assert.Nil(t, rec.CurrentLiquidity)

	for i := 0; i < 5; i++ {
		c.Advance(time.Minute)
		require.NoError(t, h.MergeMarketData(ctx, testPair, 3+float64(i), models.Float(1), models.Float(2), nil))
	}
	rec, err = h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	assert.Len(t, rec.PriceHistory, 4)
	assert.Len(t, rec.VolumeHistory, 4)
	assert.Len(t, rec.LiquidityHistory, 4)
	assert.InDelta(t, 7.0, rec.PriceHistory[3].Price, 1e-12)
	for i := 1; i < len(rec.PriceHistory); i++ {
		assert.True(t, rec.PriceHistory[i-1].Timestamp.Before(rec.PriceHistory[i].Timestamp))
	}
}

func TestMutateRejectsUnknownPair(t *testing.T) {
	h := newHistory(t, &clock{t: testNow}, HistoryConfig{})
	err := h.MergeMarketData(context.Background(), otherPair, 1, nil, nil, nil)
	assert.ErrorIs(t, err, drepo.ErrNotFound)

	prices, err := h.GetPriceHistory(context.Background(), otherPair)
	require.NoError(t, err)
	assert.Nil(t, prices)
}

func TestWritesSkipUnmonitoredToken(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Save(ctx, &models.TokenPairRecord{
		PairAddress:        otherPair,
		ChainID:            "bsc",
		TargetTokenAddress: "0x000000000000000000000000000000000000dEaD",
		TargetTokenSymbol:  "DEAD",
	}))
	h := NewHistoryStore(store, []string{testToken}, HistoryConfig{}, WithHistoryClock((&clock{t: testNow}).Now))

	before, err := h.GetRecord(ctx, otherPair)
	require.NoError(t, err)

	err = h.MergeMarketData(ctx, otherPair, 1, models.Float(10), models.Float(20), nil)
	assert.ErrorIs(t, err, drepo.ErrInvalidPair)

	err = h.UpdateForecast(ctx, otherPair, models.ForecastResult{
		PairAddress:        otherPair,
		CombinedPrediction: models.Float(2),
	})
	assert.ErrorIs(t, err, drepo.ErrInvalidPair)

	err = h.AppendSignalSnapshot(ctx, otherPair, models.SignalSnapshot{Signal: models.SignalHold})
	assert.ErrorIs(t, err, drepo.ErrInvalidPair)

	after, err := h.GetRecord(ctx, otherPair)
	require.NoError(t, err)
	assert.Empty(t, after.PriceHistory)
	assert.Empty(t, after.SignalHistory)
	assert.Nil(t, after.CurrentPrice)
	assert.Equal(t, before, after)
}

func TestAppendSignalSnapshotRing(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: testNow}
	h := newHistory(t, c, HistoryConfig{SignalLength: 3})
	seedPair(t, h, testPair)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.AppendSignalSnapshot(ctx, testPair, models.SignalSnapshot{
			Signal:          models.SignalHold,
			ConfidenceScore: float64(i),
		}))
	}
	rec, err := h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	require.Len(t, rec.SignalHistory, 3)
	assert.InDelta(t, 2.0, rec.SignalHistory[0].ConfidenceScore, 1e-12)
	last, ok := rec.LatestSignal()
	require.True(t, ok)
	assert.InDelta(t, 4.0, last.ConfidenceScore, 1e-12)
	assert.Equal(t, testNow, last.Timestamp)
}

func TestUpdateForecastTargets(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: testNow}
	h := newHistory(t, c, HistoryConfig{TargetLength: 2})
	seedPair(t, h, testPair)

	start := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	forecast := func(start time.Time, combined float64) models.ForecastResult {
		return models.ForecastResult{
			LSTMPrediction:     models.Float(combined),
			CombinedPrediction: models.Float(combined),
			TargetPrice:        models.Float(combined * 0.98),
			PriceAtPrediction:  models.Float(2.0),
			Window:             models.PredictionWindow{Start: start, Expiry: start.Add(4 * time.Hour)},
		}
	}

	require.NoError(t, h.UpdateForecast(ctx, testPair, forecast(start, 2.2)))
	require.NoError(t, h.UpdateForecast(ctx, testPair, forecast(start, 2.4)))

	rec, err := h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	require.Len(t, rec.TargetPriceHistory, 1, "same cycle replaces its entry")
	assert.InDelta(t, 2.4, rec.TargetPriceHistory[0].PredictedPrice, 1e-12)
	assert.Equal(t, models.HitNotReached, rec.TargetPriceHistory[0].HitStatus)
	assert.Equal(t, start, rec.PredictionWindow.Start)
	assert.NotEqual(t, "N/A", rec.PredictionPredictedTime)

	require.NoError(t, h.UpdateForecast(ctx, testPair, forecast(start.Add(4*time.Hour), 2.5)))
	require.NoError(t, h.UpdateForecast(ctx, testPair, forecast(start.Add(8*time.Hour), 2.6)))
	rec, err = h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	require.Len(t, rec.TargetPriceHistory, 2)
	assert.Equal(t, start.Add(4*time.Hour), rec.TargetPriceHistory[0].PredictionTime)

	require.NoError(t, h.UpdateForecast(ctx, testPair, models.ForecastResult{Details: "not enough data"}))
	rec, err = h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	assert.Equal(t, "N/A", rec.PredictionPredictedTime)
	assert.Equal(t, "N/A", rec.PredictionExpiryTime)
	assert.Nil(t, rec.TargetPriceUSD)
	assert.Equal(t, "not enough data", rec.ForecastDetails)
	assert.Len(t, rec.TargetPriceHistory, 2)
}

func TestResolveTarget(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, &clock{t: testNow}, HistoryConfig{})
	seedPair(t, h, testPair)

	w := models.PredictionWindow{Start: testNow.Truncate(time.Hour), Expiry: testNow.Truncate(time.Hour).Add(4 * time.Hour)}
	require.NoError(t, h.UpdateForecast(ctx, testPair, models.ForecastResult{
		CombinedPrediction: models.Float(2.2),
		TargetPrice:        models.Float(2.15),
		Window:             w,
	}))
	require.NoError(t, h.ResolveTarget(ctx, testPair, models.Outcome{
		CycleID:    w.CycleID(),
		Status:     models.HitReached,
		Price:      models.Float(2.16),
		ResolvedAt: testNow,
	}))
	require.NoError(t, h.ResolveTarget(ctx, testPair, models.Outcome{CycleID: "unknown", Status: models.HitExpired}))

	rec, err := h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	require.Len(t, rec.TargetPriceHistory, 1)
	got := rec.TargetPriceHistory[0]
	assert.Equal(t, models.HitReached, got.HitStatus)
	require.NotNil(t, got.HitTime)
	assert.Equal(t, testNow, *got.HitTime)
	require.NotNil(t, got.ActualPrice)
	assert.InDelta(t, 2.16, *got.ActualPrice, 1e-12)
}

func TestGetAllPairAddressesSortedDistinct(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, &clock{t: testNow}, HistoryConfig{})
	seedPair(t, h, otherPair)
	seedPair(t, h, testPair)

	addrs, err := h.GetAllPairAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0xpair000000000000000000000000000000000001",
		"0xpair000000000000000000000000000000000002",
	}, addrs)
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	ctx := context.Background()
	h := newHistory(t, &clock{t: testNow}, HistoryConfig{})
	seedPair(t, h, testPair)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.UpdateAccuracy(ctx, testPair, func(acc *models.PredictionAccuracy) bool {
				acc.CurrentTotal++
				return true
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := h.GetRecord(ctx, testPair)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.PredictionAccuracy.CurrentTotal)
	assert.Empty(t, h.locks.locks)
}
