package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/cache"
)

func sampleRecord(addr string) *models.TokenPairRecord {
	ts := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	return &models.TokenPairRecord{
		PairAddress:        addr,
		TargetTokenAddress: "0xAAA",
		PairName:           "CAKE/WBNB",
		CurrentPrice:       models.Float(2.5),
		PriceHistory:       []models.PricePoint{{Price: 2.4, Timestamp: ts}, {Price: 2.5, Timestamp: ts.Add(time.Hour)}},
		PredictionWindow:   models.PredictionWindow{Start: ts, Expiry: ts.Add(4 * time.Hour)},
		PredictionAccuracy: models.PredictionAccuracy{CurrentHits: 1, CurrentTotal: 2},
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPairStores(t *testing.T) {
	stores := map[string]domrepo.PairStore{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "0xPAIR")
			assert.ErrorIs(t, err, domrepo.ErrNotFound)

			require.NoError(t, s.Save(ctx, sampleRecord("0xPAIR")))
			require.NoError(t, s.Save(ctx, sampleRecord("0xabc")))

			got, err := s.Get(ctx, "0xpair")
			require.NoError(t, err)
			assert.Equal(t, "0xpair", got.PairAddress)
			require.NotNil(t, got.CurrentPrice)
			assert.InDelta(t, 2.5, *got.CurrentPrice, 1e-12)
			require.Len(t, got.PriceHistory, 2)
			assert.True(t, got.PredictionWindow.Start.Equal(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)))
			assert.Equal(t, 2, got.PredictionAccuracy.CurrentTotal)

			got.PairName = "changed"
			again, err := s.Get(ctx, "0xpair")
			require.NoError(t, err)
			assert.Equal(t, "CAKE/WBNB", again.PairName, "stored record must not alias the returned copy")

			addrs, err := s.ListAddresses(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"0xabc", "0xpair"}, addrs)

			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			got.CurrentPrice = models.Float(3)
			require.NoError(t, s.Save(ctx, got))
			upd, err := s.Get(ctx, "0xPAIR")
			require.NoError(t, err)
			assert.InDelta(t, 3.0, *upd.CurrentPrice, 1e-12)
			assert.NoError(t, s.Health(ctx))
		})
	}
}

func TestTradeLogStores(t *testing.T) {
	stores := map[string]domrepo.TradeLogStore{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t),
	}
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	amt := decimal.RequireFromString("123456789012345678901234.5")

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			buy := &models.TradeLog{Type: models.TradeBuy, TokenIn: "0x1", TokenOut: "0x2", AmountIn: &amt, AmountOut: &amt, TxHash: "0xtx1", Timestamp: base}
			dep := &models.TradeLog{Type: models.TradeDeposit, Token: "0x1", Amount: &amt, TxHash: "0xtx2", Timestamp: base.Add(time.Minute)}

			ok, err := s.Insert(ctx, buy)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Insert(ctx, buy)
			require.NoError(t, err)
			assert.False(t, ok, "same tx hash and type is a duplicate")
			ok, err = s.Insert(ctx, dep)
			require.NoError(t, err)
			assert.True(t, ok)

			all, err := s.ListTrades(ctx, "", 10)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "0xtx2", all[0].TxHash, "newest first")
			require.NotNil(t, all[0].Amount)
			assert.True(t, amt.Equal(*all[0].Amount))
			assert.Nil(t, all[0].AmountIn)

			buys, err := s.ListTrades(ctx, models.TradeBuy, 10)
			require.NoError(t, err)
			require.Len(t, buys, 1)
			assert.Equal(t, models.TradeBuy, buys[0].Type)

			one, err := s.ListTrades(ctx, "", 1)
			require.NoError(t, err)
			assert.Len(t, one, 1)
		})
	}
}

func TestCacheMonitorStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	s := NewCacheMonitorStore(mc, time.Hour)

	now := time.Now().UTC().Truncate(time.Second)
	st := models.MonitorState{
		PairAddress:      "0xABC",
		TargetPrice:      1.5,
		PredictionStart:  now,
		PredictionExpiry: now.Add(4 * time.Hour),
		HitStatus:        models.HitNotReached,
		TargetPriceDiff:  models.Float(2),
	}
	require.NoError(t, s.Save(ctx, st))
	st.PairAddress = "0xdef"
	require.NoError(t, s.Save(ctx, st))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0xABC", all[0].PairAddress)
	assert.InDelta(t, 1.5, all[0].TargetPrice, 1e-12)
	require.NotNil(t, all[0].TargetPriceDiff)
	assert.True(t, all[0].PredictionExpiry.Equal(now.Add(4*time.Hour)))

	require.NoError(t, s.Delete(ctx, "0xabc"))
	all, err = s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "0xdef", all[0].PairAddress)
}

type fakeProducer struct {
	topics []string
	keys   []string
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, _ interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, string(key))
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestEventPublisherRoutesByType(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProducer{}
	p := newEventPublisher(fp, EventTopics{Signals: "sig", Outcomes: "out"}, nil)

	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventSignalEmitted, PairAddress: "0x1"}))
	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventForecastGenerated, PairAddress: "0x1"}))
	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventOutcomeRecorded, PairAddress: "0x2"}))
	require.NoError(t, p.Publish(ctx, models.Event{Type: models.EventTargetSuperseded, PairAddress: "0x2"}))
	require.NoError(t, p.PublishMessage(ctx, "logs", []string{"x"}))

	assert.Equal(t, []string{"sig", "sig", "out", "out", "logs"}, fp.topics)
	assert.Equal(t, []string{"0x1", "0x1", "0x2", "0x2", ""}, fp.keys)

	fp.err = errors.New("broker down")
	assert.Error(t, p.Publish(ctx, models.Event{Type: models.EventSignalEmitted}))
}
