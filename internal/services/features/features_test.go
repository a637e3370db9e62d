package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/internal/domain/models"
)

func hourly(prices ...float64) []models.PricePoint {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{Price: p, Timestamp: base.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSMAAndEMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}

	sma := SMA(vals, 3)
	assert.Nil(t, sma[1])
	require.NotNil(t, sma[2])
	assert.InDelta(t, 2.0, *sma[2], 1e-12)
	assert.InDelta(t, 4.0, *sma[4], 1e-12)

	ema := EMA(vals, 3)
	assert.Nil(t, ema[1])
	require.NotNil(t, ema[2])
	assert.InDelta(t, 2.0, *ema[2], 1e-12) // seeded with the SMA
	assert.InDelta(t, 3.0, *ema[3], 1e-12) // (4-2)*0.5+2
	assert.InDelta(t, 4.0, *ema[4], 1e-12)
}

func TestRSIBounds(t *testing.T) {
	up := RSI(ramp(20), 14)
	assert.Nil(t, up[13])
	require.NotNil(t, up[14])
	assert.InDelta(t, 100.0, *up[14], 1e-9)

	flat := RSI([]float64{5, 5, 5, 5, 5}, 3)
	require.NotNil(t, flat[3])
	assert.InDelta(t, 50.0, *flat[3], 1e-9)

	mixed := RSI([]float64{1, 2, 1, 2, 1, 2, 1}, 2)
	for _, v := range mixed {
		if v != nil {
			assert.GreaterOrEqual(t, *v, 0.0)
			assert.LessOrEqual(t, *v, 100.0)
		}
	}
}

func TestMACDWarmup(t *testing.T) {
	res := MACD(ramp(40), 12, 26, 9)
	assert.Nil(t, res.MACD[24])
	require.NotNil(t, res.MACD[25])
	assert.Nil(t, res.Signal[32])
	require.NotNil(t, res.Signal[33])
	require.NotNil(t, res.Histogram[33])
	assert.InDelta(t, *res.MACD[33]-*res.Signal[33], *res.Histogram[33], 1e-12)
	// a steady ramp has a positive, constant MACD line
	assert.Greater(t, *res.MACD[39], 0.0)
}

func TestMACDInvalidPeriods(t *testing.T) {
	res := MACD(ramp(40), 26, 12, 9)
	assert.Nil(t, res.MACD.Last())
}

func TestMinMaxScaler(t *testing.T) {
	s := NewMinMaxScaler([]float64{10, 20, 15})
	assert.InDelta(t, 0.0, s.Scale(10), 1e-12)
	assert.InDelta(t, 1.0, s.Scale(20), 1e-12)
	assert.InDelta(t, 15.0, s.Inverse(s.Scale(15)), 1e-12)

	flat := NewMinMaxScaler([]float64{7, 7})
	assert.InDelta(t, 0.0, flat.Scale(7), 1e-12)
	assert.InDelta(t, 7.0, flat.Inverse(0), 1e-12)
}

func TestHorizonIndexUsesTime(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := []time.Time{
		base,
		base.Add(1 * time.Hour),
		base.Add(3*time.Hour + 59*time.Minute),
		base.Add(6 * time.Hour),
		base.Add(7 * time.Hour),
	}
	assert.Equal(t, 3, HorizonIndex(ts, 0, 4*time.Hour))
	assert.Equal(t, 3, HorizonIndex(ts, 1, 4*time.Hour))
	assert.Equal(t, -1, HorizonIndex(ts, 3, 4*time.Hour))
}

func TestBuildSequenceDataset(t *testing.T) {
	history := hourly(ramp(10)...)
	p := Params{Lookback: 3, Horizon: 4 * time.Hour}
	scaler := NewMinMaxScaler(ramp(10))

	ds := BuildSequenceDataset(history, p, scaler)
	// windows end at 2..9, a label exists only when last+4 <= 9
	require.Equal(t, 4, ds.Len())
	assert.Len(t, ds.X[0], 3)
	assert.InDelta(t, scaler.Scale(1), ds.X[0][0], 1e-12)
	assert.InDelta(t, scaler.Scale(7), ds.Y[0], 1e-12)
	assert.InDelta(t, scaler.Scale(10), ds.Y[3], 1e-12)
}

func TestBuildSequenceDatasetTooShort(t *testing.T) {
	ds := BuildSequenceDataset(hourly(1, 2, 3), Params{Lookback: 3, Horizon: time.Hour}, NewMinMaxScaler([]float64{1, 3}))
	assert.Zero(t, ds.Len())
}

func TestLatestWindow(t *testing.T) {
	history := hourly(1, 2, 3, 4, 5)
	scaler := NewMinMaxScaler([]float64{1, 5})
	w := LatestWindow(history, 2, scaler)
	require.Len(t, w, 2)
	assert.InDelta(t, 0.75, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[1], 1e-12)
	assert.Nil(t, LatestWindow(history, 6, scaler))
}

func TestFeatureRowsAndDataset(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i%7) - float64(i%3)
	}
	history := hourly(prices...)
	p := Params{RSIPeriod: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9, Horizon: 4 * time.Hour}

	rows := FeatureRows(history, p)
	require.NotEmpty(t, rows)
	assert.Equal(t, 33, rows[0].Index, "macd signal warms up last")
	for _, r := range rows {
		assert.Len(t, r.Features, 3)
	}

	ds := BuildFeatureDataset(rows, p, NewMinMaxScaler(prices))
	assert.Equal(t, len(rows)-4, ds.Len())

	ind := LatestIndicators(history, p)
	assert.NotNil(t, ind.RSI)
	assert.NotNil(t, ind.MACD)
	assert.NotNil(t, ind.MACDSignal)
	assert.NotNil(t, ind.MACDHistogram)
}

func TestLogReturnsAndVolatility(t *testing.T) {
	r := ComputeLogReturns([]float64{1, 1, 1, 1})
	require.Len(t, r, 3)
	assert.Zero(t, RealizedVolatility(r, 3))
	assert.Nil(t, ComputeLogReturns([]float64{1}))

	v := RealizedVolatility(ComputeLogReturns([]float64{1, 2, 1, 2, 1}), 4)
	assert.Greater(t, v, 0.0)
}
