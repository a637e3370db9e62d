package features

import (
	"math"
	"time"

	"DexSignal/internal/domain/models"
)

// Params are the indicator and horizon settings shared by training and
// inference.
type Params struct {
	Lookback   int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	Horizon    time.Duration
}

// FeatureRow is one history sample with every indicator defined.
type FeatureRow struct {
	Index     int
	Price     float64
	Timestamp time.Time
	Features  []float64 // rsi, macd, macd signal
}

// Dataset is a supervised set of scaled inputs and scaled labels.
type Dataset struct {
	X [][]float64
	Y []float64
}

func (d Dataset) Len() int { return len(d.Y) }

// HorizonIndex returns the first index j > from whose timestamp is at least
// horizon after history[from], or -1. Samples are irregularly spaced, so the
// label is found by time and never by a fixed offset.
func HorizonIndex(ts []time.Time, from int, horizon time.Duration) int {
	for j := from + 1; j < len(ts); j++ {
		if ts[j].Sub(ts[from]) >= horizon {
			return j
		}
	}
	return -1
}

// BuildSequenceDataset slides a lookback window over the history. The label
// of a window is the price nearest to horizon after the window's last sample.
func BuildSequenceDataset(history []models.PricePoint, p Params, scaler MinMaxScaler) Dataset {
	var ds Dataset
	if p.Lookback <= 0 || len(history) <= p.Lookback {
		return ds
	}
	ts := timestamps(history)
	for i := 0; i+p.Lookback <= len(history); i++ {
		last := i + p.Lookback - 1
		j := HorizonIndex(ts, last, p.Horizon)
		if j < 0 {
			continue
		}
		window := make([]float64, p.Lookback)
		for k := 0; k < p.Lookback; k++ {
			window[k] = scaler.Scale(history[i+k].Price)
		}
		ds.X = append(ds.X, window)
		ds.Y = append(ds.Y, scaler.Scale(history[j].Price))
	}
	return ds
}

// LatestWindow returns the scaled final lookback window, or nil if the
// history is too short.
func LatestWindow(history []models.PricePoint, lookback int, scaler MinMaxScaler) []float64 {
	if lookback <= 0 || len(history) < lookback {
		return nil
	}
	window := make([]float64, lookback)
	off := len(history) - lookback
	for k := range window {
		window[k] = scaler.Scale(history[off+k].Price)
	}
	return window
}

// FeatureRows computes RSI and MACD over the history and keeps only samples
// where rsi, macd and macd signal are all defined.
func FeatureRows(history []models.PricePoint, p Params) []FeatureRow {
	prices := make([]float64, len(history))
	for i, h := range history {
		prices[i] = h.Price
	}
	rsi := RSI(prices, p.RSIPeriod)
	macd := MACD(prices, p.MACDFast, p.MACDSlow, p.MACDSignal)

	rows := make([]FeatureRow, 0, len(history))
	for i, h := range history {
		if rsi[i] == nil || macd.MACD[i] == nil || macd.Signal[i] == nil {
			continue
		}
		rows = append(rows, FeatureRow{
			Index:     i,
			Price:     h.Price,
			Timestamp: h.Timestamp,
			Features:  []float64{*rsi[i], *macd.MACD[i], *macd.Signal[i]},
		})
	}
	return rows
}

// BuildFeatureDataset labels each feature row with the scaled price of the
// first later row at least horizon ahead.
func BuildFeatureDataset(rows []FeatureRow, p Params, scaler MinMaxScaler) Dataset {
	var ds Dataset
	ts := make([]time.Time, len(rows))
	for i, r := range rows {
		ts[i] = r.Timestamp
	}
	for i := 0; i < len(rows)-1; i++ {
		j := HorizonIndex(ts, i, p.Horizon)
		if j < 0 {
			continue
		}
		ds.X = append(ds.X, append([]float64(nil), rows[i].Features...))
		ds.Y = append(ds.Y, scaler.Scale(rows[j].Price))
	}
	return ds
}

// LatestIndicators returns the indicator values at the final sample.
func LatestIndicators(history []models.PricePoint, p Params) models.Indicators {
	prices := make([]float64, len(history))
	for i, h := range history {
		prices[i] = h.Price
	}
	macd := MACD(prices, p.MACDFast, p.MACDSlow, p.MACDSignal)
	return models.Indicators{
		RSI:           RSI(prices, p.RSIPeriod).Last(),
		MACD:          macd.MACD.Last(),
		MACDSignal:    macd.Signal.Last(),
		MACDHistogram: macd.Histogram.Last(),
	}
}

// ComputeLogReturns computes log returns r_t = ln(p_t / p_{t-1}).
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func ComputeLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last window
// log returns (not annualized).
func RealizedVolatility(logReturns []float64, window int) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func timestamps(history []models.PricePoint) []time.Time {
	ts := make([]time.Time, len(history))
	for i, h := range history {
		ts[i] = h.Timestamp
	}
	return ts
}
