package features

// Series is an indicator aligned with its input: Series[i] is nil until the
// indicator has warmed up at index i.
type Series []*float64

// Last returns the final value of the series, nil if unset or empty.
func (s Series) Last() *float64 {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

// SMA is the simple moving average over period values.
func SMA(values []float64, period int) Series {
	out := make(Series, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			avg := sum / float64(period)
			out[i] = &avg
		}
	}
	return out
}

// EMA is the exponential moving average seeded with the SMA of the first
// period values.
func EMA(values []float64, period int) Series {
	out := make(Series, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	k := 2.0 / float64(period+1)
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	prev := seed / float64(period)
	first := prev
	out[period-1] = &first
	for i := period; i < len(values); i++ {
		cur := (values[i]-prev)*k + prev
		v := cur
		out[i] = &v
		prev = cur
	}
	return out
}

// RSI is Wilder's relative strength index. The first value appears at index
// period, once period price changes are available.
func RSI(values []float64, period int) Series {
	out := make(Series, len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		ch := values[i] - values[i-1]
		if ch > 0 {
			gain += ch
		} else {
			loss -= ch
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		ch := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if ch > 0 {
			g = ch
		} else {
			l = -ch
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) *float64 {
	var v float64
	switch {
	case avgLoss == 0 && avgGain == 0:
		v = 50
	case avgLoss == 0:
		v = 100
	default:
		rs := avgGain / avgLoss
		v = 100 - 100/(1+rs)
	}
	return &v
}

// MACDResult holds the three MACD series aligned with the input.
type MACDResult struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

// MACD computes EMA(fast) - EMA(slow), its EMA(signal) and the histogram.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	n := len(values)
	res := MACDResult{
		MACD:      make(Series, n),
		Signal:    make(Series, n),
		Histogram: make(Series, n),
	}
	if fast <= 0 || slow <= fast || signal <= 0 || n < slow {
		return res
	}

	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	start := slow - 1
	line := make([]float64, 0, n-start)
	for i := start; i < n; i++ {
		v := *fastEMA[i] - *slowEMA[i]
		res.MACD[i] = &v
		line = append(line, v)
	}

	sig := EMA(line, signal)
	for k, s := range sig {
		if s == nil {
			continue
		}
		i := start + k
		sv := *s
		hv := *res.MACD[i] - sv
		res.Signal[i] = &sv
		res.Histogram[i] = &hv
	}
	return res
}
