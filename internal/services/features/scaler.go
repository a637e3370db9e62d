package features

import "math"

// MinMaxScaler maps prices into [0,1] using the bounds of one history.
type MinMaxScaler struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NewMinMaxScaler fits the scaler on values. An empty input yields the
// identity range [0,1].
func NewMinMaxScaler(values []float64) MinMaxScaler {
	if len(values) == 0 {
		return MinMaxScaler{Min: 0, Max: 1}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return MinMaxScaler{Min: lo, Max: hi}
}

// span is treated as 1 for a flat history so scaling never divides by zero.
func (s MinMaxScaler) span() float64 {
	if d := s.Max - s.Min; d > 0 {
		return d
	}
	return 1
}

func (s MinMaxScaler) Scale(v float64) float64 {
	return (v - s.Min) / s.span()
}

func (s MinMaxScaler) Inverse(v float64) float64 {
	return v*s.span() + s.Min
}

func (s MinMaxScaler) ScaleAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.Scale(v)
	}
	return out
}
