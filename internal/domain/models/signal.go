package models

import "time"

type SignalType string

const (
	SignalBuy   SignalType = "Buy"
	SignalSell  SignalType = "Sell"
	SignalHold  SignalType = "Hold"
	SignalError SignalType = "Error"
)

// Indicators are the technical values computed at the latest history sample.
// A nil field means the history was too short for that indicator.
type Indicators struct {
	RSI           *float64 `json:"rsi"`
	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macdSignal"`
	MACDHistogram *float64 `json:"macdHistogram"`
}

// SignalSnapshot is one entry of the bounded per-pair signal history.
type SignalSnapshot struct {
	Signal             SignalType       `json:"signal"`
	CurrentPrice       *float64         `json:"currentPrice"`
	CurrentVolume      *float64         `json:"currentVolume"`
	CurrentLiquidity   *float64         `json:"currentLiquidity"`
	Indicators         Indicators       `json:"indicators"`
	LSTMPrediction     *float64         `json:"lstmPrediction"`
	GBTPrediction      *float64         `json:"gbtPrediction"`
	CombinedPrediction *float64         `json:"combinedPrediction"`
	TargetPrice        *float64         `json:"targetPrice"`
	PredictionWindow   PredictionWindow `json:"predictionWindow"`
	HitStatus          HitStatus        `json:"hitStatus"`
	HitTime            *time.Time       `json:"hitTime,omitempty"`
	ConfidenceScore    float64          `json:"confidenceScore"`
	Details            []string         `json:"signalDetails,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
}

func (s SignalSnapshot) Clone() SignalSnapshot {
	out := s
	out.CurrentPrice = cloneFloat(s.CurrentPrice)
	out.CurrentVolume = cloneFloat(s.CurrentVolume)
	out.CurrentLiquidity = cloneFloat(s.CurrentLiquidity)
	out.Indicators = Indicators{
		RSI:           cloneFloat(s.Indicators.RSI),
		MACD:          cloneFloat(s.Indicators.MACD),
		MACDSignal:    cloneFloat(s.Indicators.MACDSignal),
		MACDHistogram: cloneFloat(s.Indicators.MACDHistogram),
	}
	out.LSTMPrediction = cloneFloat(s.LSTMPrediction)
	out.GBTPrediction = cloneFloat(s.GBTPrediction)
	out.CombinedPrediction = cloneFloat(s.CombinedPrediction)
	out.TargetPrice = cloneFloat(s.TargetPrice)
	out.HitTime = cloneTime(s.HitTime)
	out.Details = append([]string(nil), s.Details...)
	return out
}
