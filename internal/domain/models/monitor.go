package models

import "time"

type HitStatus string

const (
	HitNotReached HitStatus = "Not Reached"
	HitReached    HitStatus = "Reached"
	HitExpired    HitStatus = "Expired"
)

// MonitorState is the per-pair target tracking entry.
type MonitorState struct {
	PairAddress      string     `json:"pairAddress"`
	TargetPrice      float64    `json:"targetPrice"`
	PredictionStart  time.Time  `json:"predictionStart"`
	PredictionExpiry time.Time  `json:"predictionExpiry"`
	HitStatus        HitStatus  `json:"hitStatus"`
	HitTime          *time.Time `json:"hitTime,omitempty"`
	Recorded         bool       `json:"recorded"`
	TargetPriceDiff  *float64   `json:"targetPriceDiff"`
	LastChecked      time.Time  `json:"lastChecked"`
}

// Window returns the prediction window the entry tracks.
func (m MonitorState) Window() PredictionWindow {
	return PredictionWindow{Start: m.PredictionStart, Expiry: m.PredictionExpiry}
}

func (m MonitorState) Clone() MonitorState {
	out := m
	out.HitTime = cloneTime(m.HitTime)
	out.TargetPriceDiff = cloneFloat(m.TargetPriceDiff)
	return out
}

// Outcome is emitted when a monitor entry resolves.
type Outcome struct {
	PairAddress string           `json:"pairAddress"`
	CycleID     string           `json:"cycleId"`
	Hit         bool             `json:"hit"`
	Status      HitStatus        `json:"status"`
	TargetPrice float64          `json:"targetPrice"`
	Price       *float64         `json:"price"`
	Window      PredictionWindow `json:"window"`
	ResolvedAt  time.Time        `json:"resolvedAt"`
}
