package models

import "time"

// PredictionAccuracy holds the hit counters of one pair. Current is the
// running period; Past is the last closed period.
type PredictionAccuracy struct {
	PastHits           int        `json:"pastHits"`
	PastTotal          int        `json:"pastTotal"`
	CurrentHits        int        `json:"currentHits"`
	CurrentTotal       int        `json:"currentTotal"`
	LastPredictionTime *time.Time `json:"lastPredictionTime,omitempty"`
	LastResetTime      *time.Time `json:"lastResetTime,omitempty"`
	LastRecordedCycle  string     `json:"lastRecordedCycle,omitempty"`
}

func (a PredictionAccuracy) Clone() PredictionAccuracy {
	out := a
	out.LastPredictionTime = cloneTime(a.LastPredictionTime)
	out.LastResetTime = cloneTime(a.LastResetTime)
	return out
}

// GlobalStats is the aggregate accuracy across all pairs.
type GlobalStats struct {
	PastAccuracy      string     `json:"pastAccuracy"`
	CurrentAccuracy   string     `json:"currentAccuracy"`
	PastHits          int        `json:"pastHits"`
	PastTotal         int        `json:"pastTotal"`
	CurrentHits       int        `json:"currentHits"`
	CurrentTotal      int        `json:"currentTotal"`
	ExpectedPairs     int        `json:"expectedPairs"`
	PredictionPeriods int        `json:"predictionPeriods"`
	LastResetTime     *time.Time `json:"lastResetTime,omitempty"`
	ActiveTokens      int        `json:"activeTokens"`
}
