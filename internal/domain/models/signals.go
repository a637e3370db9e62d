package models

import "time"

// PairSignal is the read view of a pair's latest signal.
type PairSignal struct {
	PairAddress        string           `json:"pairAddress"`
	PairName           string           `json:"pairName"`
	TargetTokenSymbol  string           `json:"targetTokenSymbol"`
	TargetTokenAddress string           `json:"targetTokenAddress"`
	Signal             SignalSnapshot   `json:"signal"`
	Accuracy           PairAccuracyView `json:"accuracy"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// PairAccuracyView is the display form of a pair's hit counters.
type PairAccuracyView struct {
	Past    string `json:"past"`
	Current string `json:"current"`
}
