package models

import "time"

const (
	DetailsCombined     = "Combined prediction from LSTM and GBT."
	DetailsLSTMOnly     = "Prediction from LSTM only (GBT model not ready or data insufficient)."
	DetailsGBTOnly      = "Prediction from GBT only (LSTM model not ready or data insufficient)."
	DetailsNoPrediction = "No valid predictions could be generated from either model."
	DetailsNotEnough    = "Not enough historical data for prediction."
)

// ForecastResult is the outcome of one inference call. Predictions are nil
// when the corresponding model could not produce a value; nothing is ever
// defaulted to zero.
type ForecastResult struct {
	PairAddress        string           `json:"pairAddress"`
	LSTMPrediction     *float64         `json:"lstmPrediction"`
	GBTPrediction      *float64         `json:"gbtPrediction"`
	CombinedPrediction *float64         `json:"combinedPrediction"`
	TargetPrice        *float64         `json:"targetPrice"`
	PriceAtPrediction  *float64         `json:"priceAtPrediction"`
	Window             PredictionWindow `json:"window"`
	PredictedLabel     string           `json:"predictedTime"`
	ExpiryLabel        string           `json:"expiryTime"`
	Indicators         Indicators       `json:"indicators"`
	Details            string           `json:"details"`
	GeneratedAt        time.Time        `json:"generatedAt"`
}

// HasTarget reports whether the forecast produced a hit threshold.
func (f ForecastResult) HasTarget() bool {
	return f.CombinedPrediction != nil && f.TargetPrice != nil
}

// TrainReport summarises one RetrainAll pass.
type TrainReport struct {
	Pairs       int       `json:"pairs"`
	Skipped     int       `json:"skipped"`
	LSTMSamples int       `json:"lstmSamples"`
	GBTSamples  int       `json:"gbtSamples"`
	LSTMTrained bool      `json:"lstmTrained"`
	GBTTrained  bool      `json:"gbtTrained"`
	FinishedAt  time.Time `json:"finishedAt"`
}
