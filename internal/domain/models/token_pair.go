package models

import "time"

// PricePoint is one observed USD price.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// ValuePoint is one observed volume or liquidity value.
type ValuePoint struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// PredictionWindow is the UTC slot a forecast is anchored to.
type PredictionWindow struct {
	Start  time.Time `json:"start"`
	Expiry time.Time `json:"expiry"`
}

// CycleID identifies the window for exactly-once accuracy accounting.
func (w PredictionWindow) CycleID() string {
	if w.Start.IsZero() {
		return ""
	}
	return w.Start.UTC().Format(time.RFC3339)
}

// TargetRecord is one entry of a pair's target price history.
type TargetRecord struct {
	CycleID           string     `json:"cycleId"`
	PredictedPrice    float64    `json:"predictedPrice"`
	TargetPrice       float64    `json:"targetPrice"`
	PriceAtPrediction *float64   `json:"currentPriceAtPrediction"`
	PredictionTime    time.Time  `json:"predictionTime"`
	ExpiryTime        time.Time  `json:"expiryTime"`
	HitStatus         HitStatus  `json:"hitStatus"`
	HitTime           *time.Time `json:"hitTime,omitempty"`
	ActualPrice       *float64   `json:"actualPriceAtExpiry,omitempty"`
}

// TokenPairRecord is the durable per-pair document. Every component reads
// and writes this one record; the pair address is its lowercase key.
type TokenPairRecord struct {
	PairAddress        string `json:"pairAddress"`
	ChainID            string `json:"chainId"`
	BaseTokenAddress   string `json:"baseTokenAddress"`
	BaseTokenSymbol    string `json:"baseTokenSymbol"`
	TargetTokenAddress string `json:"targetTokenAddress"`
	TargetTokenSymbol  string `json:"targetTokenSymbol"`
	TargetTokenName    string `json:"targetTokenName"`
	PairName           string `json:"pairName"`

	CurrentPrice     *float64 `json:"currentPrice"`
	CurrentVolume    *float64 `json:"currentVolume"`
	CurrentLiquidity *float64 `json:"currentLiquidity"`

	PriceHistory     []PricePoint `json:"priceHistory"`
	VolumeHistory    []ValuePoint `json:"volumeHistory"`
	LiquidityHistory []ValuePoint `json:"liquidityHistory"`

	LatestLSTMPrediction     *float64         `json:"latestLstmPrediction"`
	LatestGBTPrediction      *float64         `json:"latestGbtPrediction"`
	LatestCombinedPrediction *float64         `json:"latestCombinedPrediction"`
	PredictionPredictedTime  string           `json:"predictionPredictedTime"`
	PredictionExpiryTime     string           `json:"predictionExpiryTime"`
	PredictionWindow         PredictionWindow `json:"predictionWindow"`
	ForecastDetails          string           `json:"forecastDetails"`

	TargetPriceUSD     *float64       `json:"targetPriceUsd"`
	PriceAtPrediction  *float64       `json:"priceAtPrediction"`
	TargetPriceHistory []TargetRecord `json:"targetPriceHistory"`

	PredictionAccuracy PredictionAccuracy `json:"predictionAccuracy"`
	SignalHistory      []SignalSnapshot   `json:"signalHistory"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy so callers never share slices or pointers
// with the stored record.
func (r *TokenPairRecord) Clone() *TokenPairRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.CurrentPrice = cloneFloat(r.CurrentPrice)
	out.CurrentVolume = cloneFloat(r.CurrentVolume)
	out.CurrentLiquidity = cloneFloat(r.CurrentLiquidity)
	out.LatestLSTMPrediction = cloneFloat(r.LatestLSTMPrediction)
	out.LatestGBTPrediction = cloneFloat(r.LatestGBTPrediction)
	out.LatestCombinedPrediction = cloneFloat(r.LatestCombinedPrediction)
	out.TargetPriceUSD = cloneFloat(r.TargetPriceUSD)
	out.PriceAtPrediction = cloneFloat(r.PriceAtPrediction)

	out.PriceHistory = append([]PricePoint(nil), r.PriceHistory...)
	out.VolumeHistory = append([]ValuePoint(nil), r.VolumeHistory...)
	out.LiquidityHistory = append([]ValuePoint(nil), r.LiquidityHistory...)

	out.TargetPriceHistory = make([]TargetRecord, len(r.TargetPriceHistory))
	for i, t := range r.TargetPriceHistory {
		t.PriceAtPrediction = cloneFloat(t.PriceAtPrediction)
		t.ActualPrice = cloneFloat(t.ActualPrice)
		t.HitTime = cloneTime(t.HitTime)
		out.TargetPriceHistory[i] = t
	}

	out.SignalHistory = make([]SignalSnapshot, len(r.SignalHistory))
	for i, s := range r.SignalHistory {
		out.SignalHistory[i] = s.Clone()
	}
	out.PredictionAccuracy = r.PredictionAccuracy.Clone()
	return &out
}

// LatestSignal returns the newest signal snapshot, if any.
func (r *TokenPairRecord) LatestSignal() (SignalSnapshot, bool) {
	if len(r.SignalHistory) == 0 {
		return SignalSnapshot{}, false
	}
	return r.SignalHistory[len(r.SignalHistory)-1], true
}

// Prices returns the price column of the history.
func (r *TokenPairRecord) Prices() []float64 {
	out := make([]float64, len(r.PriceHistory))
	for i, p := range r.PriceHistory {
		out[i] = p.Price
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
