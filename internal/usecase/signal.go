package usecase

import (
	"fmt"
	"math"
	"time"

	"DexSignal/internal/domain/models"
	"DexSignal/internal/services/features"
)

// SignalPolicy turns the latest forecast and price of a pair into a signal.
type SignalPolicy struct {
	Band         float64 // relative distance from price that counts as a move
	TargetMargin float64
	VolWindow    int
}

// Derive returns the signal and its confidence in [0, 100]. Without a
// forecast or a price the signal is Error.
func (p SignalPolicy) Derive(price, combined *float64) (models.SignalType, float64) {
	if price == nil || combined == nil || *price <= 0 {
		return models.SignalError, 0
	}
	var sig models.SignalType
	switch {
	case *combined >= *price*(1+p.Band):
		sig = models.SignalBuy
	case *combined <= *price*(1-p.Band):
		sig = models.SignalSell
	default:
		sig = models.SignalHold
	}

	margin := p.TargetMargin
	if margin <= 0 {
		margin = 0.02
	}
	// a move of exactly the target margin scores 50
	conf := math.Abs(*combined / *price - 1) / margin * 50
	return sig, math.Min(100, conf)
}

// Snapshot builds the signal entry of rec at now from its stored forecast,
// the given indicators and the monitor entry of the pair.
func (p SignalPolicy) Snapshot(rec *models.TokenPairRecord, ind models.Indicators, mon models.MonitorState, now time.Time) models.SignalSnapshot {
	sig, conf := p.Derive(rec.CurrentPrice, rec.LatestCombinedPrediction)
	s := models.SignalSnapshot{
		Signal:             sig,
		CurrentPrice:       copyFloat(rec.CurrentPrice),
		CurrentVolume:      copyFloat(rec.CurrentVolume),
		CurrentLiquidity:   copyFloat(rec.CurrentLiquidity),
		Indicators:         ind,
		LSTMPrediction:     copyFloat(rec.LatestLSTMPrediction),
		GBTPrediction:      copyFloat(rec.LatestGBTPrediction),
		CombinedPrediction: copyFloat(rec.LatestCombinedPrediction),
		TargetPrice:        copyFloat(rec.TargetPriceUSD),
		PredictionWindow:   rec.PredictionWindow,
		HitStatus:          models.HitNotReached,
		ConfidenceScore:    conf,
		Timestamp:          now,
	}
	if mon.PredictionStart.Equal(rec.PredictionWindow.Start) && mon.HitStatus != "" {
		s.HitStatus = mon.HitStatus
		s.HitTime = mon.HitTime
	}
	s.Details = p.details(rec, ind, sig)
	return s
}

func (p SignalPolicy) details(rec *models.TokenPairRecord, ind models.Indicators, sig models.SignalType) []string {
	var out []string
	if sig == models.SignalError {
		if rec.ForecastDetails != "" {
			out = append(out, rec.ForecastDetails)
		} else {
			out = append(out, "No forecast available.")
		}
	} else {
		change := (*rec.LatestCombinedPrediction / *rec.CurrentPrice - 1) * 100
		out = append(out, fmt.Sprintf("Forecast %+.2f%% vs current price.", change))
	}
	if ind.RSI != nil {
		switch {
		case *ind.RSI >= 70:
			out = append(out, fmt.Sprintf("RSI %.1f: overbought.", *ind.RSI))
		case *ind.RSI <= 30:
			out = append(out, fmt.Sprintf("RSI %.1f: oversold.", *ind.RSI))
		default:
			out = append(out, fmt.Sprintf("RSI %.1f.", *ind.RSI))
		}
	}
	if ind.MACDHistogram != nil {
		if *ind.MACDHistogram >= 0 {
			out = append(out, "MACD above signal line.")
		} else {
			out = append(out, "MACD below signal line.")
		}
	}
	window := p.VolWindow
	if window <= 0 {
		window = 24
	}
	if rets := features.ComputeLogReturns(rec.Prices()); len(rets) > 1 {
		vol := features.RealizedVolatility(rets, min(window, len(rets)))
		out = append(out, fmt.Sprintf("Realized volatility %.2f%% per sample.", vol*100))
	}
	return out
}
