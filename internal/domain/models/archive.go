package models

import "time"

type ArchiveKind string

const (
	ArchiveTick     ArchiveKind = "tick"
	ArchiveForecast ArchiveKind = "forecast"
	ArchiveOutcome  ArchiveKind = "outcome"
)

// ArchiveRow is one analytics row. Only the fields relevant to Kind are set.
type ArchiveRow struct {
	Kind        ArchiveKind
	PairAddress string
	Timestamp   time.Time

	Price     *float64
	Volume    *float64
	Liquidity *float64

	LSTM     *float64
	GBT      *float64
	Combined *float64
	Target   *float64
	CycleID  string

	Hit bool
}

// TickRow builds an archive row from a fresh snapshot.
func TickRow(s *MarketSnapshot, ts time.Time) ArchiveRow {
	return ArchiveRow{
		Kind:        ArchiveTick,
		PairAddress: s.PairAddress,
		Timestamp:   ts,
		Price:       Float(s.Price),
		Volume:      cloneFloat(s.Volume),
		Liquidity:   cloneFloat(s.Liquidity),
	}
}

// ForecastRow builds an archive row from a forecast.
func ForecastRow(f ForecastResult) ArchiveRow {
	return ArchiveRow{
		Kind:        ArchiveForecast,
		PairAddress: f.PairAddress,
		Timestamp:   f.GeneratedAt,
		Price:       cloneFloat(f.PriceAtPrediction),
		LSTM:        cloneFloat(f.LSTMPrediction),
		GBT:         cloneFloat(f.GBTPrediction),
		Combined:    cloneFloat(f.CombinedPrediction),
		Target:      cloneFloat(f.TargetPrice),
		CycleID:     f.Window.CycleID(),
	}
}

// OutcomeRow builds an archive row from a resolved monitor entry.
func OutcomeRow(o Outcome) ArchiveRow {
	return ArchiveRow{
		Kind:        ArchiveOutcome,
		PairAddress: o.PairAddress,
		Timestamp:   o.ResolvedAt,
		Price:       cloneFloat(o.Price),
		Target:      Float(o.TargetPrice),
		CycleID:     o.CycleID,
		Hit:         o.Hit,
	}
}
