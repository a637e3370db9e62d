package service

import (
	"context"
	"time"

	"DexSignal/internal/domain/models"
)

// PriceSource provides the current USD price and the price series of a token.
type PriceSource interface {
	CurrentPrice(ctx context.Context, chainID, token string) (float64, error)
	HistoricalPrices(ctx context.Context, chainID, token string, from, to time.Time) ([]models.PricePoint, error)
}

// PairDiscovery finds the most liquid eligible pool for a token.
type PairDiscovery interface {
	BestPair(ctx context.Context, chainID, token string) (*models.DiscoveredPair, error)
}

// PoolStatsSource backfills volume and liquidity of a pool.
type PoolStatsSource interface {
	PoolStats(ctx context.Context, pairAddress string) (volume, liquidity *float64, err error)
}

// SequenceRegressor maps a window of scaled prices to one scaled price.
type SequenceRegressor interface {
	Fit(windows [][]float64, labels []float64) error
	Predict(window []float64) (float64, error)
	Trained() bool
}

// FeatureRegressor maps an indicator vector to one scaled price.
type FeatureRegressor interface {
	Fit(features [][]float64, labels []float64) error
	Predict(features []float64) (float64, error)
	Trained() bool
}
