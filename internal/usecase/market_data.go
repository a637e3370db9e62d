package usecase

import (
	"context"
	"fmt"
	"time"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	domsvc "DexSignal/internal/domain/service"
	"DexSignal/pkg/logger"
)

// MarketDataAggregator runs the ordered source chain for one token:
// current price, historical series, pair discovery and pool stats backfill.
type MarketDataAggregator struct {
	prices    domsvc.PriceSource
	discovery domsvc.PairDiscovery
	stats     domsvc.PoolStatsSource
	chainID   string
	window    time.Duration
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

type AggregatorOption func(*MarketDataAggregator)

// WithPoolStats enables the volume/liquidity backfill stage.
func WithPoolStats(s domsvc.PoolStatsSource) AggregatorOption {
	return func(a *MarketDataAggregator) { a.stats = s }
}

func WithAggregatorMetrics(m drepo.Metrics) AggregatorOption {
	return func(a *MarketDataAggregator) { a.metrics = m }
}

func WithAggregatorLogger(l *logger.Logger) AggregatorOption {
	return func(a *MarketDataAggregator) { a.log = l }
}

func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *MarketDataAggregator) { a.now = now }
}

// NewMarketDataAggregator builds the aggregator. historyDays is the length of
// the historical series requested from the price source.
func NewMarketDataAggregator(prices domsvc.PriceSource, discovery domsvc.PairDiscovery, chainID string, historyDays int, opts ...AggregatorOption) *MarketDataAggregator {
	if historyDays <= 0 {
		historyDays = 60
	}
	a := &MarketDataAggregator{
		prices:    prices,
		discovery: discovery,
		chainID:   chainID,
		window:    time.Duration(historyDays) * 24 * time.Hour,
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type enabler interface{ Enabled() bool }

// FetchMarketData returns a snapshot of token or an ErrSourceUnavailable
// error. The current price and the pair discovery are mandatory; the
// historical series and the backfill are best effort.
func (a *MarketDataAggregator) FetchMarketData(ctx context.Context, token models.TokenRef) (*models.MarketSnapshot, error) {
	log := a.log.With(logger.String("token", token.Symbol))

	price, err := a.prices.CurrentPrice(ctx, a.chainID, token.Address)
	if err != nil {
		log.Warn("current price unavailable, skipping token", logger.Error(err))
		return nil, fmt.Errorf("fetch %s: %w", token.Symbol, err)
	}

	now := a.now()
	history, err := a.prices.HistoricalPrices(ctx, a.chainID, token.Address, now.Add(-a.window), now)
	if err != nil {
		log.Warn("historical prices unavailable", logger.Error(err))
		history = nil
	}

	pair, err := a.discovery.BestPair(ctx, a.chainID, token.Address)
	if err != nil {
		log.Warn("no eligible pair", logger.Error(err))
		return nil, fmt.Errorf("fetch %s: %w", token.Symbol, err)
	}

	volume, liquidity := pair.Volume, pair.Liquidity
	if (volume == nil || liquidity == nil) && a.backfillEnabled() {
		v, l, err := a.stats.PoolStats(ctx, pair.PairAddress)
		if err != nil {
			log.Warn("pool stats backfill failed", logger.Pair(pair.PairAddress), logger.Error(err))
		} else {
			if volume == nil {
				volume = v
			}
			if liquidity == nil {
				liquidity = l
			}
		}
	}

	chainID := pair.ChainID
	if chainID == "" {
		chainID = a.chainID
	}
	if a.metrics != nil {
		a.metrics.RecordPairProcessed("fetched")
		a.metrics.RecordLastPrice(pair.PairAddress, price)
	}
	log.Debug("market data compiled", logger.Pair(pair.PairAddress), logger.Float64("price", price),
		logger.OptFloat("volume", volume), logger.OptFloat("liquidity", liquidity), logger.Int("history", len(history)))

	return &models.MarketSnapshot{
		PairAddress:      pair.PairAddress,
		ChainID:          chainID,
		PairName:         pair.BaseToken.Symbol + "/" + pair.QuoteToken.Symbol,
		TargetToken:      token,
		BaseToken:        pair.BaseToken,
		QuoteToken:       pair.QuoteToken,
		Price:            price,
		Volume:           volume,
		Liquidity:        liquidity,
		HistoricalPrices: history,
	}, nil
}

func (a *MarketDataAggregator) backfillEnabled() bool {
	if a.stats == nil {
		return false
	}
	if e, ok := a.stats.(enabler); ok {
		return e.Enabled()
	}
	return true
}
