package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	"DexSignal/internal/services/features"
	"DexSignal/pkg/logger"
	"DexSignal/pkg/queue"
)

// Job names, also used for the /api/admin triggers.
const (
	JobPrediction = "prediction-cycle"
	JobSignal     = "signal-cycle"
	JobRetrain    = "retrain"
	JobMonitor    = "monitor-tick"
	JobSweep      = "monitor-sweep"
	JobRotate     = "accuracy-rotation"
)

// Intervals of the periodic jobs. The prediction cycle follows the
// prediction schedule instead.
type Intervals struct {
	Signal   time.Duration
	Monitor  time.Duration
	Sweep    time.Duration
	Retrain  time.Duration
	Rotation time.Duration
}

// Cycles runs the per-pair loops over the monitored tokens.
type Cycles struct {
	tokens    []models.TokenRef
	market    *MarketDataAggregator
	history   *HistoryStore
	engine    *ForecastEngine
	monitor   *PriceTargetMonitor
	accuracy  *AccuracyTracker
	notifier  *Notifier
	policy    SignalPolicy
	params    features.Params
	pairDelay time.Duration
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

type CyclesOption func(*Cycles)

// WithPairDelay pauses between two pairs of one loop.
func WithPairDelay(d time.Duration) CyclesOption {
	return func(c *Cycles) { c.pairDelay = d }
}

func WithCyclesMetrics(m drepo.Metrics) CyclesOption {
	return func(c *Cycles) { c.metrics = m }
}

func WithCyclesLogger(l *logger.Logger) CyclesOption {
	return func(c *Cycles) { c.log = l }
}

func WithCyclesClock(now func() time.Time) CyclesOption {
	return func(c *Cycles) { c.now = now }
}

func NewCycles(
	tokens []models.TokenRef,
	market *MarketDataAggregator,
	history *HistoryStore,
	engine *ForecastEngine,
	monitor *PriceTargetMonitor,
	accuracy *AccuracyTracker,
	notifier *Notifier,
	policy SignalPolicy,
	params features.Params,
	opts ...CyclesOption,
) *Cycles {
	c := &Cycles{
		tokens:   tokens,
		market:   market,
		history:  history,
		engine:   engine,
		monitor:  monitor,
		accuracy: accuracy,
		notifier: notifier,
		policy:   policy,
		params:   params,
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = NewNotifier(history)
	}
	return c
}

// PredictionCycle refreshes every pair, runs inference and emits a signal.
// A failing pair is logged and skipped.
func (c *Cycles) PredictionCycle(ctx context.Context) error {
	start := c.now()
	done := 0
	err := c.eachToken(ctx, func(token models.TokenRef) error {
		pair, err := c.refresh(ctx, token)
		if err != nil {
			return err
		}
		f, err := c.engine.GenerateForecast(ctx, pair)
		if err != nil {
			return err
		}
		if err := c.history.UpdateForecast(ctx, pair, f); err != nil {
			return err
		}
		c.notifier.ForecastGenerated(ctx, f)
		if _, err := c.emitSignal(ctx, pair); err != nil {
			return err
		}
		done++
		return nil
	})
	c.log.Info("prediction cycle finished", logger.Int("pairs", done), logger.Int("tokens", len(c.tokens)),
		logger.Duration("took", c.now().Sub(start)))
	return err
}

// SignalCycle refreshes market data and emits a signal from the stored
// forecast of every pair.
func (c *Cycles) SignalCycle(ctx context.Context) error {
	return c.eachToken(ctx, func(token models.TokenRef) error {
		pair, err := c.refresh(ctx, token)
		if err != nil {
			return err
		}
		_, err = c.emitSignal(ctx, pair)
		return err
	})
}

// Retrain trains fresh models on every pair and saves them.
func (c *Cycles) Retrain(ctx context.Context) error {
	rep, err := c.engine.RetrainAll(ctx)
	if err != nil {
		return fmt.Errorf("retrain: %w", err)
	}
	c.log.Info("models retrained", logger.Int("pairs", rep.Pairs), logger.Int("skipped", rep.Skipped),
		logger.Bool("lstm", rep.LSTMTrained), logger.Bool("gbt", rep.GBTTrained))
	return nil
}

// MonitorTick checks the open targets and drops resolved expired entries.
func (c *Cycles) MonitorTick(ctx context.Context) error {
	now := c.now()
	c.monitor.CheckTargets(ctx, now)
	c.monitor.CleanupExpired(ctx, now)
	return nil
}

// MonitorSweep removes expired and idle monitor entries.
func (c *Cycles) MonitorSweep(ctx context.Context) error {
	c.monitor.CleanupAll(ctx, c.now())
	return nil
}

// RotateAccuracy closes the running accuracy period.
func (c *Cycles) RotateAccuracy(ctx context.Context) error {
	return c.accuracy.RotatePeriods(ctx)
}

// Jobs returns the periodic jobs of every loop, assigned to their lanes.
func (c *Cycles) Jobs(schedule PredictionSchedule, iv Intervals) []PeriodicJob {
	return []PeriodicJob{
		{Job: queue.Func(JobPrediction, c.PredictionCycle), Lane: LaneMarket, Next: schedule.NextPredictionRun},
		{Job: queue.Func(JobSignal, c.SignalCycle), Lane: LaneMarket, Interval: orDefault(iv.Signal, 5*time.Minute), RunAtStart: true},
		{Job: queue.Func(JobRetrain, c.Retrain), Lane: LaneMarket, Interval: orDefault(iv.Retrain, 24*time.Hour)},
		{Job: queue.Func(JobMonitor, c.MonitorTick), Lane: LaneBookkeeping, Interval: orDefault(iv.Monitor, time.Minute)},
		{Job: queue.Func(JobSweep, c.MonitorSweep), Lane: LaneBookkeeping, Interval: orDefault(iv.Sweep, 30*time.Minute)},
		{Job: queue.Func(JobRotate, c.RotateAccuracy), Lane: LaneBookkeeping, Interval: orDefault(iv.Rotation, 4*time.Hour)},
	}
}

// Signals returns the read view of every pair that has produced a signal.
func (c *Cycles) Signals(ctx context.Context) ([]models.PairSignal, error) {
	recs, err := c.history.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("signals: %w", err)
	}
	out := make([]models.PairSignal, 0, len(recs))
	for _, rec := range recs {
		if s, ok := rec.LatestSignal(); ok {
			out = append(out, pairSignal(rec, s))
		}
	}
	return out, nil
}

// refresh fetches a token's market data and merges it into its record.
func (c *Cycles) refresh(ctx context.Context, token models.TokenRef) (string, error) {
	snap, err := c.market.FetchMarketData(ctx, token)
	if err != nil {
		return "", err
	}
	if _, err := c.history.InitializeOrUpdateMetadata(ctx, snap.Metadata()); err != nil {
		return "", err
	}
	if err := c.history.MergeMarketData(ctx, snap.PairAddress, snap.Price, snap.Volume, snap.Liquidity, snap.HistoricalPrices); err != nil {
		return "", err
	}
	c.notifier.Tick(ctx, snap)
	if c.metrics != nil {
		c.metrics.RecordPairProcessed("merged")
	}
	return snap.PairAddress, nil
}

func (c *Cycles) emitSignal(ctx context.Context, pair string) (models.SignalSnapshot, error) {
	rec, err := c.history.GetRecord(ctx, pair)
	if err != nil {
		return models.SignalSnapshot{}, err
	}
	ind := features.LatestIndicators(rec.PriceHistory, c.params)
	snap := c.policy.Snapshot(rec, ind, c.monitor.Status(pair), c.now())
	if err := c.history.AppendSignalSnapshot(ctx, pair, snap); err != nil {
		return snap, err
	}
	c.notifier.SignalEmitted(ctx, pairSignal(rec, snap))
	if c.metrics != nil {
		c.metrics.RecordPairProcessed("signal")
	}
	return snap, nil
}

// eachToken runs fn for every monitored token with the pair delay between
// calls. Errors are logged; the loop stops only when ctx is done.
func (c *Cycles) eachToken(ctx context.Context, fn func(models.TokenRef) error) error {
	var failed int
	for i, token := range c.tokens {
		if i > 0 && c.pairDelay > 0 {
			t := time.NewTimer(c.pairDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(token); err != nil {
			failed++
			if c.metrics != nil {
				c.metrics.RecordError("pair_cycle")
			}
			level := c.log.Warn
			if errors.Is(err, drepo.ErrSourceUnavailable) || errors.Is(err, drepo.ErrNotFound) {
				level = c.log.Info
			}
			level("pair skipped", logger.String("token", token.Symbol), logger.String("address", token.Address), logger.Error(err))
		}
	}
	if failed > 0 && failed == len(c.tokens) {
		return fmt.Errorf("all %d tokens failed", failed)
	}
	return nil
}

func pairSignal(rec *models.TokenPairRecord, s models.SignalSnapshot) models.PairSignal {
	acc := rec.PredictionAccuracy
	return models.PairSignal{
		PairAddress:        rec.PairAddress,
		PairName:           rec.PairName,
		TargetTokenSymbol:  rec.TargetTokenSymbol,
		TargetTokenAddress: rec.TargetTokenAddress,
		Signal:             s,
		Accuracy: models.PairAccuracyView{
			Past:    FormatAccuracy(acc.PastHits, acc.PastTotal, acc.PastTotal),
			Current: FormatAccuracy(acc.CurrentHits, acc.CurrentTotal, acc.CurrentTotal),
		},
		UpdatedAt: s.Timestamp,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
