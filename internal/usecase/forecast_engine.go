package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	domsvc "DexSignal/internal/domain/service"
	"DexSignal/internal/services/features"
	"DexSignal/pkg/logger"
	"DexSignal/pkg/util"
)

// TargetRegistrar receives the hit threshold of every forecast that has one.
type TargetRegistrar interface {
	UpdateTarget(ctx context.Context, pairAddress string, target float64, window models.PredictionWindow)
}

// ForecastConfig holds the engine settings that are not model
// hyperparameters.
type ForecastConfig struct {
	Params        features.Params
	MinHistory    int
	TargetMargin  float64
	ModelDir      string
	LabelLocation *time.Location
}

type modelStore interface {
	Save(dir string) error
	Load(dir string) error
}

// ForecastEngine owns the process-wide sequence and tree models. One mutex
// serializes every train and infer call.
type ForecastEngine struct {
	mu       sync.Mutex
	lstm     domsvc.SequenceRegressor
	gbt      domsvc.FeatureRegressor
	history  *HistoryStore
	targets  TargetRegistrar
	schedule PredictionSchedule
	cfg      ForecastConfig
	metrics  drepo.Metrics
	log      *logger.Logger
	now      func() time.Time
}

type EngineOption func(*ForecastEngine)

func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *ForecastEngine) { e.log = l }
}

func WithEngineMetrics(m drepo.Metrics) EngineOption {
	return func(e *ForecastEngine) { e.metrics = m }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *ForecastEngine) { e.now = now }
}

func NewForecastEngine(
	lstm domsvc.SequenceRegressor,
	gbt domsvc.FeatureRegressor,
	history *HistoryStore,
	targets TargetRegistrar,
	schedule PredictionSchedule,
	cfg ForecastConfig,
	opts ...EngineOption,
) *ForecastEngine {
	if cfg.TargetMargin <= 0 {
		cfg.TargetMargin = 0.02
	}
	if cfg.LabelLocation == nil {
		cfg.LabelLocation = time.UTC
	}
	if cfg.Params.Horizon <= 0 {
		cfg.Params.Horizon = schedule.Horizon()
	}
	e := &ForecastEngine{
		lstm:     lstm,
		gbt:      gbt,
		history:  history,
		targets:  targets,
		schedule: schedule,
		cfg:      cfg,
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ready reports whether both models are trained.
func (e *ForecastEngine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lstm.Trained() && e.gbt.Trained()
}

// GenerateForecast runs inference for one pair. It never trains. With too
// little history, or with no trained model, the predictions are nil and
// Details explains why; neither case is an error. A target is registered
// with the monitor only when a combined prediction exists.
func (e *ForecastEngine) GenerateForecast(ctx context.Context, pairAddress string) (models.ForecastResult, error) {
	pair := util.NormalizeAddress(pairAddress)
	now := e.now()
	res := models.ForecastResult{
		PairAddress:    pair,
		PredictedLabel: "N/A",
		ExpiryLabel:    "N/A",
		GeneratedAt:    now,
	}

	history, err := e.history.GetPriceHistory(ctx, pair)
	if err != nil {
		return res, fmt.Errorf("generate forecast: %w", err)
	}
	if len(history) < e.cfg.MinHistory || len(history) == 0 {
		res.Details = models.DetailsNotEnough
		return res, nil
	}

	prices := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
	}
	scaler := features.NewMinMaxScaler(prices)
	res.Indicators = features.LatestIndicators(history, e.cfg.Params)

	e.mu.Lock()
	res.LSTMPrediction = e.predictLSTM(pair, history, scaler)
	res.GBTPrediction = e.predictGBT(pair, history, scaler)
	e.mu.Unlock()

	res.CombinedPrediction, res.Details = Combine(res.LSTMPrediction, res.GBTPrediction)

	res.Window = e.schedule.RoundedPredictionWindow(now)
	res.PredictedLabel = util.FormatLabel(res.Window.Start, e.cfg.LabelLocation)
	res.ExpiryLabel = util.FormatLabel(res.Window.Expiry, e.cfg.LabelLocation)

	res.PriceAtPrediction = models.Float(prices[len(prices)-1])
	if rec, err := e.history.GetRecord(ctx, pair); err == nil && rec.CurrentPrice != nil {
		res.PriceAtPrediction = models.Float(*rec.CurrentPrice)
	}

	if res.CombinedPrediction != nil {
		target := *res.CombinedPrediction * (1 + e.cfg.TargetMargin)
		res.TargetPrice = &target
		if e.targets != nil {
			e.targets.UpdateTarget(ctx, pair, target, res.Window)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordPairProcessed("forecast")
	}
	return res, nil
}

func (e *ForecastEngine) predictLSTM(pair string, history []models.PricePoint, scaler features.MinMaxScaler) *float64 {
	if !e.lstm.Trained() {
		return nil
	}
	window := features.LatestWindow(history, e.cfg.Params.Lookback, scaler)
	if window == nil {
		return nil
	}
	v, err := e.lstm.Predict(window)
	if err != nil {
		if !errors.Is(err, drepo.ErrModelNotReady) {
			e.log.Warn("lstm inference failed", logger.Pair(pair), logger.Error(err))
		}
		return nil
	}
	return models.Float(scaler.Inverse(v))
}

func (e *ForecastEngine) predictGBT(pair string, history []models.PricePoint, scaler features.MinMaxScaler) *float64 {
	if !e.gbt.Trained() {
		return nil
	}
	rows := features.FeatureRows(history, e.cfg.Params)
	if len(rows) == 0 {
		return nil
	}
	v, err := e.gbt.Predict(rows[len(rows)-1].Features)
	if err != nil {
		if !errors.Is(err, drepo.ErrModelNotReady) {
			e.log.Warn("gbt inference failed", logger.Pair(pair), logger.Error(err))
		}
		return nil
	}
	return models.Float(scaler.Inverse(v))
}

// Combine averages the available predictions. With only one, that one is
// used; with none the result is nil.
func Combine(lstm, gbt *float64) (*float64, string) {
	switch {
	case lstm != nil && gbt != nil:
		return models.Float((*lstm + *gbt) / 2), models.DetailsCombined
	case lstm != nil:
		return models.Float(*lstm), models.DetailsLSTMOnly
	case gbt != nil:
		return models.Float(*gbt), models.DetailsGBTOnly
	default:
		return nil, models.DetailsNoPrediction
	}
}

// RetrainAll builds the sequence and feature datasets of every pair with
// enough history and trains fresh models on their union. Each pair is scaled
// by its own price range, so the pooled labels share one [0,1] scale. A model
// whose pooled dataset is empty keeps its previous weights. Both models are
// saved afterwards.
func (e *ForecastEngine) RetrainAll(ctx context.Context) (models.TrainReport, error) {
	var report models.TrainReport
	start := time.Now()

	pairs, err := e.history.GetAllPairAddresses(ctx)
	if err != nil {
		return report, fmt.Errorf("retrain: %w", err)
	}

	var seq, feat features.Dataset
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		history, err := e.history.GetPriceHistory(ctx, pair)
		if err != nil {
			e.log.Error("retrain: load history failed", logger.Pair(pair), logger.Error(err))
			report.Skipped++
			continue
		}
		if len(history) < e.cfg.MinHistory || len(history) == 0 {
			e.log.Info("retrain: not enough history", logger.Pair(pair),
				logger.Int("have", len(history)), logger.Int("need", e.cfg.MinHistory))
			report.Skipped++
			continue
		}

		prices := make([]float64, len(history))
		for i, p := range history {
			prices[i] = p.Price
		}
		scaler := features.NewMinMaxScaler(prices)

		s := features.BuildSequenceDataset(history, e.cfg.Params, scaler)
		seq.X = append(seq.X, s.X...)
		seq.Y = append(seq.Y, s.Y...)

		f := features.BuildFeatureDataset(features.FeatureRows(history, e.cfg.Params), e.cfg.Params, scaler)
		feat.X = append(feat.X, f.X...)
		feat.Y = append(feat.Y, f.Y...)
		report.Pairs++
	}
	report.LSTMSamples = seq.Len()
	report.GBTSamples = feat.Len()

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq.Len() > 0 {
		if err := e.lstm.Fit(seq.X, seq.Y); err != nil {
			e.log.Error("lstm training failed", logger.Error(err))
		} else {
			report.LSTMTrained = true
		}
	}
	if feat.Len() > 0 {
		if err := e.gbt.Fit(feat.X, feat.Y); err != nil {
			e.log.Error("gbt training failed", logger.Error(err))
		} else {
			report.GBTTrained = true
		}
	}
	if err := e.saveLocked(); err != nil {
		e.log.Error("save models failed", logger.Error(err))
	}

	report.FinishedAt = e.now()
	if e.metrics != nil {
		e.metrics.RecordLatency("retrain", time.Since(start).Seconds())
	}
	e.log.Info("retrain finished",
		logger.Int("pairs", report.Pairs), logger.Int("skipped", report.Skipped),
		logger.Int("lstm_samples", report.LSTMSamples), logger.Int("gbt_samples", report.GBTSamples),
		logger.Bool("lstm_trained", report.LSTMTrained), logger.Bool("gbt_trained", report.GBTTrained))
	return report, nil
}

// SaveModels writes every trained model to the model directory.
func (e *ForecastEngine) SaveModels() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked()
}

func (e *ForecastEngine) saveLocked() error {
	if e.cfg.ModelDir == "" {
		return nil
	}
	var errs []error
	for _, m := range []interface{}{e.lstm, e.gbt} {
		ms, ok := m.(modelStore)
		if !ok {
			continue
		}
		if err := ms.Save(e.cfg.ModelDir); err != nil && !errors.Is(err, drepo.ErrModelNotReady) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadModels restores saved models. Missing files are not an error; the
// corresponding model simply stays untrained.
func (e *ForecastEngine) LoadModels() error {
	if e.cfg.ModelDir == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, m := range map[string]interface{}{"lstm": e.lstm, "gbt": e.gbt} {
		ms, ok := m.(modelStore)
		if !ok {
			continue
		}
		err := ms.Load(e.cfg.ModelDir)
		switch {
		case err == nil:
			e.log.Info("model loaded", logger.String("model", name), logger.String("dir", e.cfg.ModelDir))
		case errors.Is(err, os.ErrNotExist):
			e.log.Info("no saved model", logger.String("model", name))
		default:
			errs = append(errs, fmt.Errorf("load %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
