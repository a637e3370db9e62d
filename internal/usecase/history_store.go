package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/logger"
	"DexSignal/pkg/util"
)

// HistoryConfig bounds the per-pair histories.
type HistoryConfig struct {
	MaxAge        time.Duration // age window of the price history
	Retention     int           // count limit of every history
	SignalLength  int
	TargetLength  int
	LabelLocation *time.Location
}

// HistoryStore owns the durable TokenPairRecord of every pair. All writes to
// one pair are serialized, so each read-modify-write is atomic within the
// process.
type HistoryStore struct {
	store     drepo.PairStore
	cfg       HistoryConfig
	monitored map[string]struct{}
	locks     *keyedMutex
	log       *logger.Logger
	now       func() time.Time
}

type HistoryOption func(*HistoryStore)

func WithHistoryLogger(l *logger.Logger) HistoryOption {
	return func(h *HistoryStore) { h.log = l }
}

// WithHistoryClock replaces time.Now, for tests.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *HistoryStore) { h.now = now }
}

// NewHistoryStore builds the store. monitored lists the target token
// addresses that may be written.
func NewHistoryStore(store drepo.PairStore, monitored []string, cfg HistoryConfig, opts ...HistoryOption) *HistoryStore {
	if cfg.Retention <= 0 {
		cfg.Retention = 200
	}
	if cfg.SignalLength <= 0 {
		cfg.SignalLength = 5
	}
	if cfg.TargetLength <= 0 {
		cfg.TargetLength = 20
	}
	if cfg.LabelLocation == nil {
		cfg.LabelLocation = time.UTC
	}
	h := &HistoryStore{
		store:     store,
		cfg:       cfg,
		monitored: make(map[string]struct{}, len(monitored)),
		locks:     newKeyedMutex(),
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, a := range monitored {
		h.monitored[util.NormalizeAddress(a)] = struct{}{}
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IsMonitored reports whether token is one of the configured target tokens.
func (h *HistoryStore) IsMonitored(token string) bool {
	_, ok := h.monitored[util.NormalizeAddress(token)]
	return ok
}

// Config returns the bounds the store was built with.
func (h *HistoryStore) Config() HistoryConfig { return h.cfg }

// InitializeOrUpdateMetadata upserts the identity of a pair.
func (h *HistoryStore) InitializeOrUpdateMetadata(ctx context.Context, meta models.PairMetadata) (*models.TokenPairRecord, error) {
	if !h.IsMonitored(meta.TargetTokenAddress) {
		h.log.Warn("rejecting metadata of unmonitored token",
			logger.Pair(meta.PairAddress), logger.String("token", meta.TargetTokenAddress))
		return nil, fmt.Errorf("init metadata %s: %w", meta.TargetTokenSymbol, drepo.ErrInvalidPair)
	}

	key := util.NormalizeAddress(meta.PairAddress)
	unlock := h.locks.Lock(key)
	defer unlock()

	rec, err := h.store.Get(ctx, key)
	switch {
	case errors.Is(err, drepo.ErrNotFound):
		rec = &models.TokenPairRecord{
			PairAddress:             key,
			PredictionPredictedTime: "N/A",
			PredictionExpiryTime:    "N/A",
		}
	case err != nil:
		return nil, fmt.Errorf("init metadata: %w", err)
	}

	rec.ChainID = meta.ChainID
	rec.PairName = meta.PairName
	rec.BaseTokenAddress = meta.BaseTokenAddress
	rec.BaseTokenSymbol = meta.BaseTokenSymbol
	rec.TargetTokenAddress = meta.TargetTokenAddress
	rec.TargetTokenSymbol = meta.TargetTokenSymbol
	rec.TargetTokenName = meta.TargetTokenName
	rec.LastUpdated = h.now()

	if err := h.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("init metadata: %w", err)
	}
	return rec.Clone(), nil
}

// MergeMarketData folds a fresh observation and an optional historical
// series into the record. Price samples are deduplicated per second (the
// latest write wins), limited to the age window, sorted ascending and
// trimmed to the retention count. Volume and liquidity are appended FIFO;
// nil values are not appended.
func (h *HistoryStore) MergeMarketData(ctx context.Context, pairAddress string, price float64, volume, liquidity *float64, historical []models.PricePoint) error {
	return h.mutate(ctx, pairAddress, "merge market data", func(rec *models.TokenPairRecord, now time.Time) {
		incoming := make([]models.PricePoint, 0, len(rec.PriceHistory)+len(historical)+1)
		incoming = append(incoming, rec.PriceHistory...)
		incoming = append(incoming, historical...)
		incoming = append(incoming, models.PricePoint{Price: price, Timestamp: now})
		rec.PriceHistory = mergePrices(incoming, now.Add(-h.cfg.MaxAge), h.cfg.MaxAge > 0, h.cfg.Retention)

		if volume != nil {
			rec.VolumeHistory = appendFIFO(rec.VolumeHistory, models.ValuePoint{Value: *volume, Timestamp: now}, h.cfg.Retention)
		}
		if liquidity != nil {
			rec.LiquidityHistory = appendFIFO(rec.LiquidityHistory, models.ValuePoint{Value: *liquidity, Timestamp: now}, h.cfg.Retention)
		}

		rec.CurrentPrice = models.Float(price)
		rec.CurrentVolume = copyFloat(volume)
		rec.CurrentLiquidity = copyFloat(liquidity)
	})
}

// mergePrices dedups by second key keeping the last occurrence, drops
// samples older than cutoff, sorts ascending and keeps the newest limit.
func mergePrices(points []models.PricePoint, cutoff time.Time, useCutoff bool, limit int) []models.PricePoint {
	byKey := make(map[string]models.PricePoint, len(points))
	for _, p := range points {
		if p.Timestamp.IsZero() {
			continue
		}
		p.Timestamp = p.Timestamp.UTC().Truncate(time.Second)
		byKey[util.SecondKey(p.Timestamp)] = p
	}

	out := make([]models.PricePoint, 0, len(byKey))
	for _, p := range byKey {
		if useCutoff && p.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = append([]models.PricePoint(nil), out[len(out)-limit:]...)
	}
	return out
}

func appendFIFO(xs []models.ValuePoint, v models.ValuePoint, limit int) []models.ValuePoint {
	xs = append(xs, v)
	if limit > 0 && len(xs) > limit {
		xs = append([]models.ValuePoint(nil), xs[len(xs)-limit:]...)
	}
	return xs
}

// AppendSignalSnapshot pushes s into the bounded signal ring.
func (h *HistoryStore) AppendSignalSnapshot(ctx context.Context, pairAddress string, s models.SignalSnapshot) error {
	return h.mutate(ctx, pairAddress, "append signal", func(rec *models.TokenPairRecord, now time.Time) {
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		rec.SignalHistory = append(rec.SignalHistory, s.Clone())
		if n := len(rec.SignalHistory); n > h.cfg.SignalLength {
			rec.SignalHistory = append([]models.SignalSnapshot(nil), rec.SignalHistory[n-h.cfg.SignalLength:]...)
		}
	})
}

// UpdateForecast stores the latest inference. A forecast with a target also
// opens a target history entry for its cycle, replacing an older entry of
// the same cycle.
func (h *HistoryStore) UpdateForecast(ctx context.Context, pairAddress string, f models.ForecastResult) error {
	return h.mutate(ctx, pairAddress, "update forecast", func(rec *models.TokenPairRecord, now time.Time) {
		rec.LatestLSTMPrediction = copyFloat(f.LSTMPrediction)
		rec.LatestGBTPrediction = copyFloat(f.GBTPrediction)
		rec.LatestCombinedPrediction = copyFloat(f.CombinedPrediction)
		rec.TargetPriceUSD = copyFloat(f.TargetPrice)
		rec.PriceAtPrediction = copyFloat(f.PriceAtPrediction)
		rec.ForecastDetails = f.Details

		if f.LSTMPrediction != nil || f.CombinedPrediction != nil {
			rec.PredictionWindow = f.Window
			rec.PredictionPredictedTime = util.FormatLabel(f.Window.Start, h.cfg.LabelLocation)
			rec.PredictionExpiryTime = util.FormatLabel(f.Window.Expiry, h.cfg.LabelLocation)
		} else {
			rec.PredictionWindow = models.PredictionWindow{}
			rec.PredictionPredictedTime = "N/A"
			rec.PredictionExpiryTime = "N/A"
		}

		if !f.HasTarget() {
			return
		}
		entry := models.TargetRecord{
			CycleID:           f.Window.CycleID(),
			PredictedPrice:    *f.CombinedPrediction,
			TargetPrice:       *f.TargetPrice,
			PriceAtPrediction: copyFloat(f.PriceAtPrediction),
			PredictionTime:    f.Window.Start,
			ExpiryTime:        f.Window.Expiry,
			HitStatus:         models.HitNotReached,
		}
		replaced := false
		for i := range rec.TargetPriceHistory {
			if rec.TargetPriceHistory[i].CycleID == entry.CycleID {
				rec.TargetPriceHistory[i] = entry
				replaced = true
			}
		}
		if !replaced {
			rec.TargetPriceHistory = append(rec.TargetPriceHistory, entry)
		}
		if n := len(rec.TargetPriceHistory); n > h.cfg.TargetLength {
			rec.TargetPriceHistory = append([]models.TargetRecord(nil), rec.TargetPriceHistory[n-h.cfg.TargetLength:]...)
		}
	})
}

// ResolveTarget fills in the outcome of the target history entry of cycleID.
// Unknown cycles are ignored.
func (h *HistoryStore) ResolveTarget(ctx context.Context, pairAddress string, o models.Outcome) error {
	return h.mutate(ctx, pairAddress, "resolve target", func(rec *models.TokenPairRecord, _ time.Time) {
		for i := range rec.TargetPriceHistory {
			t := &rec.TargetPriceHistory[i]
			if t.CycleID != o.CycleID {
				continue
			}
			at := o.ResolvedAt
			t.HitStatus = o.Status
			t.HitTime = &at
			t.ActualPrice = copyFloat(o.Price)
		}
	})
}

// UpdateAccuracy applies fn to the pair's counters and persists them when fn
// reports a change.
func (h *HistoryStore) UpdateAccuracy(ctx context.Context, pairAddress string, fn func(*models.PredictionAccuracy) bool) (bool, error) {
	key := util.NormalizeAddress(pairAddress)
	unlock := h.locks.Lock(key)
	defer unlock()

	rec, err := h.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("update accuracy: %w", err)
	}
	if !fn(&rec.PredictionAccuracy) {
		return false, nil
	}
	if err := h.store.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("update accuracy: %w", err)
	}
	return true, nil
}

// mutate runs fn under the pair lock on a loaded record and saves it. Records
// whose target token is not monitored are never written.
func (h *HistoryStore) mutate(ctx context.Context, pairAddress, op string, fn func(*models.TokenPairRecord, time.Time)) error {
	key := util.NormalizeAddress(pairAddress)
	unlock := h.locks.Lock(key)
	defer unlock()

	rec, err := h.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !h.IsMonitored(rec.TargetTokenAddress) {
		h.log.Warn("skipping write for unmonitored token",
			logger.Pair(key), logger.String("op", op), logger.String("token", rec.TargetTokenSymbol))
		return fmt.Errorf("%s: %w", op, drepo.ErrInvalidPair)
	}

	now := h.now()
	fn(rec, now)
	rec.LastUpdated = now
	if err := h.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetRecord returns a copy of the stored record.
func (h *HistoryStore) GetRecord(ctx context.Context, pairAddress string) (*models.TokenPairRecord, error) {
	rec, err := h.store.Get(ctx, util.NormalizeAddress(pairAddress))
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetPriceHistory returns the ascending price history, empty for unknown pairs.
func (h *HistoryStore) GetPriceHistory(ctx context.Context, pairAddress string) ([]models.PricePoint, error) {
	rec, err := h.store.Get(ctx, util.NormalizeAddress(pairAddress))
	if errors.Is(err, drepo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}
	return rec.PriceHistory, nil
}

// GetAllPairAddresses returns the distinct stored pair addresses, sorted.
func (h *HistoryStore) GetAllPairAddresses(ctx context.Context) ([]string, error) {
	addrs, err := h.store.ListAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = util.NormalizeAddress(a)
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// ListRecords returns copies of every stored record.
func (h *HistoryStore) ListRecords(ctx context.Context) ([]*models.TokenPairRecord, error) {
	recs, err := h.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// keyedMutex hands out one mutex per key. Entries are reference counted and
// dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex of key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
