package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	"DexSignal/internal/handler/api"
	mid "DexSignal/internal/middleware"
	internalrepo "DexSignal/internal/repository"
	svccache "DexSignal/internal/service/cache"
	"DexSignal/internal/service/marketdata"
	svcmetrics "DexSignal/internal/service/metrics"
	"DexSignal/internal/service/ratelimit"
	"DexSignal/internal/services/features"
	"DexSignal/internal/services/forecast"
	"DexSignal/internal/usecase"
	pkgcache "DexSignal/pkg/cache"
	pkgch "DexSignal/pkg/clickhouse"
	"DexSignal/pkg/config"
	xhttp "DexSignal/pkg/http"
	pkgkafka "DexSignal/pkg/kafka"
	applogger "DexSignal/pkg/logger"
	"DexSignal/pkg/metrics"
	"DexSignal/pkg/queue"
	"DexSignal/pkg/server"
)

// Storage is a backend that keeps both pair records and trade logs.
type Storage interface {
	drepo.PairStore
	drepo.TradeLogStore
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Producer.Async),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithKeyOrdering(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the root logger. With Kafka enabled, repeated
// warnings and errors are folded and shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval: 30 * time.Second,
		Topic:        cfg.Kafka.Topics.Logs,
		Publisher:    internalrepo.NewKafkaEventPublisher(producer, internalrepo.EventTopics{}, nil),
		Levels:       []string{"warn", "error"},
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics registers the domain and job collectors on the default
// registry, which /metrics serves.
func ProvideMetrics() drepo.Metrics {
	svcmetrics.Register(prometheus.DefaultRegisterer)
	return metrics.New()
}

func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, m drepo.Metrics) drepo.EventPublisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, internalrepo.EventTopics{
		Signals:  cfg.Kafka.Topics.Signals,
		Outcomes: cfg.Kafka.Topics.Outcomes,
	}, m)
}

// ProvideStorage opens the configured record backend and ensures its schema.
func ProvideStorage(cfg *config.Config, l *applogger.Logger) (Storage, func(), error) {
	var (
		s   Storage
		err error
	)
	driver := drepo.NormalizeDriver(cfg.Storage.Driver)
	switch driver {
	case drepo.DriverMemory:
		s = internalrepo.NewMemoryStore()
	case drepo.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err = internalrepo.NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
	default:
		s, err = internalrepo.NewSQLiteStore(cfg.Storage.SQLitePath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// PairStore.Init and TradeLogStore.Init create the same schema
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("init %s storage: %w", driver, err)
	}
	l.Info("storage ready", applogger.String("driver", string(driver)))
	return s, func() { _ = s.Close() }, nil
}

func ProvidePairStore(s Storage) drepo.PairStore { return s }

func ProvideTradeLogStore(s Storage) drepo.TradeLogStore { return s }

// ProvideCache returns Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config) (pkgcache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		c := pkgcache.NewMemoryCache()
		return c, func() { _ = c.Close() }, nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 0),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

func ProvideMonitorStore(c pkgcache.Service, cfg *config.Config) drepo.MonitorStateStore {
	return internalrepo.NewCacheMonitorStore(c, cfg.Monitor.StaleAfter)
}

// ProvideAPICache shares the read cache across replicas when Redis is on.
func ProvideAPICache(c pkgcache.Service, cfg *config.Config) svccache.BytesCache {
	if cfg.Redis.Enabled {
		return svccache.NewSharedCache(c, "api")
	}
	return svccache.NewTTLCache()
}

// ProvideArchive returns nil when ClickHouse is disabled.
func ProvideArchive(cfg *config.Config, m drepo.Metrics, l *applogger.Logger) (*mid.ArchivePipeline, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	archive := internalrepo.NewCHArchive(client, cfg.ClickHouse.Database, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	pipe := mid.NewArchivePipeline(archive, m,
		mid.WithBufferSize(cfg.ClickHouse.BufferSize),
		mid.WithBatchSize(cfg.ClickHouse.BatchSize),
		mid.WithFlushInterval(cfg.ClickHouse.FlushInterval),
		mid.WithFlushRetries(cfg.ClickHouse.FlushRetries),
		mid.WithPipelineLogger(l),
	)
	return pipe, func() { _ = client.Close() }, nil
}

// ProvideLimiter installs one bucket per market data source.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	lim := ratelimit.New()
	lim.Register(marketdata.SourceAlchemy, cfg.Sources.Alchemy.RPS, 1)
	lim.Register(marketdata.SourceDexscreener, cfg.Sources.Dexscreener.RPS, 1)
	lim.Register(marketdata.SourceSubgraph, cfg.Sources.Subgraph.RPS, 1)
	return lim
}

func ProvideAlchemy(cfg *config.Config, lim *ratelimit.Limiter, m drepo.Metrics, l *applogger.Logger) *marketdata.Alchemy {
	src := cfg.Sources.Alchemy
	return marketdata.NewAlchemy(src.BaseURL, src.APIKey, src.HistoryTimeout,
		marketdata.WithTimeout(src.PriceTimeout),
		marketdata.WithLimiter(lim),
		marketdata.WithMetrics(m),
		marketdata.WithLogger(l),
	)
}

func ProvideDexscreener(cfg *config.Config, lim *ratelimit.Limiter, m drepo.Metrics, l *applogger.Logger) *marketdata.Dexscreener {
	quote, _ := cfg.QuoteTokenAddress()
	filter := marketdata.PairFilter{
		DexID:        cfg.Market.DexID,
		QuoteSymbol:  cfg.Market.QuoteSymbol,
		QuoteAddress: quote,
	}
	return marketdata.NewDexscreener(cfg.Sources.Dexscreener.BaseURL, filter,
		marketdata.WithTimeout(cfg.Sources.Dexscreener.Timeout),
		marketdata.WithLimiter(lim),
		marketdata.WithMetrics(m),
		marketdata.WithLogger(l),
	)
}

func ProvideSubgraph(cfg *config.Config, lim *ratelimit.Limiter, m drepo.Metrics, l *applogger.Logger) *marketdata.Subgraph {
	src := cfg.Sources.Subgraph
	return marketdata.NewSubgraph(src.URL, src.APIKey,
		marketdata.WithTimeout(src.Timeout),
		marketdata.WithLimiter(lim),
		marketdata.WithMetrics(m),
		marketdata.WithLogger(l),
	)
}

func ProvideMarketData(
	cfg *config.Config,
	prices *marketdata.Alchemy,
	discovery *marketdata.Dexscreener,
	stats *marketdata.Subgraph,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.MarketDataAggregator {
	return usecase.NewMarketDataAggregator(prices, discovery, cfg.Market.ChainID, cfg.Market.HistoricalDataDays,
		usecase.WithPoolStats(stats),
		usecase.WithAggregatorMetrics(m),
		usecase.WithAggregatorLogger(l),
	)
}

func labelLocation(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Accuracy.LabelTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func ProvideHistoryStore(cfg *config.Config, store drepo.PairStore, l *applogger.Logger) *usecase.HistoryStore {
	return usecase.NewHistoryStore(store, cfg.MonitoredAddresses(), usecase.HistoryConfig{
		MaxAge:        time.Duration(cfg.Market.HistoricalDataDays) * 24 * time.Hour,
		Retention:     cfg.Market.HistoryRetentionLimit,
		SignalLength:  cfg.Market.SignalHistoryLength,
		TargetLength:  cfg.Market.TargetPriceHistoryLength,
		LabelLocation: labelLocation(cfg),
	}, usecase.WithHistoryLogger(l))
}

func ProvideSchedule(cfg *config.Config) usecase.PredictionSchedule {
	return usecase.NewPredictionSchedule(cfg.Forecast.AllowedHours, cfg.Forecast.Horizon)
}

func ProvideHub(cfg *config.Config, l *applogger.Logger) *api.Hub {
	return api.NewHub(l, cfg.Server.AllowedOrigins)
}

// ProvideNotifier fans events out to Kafka, the ClickHouse archive and the
// websocket hub.
func ProvideNotifier(
	history *usecase.HistoryStore,
	pub drepo.EventPublisher,
	archive *mid.ArchivePipeline,
	hub *api.Hub,
	l *applogger.Logger,
) *usecase.Notifier {
	opts := []usecase.NotifierOption{
		usecase.WithEventPublisher(pub),
		usecase.WithBroadcaster(hub),
		usecase.WithNotifierLogger(l),
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchiveSink(archive))
	}
	return usecase.NewNotifier(history, opts...)
}

func ProvideAccuracy(cfg *config.Config, history *usecase.HistoryStore, l *applogger.Logger) *usecase.AccuracyTracker {
	return usecase.NewAccuracyTracker(history, cfg.Accuracy.ExpectedPairCount, usecase.WithAccuracyLogger(l))
}

// ProvideMonitor sends outcomes to the accuracy tracker first, then to the
// notifier.
func ProvideMonitor(
	cfg *config.Config,
	history *usecase.HistoryStore,
	store drepo.MonitorStateStore,
	accuracy *usecase.AccuracyTracker,
	notifier *usecase.Notifier,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.PriceTargetMonitor {
	return usecase.NewPriceTargetMonitor(history, cfg.Monitor.StaleAfter,
		usecase.WithMonitorStore(store),
		usecase.WithOutcomeSink(accuracy.HandleOutcome),
		usecase.WithOutcomeSink(notifier.HandleOutcome),
		usecase.WithSupersededHook(notifier.TargetSuperseded),
		usecase.WithMonitorMetrics(m),
		usecase.WithMonitorLogger(l),
	)
}

func featureParams(cfg *config.Config) features.Params {
	return features.Params{
		Lookback:   cfg.Forecast.LSTMLookback,
		RSIPeriod:  cfg.Forecast.RSIPeriod,
		MACDFast:   cfg.Forecast.MACDFast,
		MACDSlow:   cfg.Forecast.MACDSlow,
		MACDSignal: cfg.Forecast.MACDSignal,
		Horizon:    cfg.Forecast.Horizon,
	}
}

func ProvideForecastEngine(
	cfg *config.Config,
	history *usecase.HistoryStore,
	monitor *usecase.PriceTargetMonitor,
	schedule usecase.PredictionSchedule,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.ForecastEngine {
	fc := cfg.Forecast
	lstm := forecast.NewLSTM(forecast.LSTMConfig{
		Units:        fc.LSTMUnits,
		Epochs:       fc.LSTMEpochs,
		LearningRate: fc.LSTMLearnRate,
		Seed:         fc.Seed,
	})
	gbt := forecast.NewGBT(forecast.GBTConfig{
		Rounds:       fc.GBTRounds,
		LearningRate: fc.GBTLearningRate,
		MaxDepth:     fc.GBTMaxDepth,
	})
	return usecase.NewForecastEngine(lstm, gbt, history, monitor, schedule, usecase.ForecastConfig{
		Params:        featureParams(cfg),
		MinHistory:    cfg.MinHistoryLength(),
		TargetMargin:  fc.TargetMargin,
		ModelDir:      fc.ModelDir,
		LabelLocation: labelLocation(cfg),
	}, usecase.WithEngineMetrics(m), usecase.WithEngineLogger(l))
}

func tokenRefs(cfg *config.Config) []models.TokenRef {
	out := make([]models.TokenRef, 0, len(cfg.Market.Tokens))
	for _, t := range cfg.Market.Tokens {
		out = append(out, models.TokenRef{Address: strings.ToLower(t.Address), Symbol: t.Symbol, Name: t.Name})
	}
	return out
}

func ProvideCycles(
	cfg *config.Config,
	market *usecase.MarketDataAggregator,
	history *usecase.HistoryStore,
	engine *usecase.ForecastEngine,
	monitor *usecase.PriceTargetMonitor,
	accuracy *usecase.AccuracyTracker,
	notifier *usecase.Notifier,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.Cycles {
	policy := usecase.SignalPolicy{
		Band:         cfg.Forecast.SignalBand,
		TargetMargin: cfg.Forecast.TargetMargin,
		VolWindow:    cfg.Forecast.LSTMLookback,
	}
	return usecase.NewCycles(tokenRefs(cfg), market, history, engine, monitor, accuracy, notifier, policy, featureParams(cfg),
		usecase.WithPairDelay(cfg.Schedule.PairDelay),
		usecase.WithCyclesMetrics(m),
		usecase.WithCyclesLogger(l),
	)
}

// ProvideRunner schedules every loop with job duration and failure metrics.
func ProvideRunner(cfg *config.Config, cycles *usecase.Cycles, schedule usecase.PredictionSchedule, l *applogger.Logger) *usecase.Runner {
	sc := cfg.Schedule
	jobs := cycles.Jobs(schedule, usecase.Intervals{
		Signal:   sc.SignalInterval,
		Monitor:  sc.MonitorInterval,
		Sweep:    sc.MonitorCleanupInterval,
		Retrain:  sc.RetrainInterval,
		Rotation: sc.AccuracyRotationInterval,
	})
	for i := range jobs {
		jobs[i].Job = svcmetrics.Instrument(jobs[i].Job)
	}
	return usecase.NewRunner(l, jobs...)
}

// ProvideRetrainJob is the job both the admin endpoint and startup enqueue.
func ProvideRetrainJob(cycles *usecase.Cycles) server.RetrainJob {
	return svcmetrics.Instrument(queue.Func(usecase.JobRetrain, cycles.Retrain))
}

// ProvideConsumer returns nil unless both Kafka and its consumer are enabled.
func ProvideConsumer(cfg *config.Config, trades drepo.TradeLogStore, m drepo.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	kc := cfg.Kafka
	if !kc.Enabled || !kc.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(kc.Brokers),
		pkgkafka.WithConsumerGroupID(kc.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(kc.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(kc.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(kc.Consumer.RetryMax, kc.Consumer.BackoffMin, kc.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.Consumer.MinBytes, kc.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewTradeLogHandler(kc.Topics.TradeLogs, trades, m, l))
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.NewLoggingHook(l, kc.Consumer.SlowLog)))
	return consumer, nil
}

func ProvideAPIHandler(
	cycles *usecase.Cycles,
	history *usecase.HistoryStore,
	monitor *usecase.PriceTargetMonitor,
	accuracy *usecase.AccuracyTracker,
	trades drepo.TradeLogStore,
	storage Storage,
	runner *usecase.Runner,
	retrain server.RetrainJob,
	cache svccache.BytesCache,
	l *applogger.Logger,
) *api.Handler {
	return api.NewHandler(l, cycles, history, monitor, accuracy,
		api.WithTradeLogs(trades),
		api.WithCache(cache),
		api.WithRetrain(func(ctx context.Context) error {
			return runner.Trigger(ctx, usecase.LaneMarket, retrain)
		}),
		api.WithHealthChecks(api.HealthCheck{Name: "storage", Check: storage.Health}),
	)
}

func ProvideHTTPServer(cfg *config.Config, handler *api.Handler, hub *api.Hub, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Routes{handler, hub},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.EnableCORS),
		xhttp.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.Runner,
	retrain server.RetrainJob,
	engine *usecase.ForecastEngine,
	monitor *usecase.PriceTargetMonitor,
	hub *api.Hub,
	httpServer *xhttp.Server,
	archive *mid.ArchivePipeline,
	consumer *pkgkafka.Consumer,
) *server.App {
	return server.New(cfg, l, server.Components{
		Runner:   runner,
		Retrain:  retrain,
		Engine:   engine,
		Monitor:  monitor,
		Hub:      hub,
		HTTP:     httpServer,
		Archive:  archive,
		Consumer: consumer,
	})
}
