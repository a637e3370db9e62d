//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"DexSignal/pkg/config"
	"DexSignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application with
// a cleanup that closes every opened client in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideEventPublisher,
		ProvideStorage,
		ProvidePairStore,
		ProvideTradeLogStore,
		ProvideCache,
		ProvideMonitorStore,
		ProvideAPICache,
		ProvideArchive,

		// Market data sources
		ProvideLimiter,
		ProvideAlchemy,
		ProvideDexscreener,
		ProvideSubgraph,

		// Use cases
		ProvideMarketData,
		ProvideHistoryStore,
		ProvideSchedule,
		ProvideHub,
		ProvideNotifier,
		ProvideAccuracy,
		ProvideMonitor,
		ProvideForecastEngine,
		ProvideCycles,
		ProvideRunner,
		ProvideRetrainJob,
		ProvideConsumer,

		// Transport
		ProvideAPIHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
