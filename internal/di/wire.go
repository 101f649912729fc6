//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"WindowEdge/internal/domain/repository"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/internal/service/ratelimit"
	"WindowEdge/internal/services/orders"
	"WindowEdge/internal/services/pricefeed"
	"WindowEdge/internal/services/volatility"
	"WindowEdge/pkg/config"
	"WindowEdge/pkg/metrics"
	"WindowEdge/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideRedisCache,
		ProvideHistoryStore,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ratelimit.New,
		ProvideVenueBase,
		ProvideMetadataProvider,
		ProvideOrderBookProvider,
		ProvideOrderExecutor,

		// Engine components
		ProvideEstimator,
		wire.Bind(new(domsvc.VolatilityEstimator), new(*volatility.Estimator)),
		ProvideTracker,
		ProvideSignalEngine,
		ProvideSizer,
		ProvideRiskManager,
		ProvideOrderManager,
		wire.Bind(new(domsvc.OrderSubmitter), new(*orders.Manager)),
		ProvidePriceCache,
		wire.Bind(new(repository.PriceFeed), new(*pricefeed.Cache)),

		// Use cases
		ProvideJournal,
		ProvidePipeline,
		ProvideFeed,
		ProvideDecisionEngine,
		ProvideScheduler,
		ProvideStatusUseCase,

		// Transport
		ProvideStatusHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
