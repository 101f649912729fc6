package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"WindowEdge/internal/domain/repository"
	domsvc "WindowEdge/internal/domain/service"
	"WindowEdge/internal/handler/api"
	mid "WindowEdge/internal/middleware"
	internalrepo "WindowEdge/internal/repository"
	"WindowEdge/internal/service/paper"
	"WindowEdge/internal/service/ratelimit"
	"WindowEdge/internal/service/stream"
	"WindowEdge/internal/service/venue"
	"WindowEdge/internal/services/orders"
	"WindowEdge/internal/services/pricefeed"
	"WindowEdge/internal/services/risk"
	"WindowEdge/internal/services/signal"
	"WindowEdge/internal/services/sizing"
	"WindowEdge/internal/services/volatility"
	"WindowEdge/internal/services/window"
	"WindowEdge/internal/usecase"
	"WindowEdge/pkg/cache"
	pkgch "WindowEdge/pkg/clickhouse"
	"WindowEdge/pkg/config"
	xhttp "WindowEdge/pkg/http"
	pkgkafka "WindowEdge/pkg/kafka"
	"WindowEdge/pkg/logger"
	"WindowEdge/pkg/metrics"
	"WindowEdge/pkg/queue"
	"WindowEdge/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when it backs history or the journal.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Persistence.Backend != "redis" && cfg.Journal.Backend != "redis" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddress(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideHistoryStore opens the volatility history backend.
func ProvideHistoryStore(cfg *config.Config, rc *cache.RedisCache) (repository.HistoryStore, error) {
	switch cfg.Persistence.Backend {
	case "redis":
		return internalrepo.NewCacheHistoryStore(rc, cfg.Persistence.KeyPrefix), nil
	case "memory":
		return internalrepo.NewCacheHistoryStore(cache.NewMemoryCache(), cfg.Persistence.KeyPrefix), nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		s, err := internalrepo.NewSQLiteHistoryStore(ctx, cfg.Persistence.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite history store: %w", err)
		}
		return s, nil
	}
}

// ProvideEstimator creates the volatility estimator. History is restored by
// the app on start.
func ProvideEstimator(cfg *config.Config, store repository.HistoryStore, l *logger.Logger) *volatility.Estimator {
	return volatility.New(cfg.Engine.Volatility,
		volatility.WithStore(store),
		volatility.WithLogger(l.With(logger.String("component", "volatility"))),
	)
}

// ProvideVenueBase creates the rate-limited HTTP base for market data calls.
func ProvideVenueBase(cfg *config.Config, limiter *ratelimit.Limiter) *venue.HTTPServiceBase {
	return venue.NewHTTPServiceBase(cfg.Venue.BaseURL, cfg.Venue.APIKey, cfg.Venue.Timeout,
		limiter, cfg.Venue.RateCapacity, cfg.Venue.RatePerSec)
}

func ProvideMetadataProvider(base *venue.HTTPServiceBase) repository.MarketMetadataProvider {
	return venue.NewMetadataClient(base)
}

func ProvideOrderBookProvider(base *venue.HTTPServiceBase) repository.OrderBookProvider {
	return venue.NewBookClient(base)
}

// ProvideOrderExecutor returns the paper executor in dry-run mode and the
// venue order gateway otherwise.
func ProvideOrderExecutor(cfg *config.Config, limiter *ratelimit.Limiter, l *logger.Logger) repository.OrderExecutor {
	if cfg.Engine.DryRun {
		return paper.New(cfg.Engine.Orders.PaperFillDelay, l.With(logger.String("component", "paper")))
	}
	base := venue.NewHTTPServiceBase(cfg.Venue.GatewayURL, cfg.Venue.APIKey, cfg.Venue.Timeout,
		limiter, cfg.Venue.RateCapacity, cfg.Venue.RatePerSec)
	return venue.NewExecutor(base)
}

func ProvideTracker(cfg *config.Config, meta repository.MarketMetadataProvider, l *logger.Logger) *window.Tracker {
	return window.New(cfg.Engine.Window, meta, l.With(logger.String("component", "window")))
}

func ProvideSignalEngine(cfg *config.Config) *signal.Engine {
	return signal.New(cfg.Engine.Signal)
}

func ProvideSizer(cfg *config.Config) *sizing.Sizer {
	return sizing.New(cfg.Engine.Sizing, config.WindowLength(cfg.Engine.Window.Key).Minutes())
}

func ProvideRiskManager(cfg *config.Config, tracker *window.Tracker) *risk.Manager {
	return risk.New(cfg.Engine.Risk, cfg.Engine.Window.Key, cfg.Engine.Assets, tracker)
}

// ProvideClickHouseClient connects to ClickHouse when it backs the journal.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Journal.Backend != "clickhouse" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer when it backs the journal.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Journal.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideJournal routes decisions to the configured backend. The ClickHouse
// schema is created here so a misconfigured database fails startup.
func ProvideJournal(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
	m repository.Metrics,
	l *logger.Logger,
) (*usecase.Journal, error) {
	jl := l.With(logger.String("component", "journal"))
	sinks := make(map[string]repository.DecisionJournal)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	switch cfg.Journal.Backend {
	case "kafka":
		sinks["kafka"] = internalrepo.NewKafkaJournal(producer, cfg.Journal.Topic)
	case "clickhouse":
		chj := internalrepo.NewClickHouseJournal(chClient.DB(), cfg.ClickHouse.Database+"."+cfg.Journal.Table)
		stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}, chj.Schema()...)
		if err := chClient.InitSchema(ctx, stmts); err != nil {
			_ = chClient.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		sinks["clickhouse"] = chj
	case "redis":
		q := queue.NewRedisPublisher(jl, rc.Client(),
			queue.WithKeyPrefix(cfg.Redis.Prefix+":"+cfg.Journal.Topic),
			queue.WithMaxLen(cfg.Journal.RedisMaxLen),
		)
		if err := q.Start(ctx); err != nil {
			return nil, fmt.Errorf("redis journal: %w", err)
		}
		sinks["redis"] = internalrepo.NewRedisJournal(q)
	}
	return usecase.NewJournal(sinks, m, jl, cfg.Journal.Backend, cfg.Journal.RecentSize,
		usecase.WithPublishTimeout(cfg.Journal.Timeout),
		usecase.WithJournalBuffer(cfg.Journal.Buffer),
	), nil
}

// ProvideOrderManager creates the order lifecycle manager; every terminal
// outcome is journaled.
func ProvideOrderManager(
	cfg *config.Config,
	exec repository.OrderExecutor,
	journal *usecase.Journal,
	m repository.Metrics,
	l *logger.Logger,
) *orders.Manager {
	return orders.New(cfg.Engine.Orders, exec,
		orders.WithLogger(l.With(logger.String("component", "orders"))),
		orders.WithMetrics(m),
		orders.WithOutcomeHandler(journal.RecordOutcome),
	)
}

func ProvidePriceCache(cfg *config.Config) *pricefeed.Cache {
	return pricefeed.NewCache(cfg.Engine.PriceMaxAge)
}

// ProvidePipeline builds the validation and throttling stage in front of the
// price cache.
func ProvidePipeline(cfg *config.Config, prices *pricefeed.Cache, m repository.Metrics) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(usecase.NewPriceIngest(prices, m), m,
		mid.WithMaxRPS(cfg.Feed.MaxRPS),
		mid.WithBufferSize(cfg.Feed.BufferSize),
		mid.WithAssets(cfg.Engine.Assets),
	)
}

// ProvideFeed wires the websocket collector or the Kafka tick consumer,
// depending on feed.source.
func ProvideFeed(cfg *config.Config, pipe *mid.RealtimePipeline, m repository.Metrics, l *logger.Logger) (server.Feed, error) {
	feed := server.Feed{Pipeline: pipe}
	if cfg.Feed.Source != "kafka" {
		s := stream.New(cfg.Feed.WebSocketURL, cfg.Feed.Token, cfg.Engine.Assets, cfg.Feed.Symbols,
			cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, l.With(logger.String("component", "stream")))
		feed.Collector = usecase.NewPriceCollector(s, pipe, m, l.With(logger.String("component", "collector")), cfg.Feed.ReconnectDelay)
		return feed, nil
	}

	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(logger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return server.Feed{}, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())

	bySymbol := make(map[string]string, len(cfg.Feed.Symbols))
	for asset, symbol := range cfg.Feed.Symbols {
		bySymbol[symbol] = strings.ToUpper(asset)
	}
	feed.Consumer = consumer
	feed.Ticks = usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, bySymbol, pipe, m)
	return feed, nil
}

func ProvideDecisionEngine(
	cfg *config.Config,
	tracker *window.Tracker,
	vol domsvc.VolatilityEstimator,
	signals *signal.Engine,
	sizer *sizing.Sizer,
	riskMgr *risk.Manager,
	submitter domsvc.OrderSubmitter,
	feed repository.PriceFeed,
	book repository.OrderBookProvider,
	journal *usecase.Journal,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(cfg.Engine, tracker, vol, signals, sizer, riskMgr, submitter,
		feed, book, journal, m, l.With(logger.String("component", "engine")))
}

// ProvideScheduler samples volatility on the tick cadence; the estimator's
// spacing rule keeps one sample per interval.
func ProvideScheduler(
	cfg *config.Config,
	engine *usecase.DecisionEngine,
	vol domsvc.VolatilityEstimator,
	feed repository.PriceFeed,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Scheduler {
	return usecase.NewScheduler(engine, vol, feed, m, l.With(logger.String("component", "scheduler")),
		cfg.Engine.Assets, cfg.Engine.TickInterval, cfg.Engine.TickInterval)
}

func ProvideStatusUseCase(
	cfg *config.Config,
	tracker *window.Tracker,
	est *volatility.Estimator,
	prices *pricefeed.Cache,
	submitter domsvc.OrderSubmitter,
	journal *usecase.Journal,
) *usecase.StatusUseCase {
	return usecase.NewStatusUseCase(cfg.Engine.Assets, tracker, est, prices, submitter, journal)
}

// ProvideStatusHandler registers health checks for the feed and, when
// configured, ClickHouse.
func ProvideStatusHandler(
	cfg *config.Config,
	status *usecase.StatusUseCase,
	prices *pricefeed.Cache,
	feed server.Feed,
	chClient *pkgch.Client,
	l *logger.Logger,
) *api.StatusHandler {
	checks := map[string]api.HealthCheck{
		"prices": func() bool {
			for _, a := range cfg.Engine.Assets {
				if _, err := prices.CurrentPrice(context.Background(), a); err == nil {
					return true
				}
			}
			return false
		},
	}
	if feed.Collector != nil {
		checks["stream"] = feed.Collector.IsConnected
	}
	if chClient != nil {
		checks["clickhouse"] = func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return chClient.Health(ctx) == nil
		}
	}
	return api.NewStatusHandler(l.With(logger.String("component", "api")), status, checks)
}

func ProvideHTTPServer(cfg *config.Config, h *api.StatusHandler, l *logger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l.With(logger.String("component", "http")),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	feed server.Feed,
	est *volatility.Estimator,
	scheduler *usecase.Scheduler,
	orderMgr *orders.Manager,
	journal *usecase.Journal,
	history repository.HistoryStore,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, l, feed, est, scheduler, orderMgr, journal, history, chClient, rc, httpServer)
}
