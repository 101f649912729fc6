package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "WindowEdge/internal/domain/repository"
	mid "WindowEdge/internal/middleware"
	"WindowEdge/internal/services/orders"
	"WindowEdge/internal/services/volatility"
	"WindowEdge/internal/usecase"
	"WindowEdge/pkg/cache"
	pkgch "WindowEdge/pkg/clickhouse"
	"WindowEdge/pkg/config"
	xhttp "WindowEdge/pkg/http"
	pkgkafka "WindowEdge/pkg/kafka"
	applogger "WindowEdge/pkg/logger"
)

// Feed is the price ingestion side of the app. Exactly one of Collector
// (websocket) or Consumer (kafka) is set.
type Feed struct {
	Pipeline  *mid.RealtimePipeline
	Collector *usecase.PriceCollector
	Consumer  *pkgkafka.Consumer
	Ticks     pkgkafka.MessageHandler
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	feed       Feed
	estimator  *volatility.Estimator
	scheduler  *usecase.Scheduler
	orders     *orders.Manager
	journal    *usecase.Journal
	history    drepo.HistoryStore
	chClient   *pkgch.Client
	redis      *cache.RedisCache
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	feed Feed,
	estimator *volatility.Estimator,
	scheduler *usecase.Scheduler,
	orderMgr *orders.Manager,
	journal *usecase.Journal,
	history drepo.HistoryStore,
	chClient *pkgch.Client,
	redis *cache.RedisCache,
	httpServer *xhttp.Server,
) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		feed:       feed,
		estimator:  estimator,
		scheduler:  scheduler,
		orders:     orderMgr,
		journal:    journal,
		history:    history,
		chClient:   chClient,
		redis:      redis,
		httpServer: httpServer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is cancelled or the
// HTTP server fails, then shuts down in dependency order.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.estimator.Load(runCtx); err != nil {
		// an empty history only means floors until samples accumulate
		a.log.Warn("volatility history not restored", applogger.Error(err))
	}

	if n, err := a.journal.Warm(runCtx); err != nil {
		a.log.Warn("decision journal not restored", applogger.Error(err))
	} else if n > 0 {
		a.log.Info("decision journal restored", applogger.Int("decisions", n))
	}

	if err := a.startFeed(runCtx); err != nil {
		return err
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	schedDone := make(chan error, 1)
	go func() { schedDone <- a.scheduler.Run(runCtx) }()
	a.log.Info("engine started",
		applogger.Strings("assets", a.cfg.Engine.Assets),
		applogger.String("window", a.cfg.Engine.Window.Key),
		applogger.Duration("tick_interval", a.cfg.Engine.TickInterval),
		applogger.Bool("dry_run", a.cfg.Engine.DryRun),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.httpErrors():
		runErr = fmt.Errorf("http server: %w", err)
	}

	cancel()
	return errors.Join(runErr, a.shutdown(schedDone))
}

func (a *App) httpErrors() <-chan error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Errors()
}

func (a *App) startFeed(ctx context.Context) error {
	switch {
	case a.feed.Collector != nil:
		if err := a.feed.Collector.Start(ctx); err != nil {
			return fmt.Errorf("start price stream: %w", err)
		}
		a.log.Info("price stream started", applogger.String("url", a.cfg.Feed.WebSocketURL))
	case a.feed.Consumer != nil && a.feed.Ticks != nil:
		a.feed.Pipeline.Start(ctx)
		a.feed.Consumer.RegisterHandler(a.feed.Ticks)
		if err := a.feed.Consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.feed.Ticks.Topic()))
	default:
		return errors.New("no price feed configured")
	}
	return nil
}

// shutdown stops ticking first so no order is submitted after its monitor
// is gone, then drains orders before closing the journal they report to.
func (a *App) shutdown(schedDone <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	start := time.Now()
	a.log.Info("shutting down...")

	var errs []error
	select {
	case err := <-schedDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("scheduler: in-flight ticks did not finish: %w", ctx.Err()))
	}

	if err := a.orders.Close(); err != nil {
		errs = append(errs, fmt.Errorf("orders: %w", err))
	}

	if a.feed.Collector != nil {
		if err := a.feed.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.feed.Consumer != nil {
		if err := a.feed.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
		a.feed.Pipeline.Stop()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.journal.Close(ctx)

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("history store close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete", applogger.Duration("took", time.Since(start)))
	return errors.Join(errs...)
}
