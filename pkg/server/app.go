package server

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"DexSignal/internal/handler/api"
	mid "DexSignal/internal/middleware"
	"DexSignal/internal/usecase"
	"DexSignal/pkg/config"
	xhttp "DexSignal/pkg/http"
	pkgkafka "DexSignal/pkg/kafka"
	applogger "DexSignal/pkg/logger"
	"DexSignal/pkg/queue"
)

// RetrainJob is the model retrain job, enqueued at startup when no saved
// models exist and by the admin endpoint.
type RetrainJob interface {
	queue.Job
}

// Components are the long-running parts of the service. Archive and
// Consumer are nil when their backend is disabled.
type Components struct {
	Runner   *usecase.Runner
	Retrain  RetrainJob
	Engine   *usecase.ForecastEngine
	Monitor  *usecase.PriceTargetMonitor
	Hub      *api.Hub
	HTTP     *xhttp.Server
	Archive  *mid.ArchivePipeline
	Consumer *pkgkafka.Consumer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, log: l.With(applogger.String("component", "app")), c: c}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails, then shuts the rest down.
func (a *App) Run(ctx context.Context) error {
	a.restore(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if err := a.c.Runner.Start(gctx); err != nil {
		return err
	}
	if a.needsTraining() {
		if err := a.c.Runner.Trigger(gctx, usecase.LaneMarket, a.c.Retrain); err != nil {
			a.log.Warn("startup retrain not enqueued", applogger.Error(err))
		}
	}

	g.Go(func() error { return a.c.Hub.Run(gctx) })

	if a.c.Archive != nil {
		// stopped explicitly in shutdown so the final flush has a live context
		a.c.Archive.Start(context.WithoutCancel(gctx))
	}
	if a.c.Consumer != nil {
		g.Go(func() error { return a.c.Consumer.Run(gctx, a.cfg.Server.ShutdownTimeout) })
	}

	g.Go(a.c.HTTP.Serve)
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	a.log.Info("dexsignal started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("tokens", len(a.cfg.Market.Tokens)),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
		applogger.Bool("clickhouse", a.cfg.ClickHouse.Enabled),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// restore brings back open monitor targets and saved models. Both are best
// effort: a fresh start simply has nothing to restore.
func (a *App) restore(ctx context.Context) {
	n, err := a.c.Monitor.Restore(ctx)
	if err != nil {
		a.log.Warn("monitor restore failed", applogger.Error(err))
	} else {
		a.log.Info("monitor restored", applogger.Int("entries", n))
	}
	if err := a.c.Engine.LoadModels(); err != nil {
		a.log.Warn("model load failed", applogger.Error(err))
	}
}

func (a *App) needsTraining() bool {
	return a.cfg.Schedule.RetrainOnStart && !a.c.Engine.Ready() && a.c.Retrain != nil
}

func (a *App) shutdown() error {
	a.log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := a.c.HTTP.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.c.Runner.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	// the archive drains after the runner so the last cycle's rows are kept
	if a.c.Archive != nil {
		if err := a.c.Archive.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		a.log.Error("shutdown incomplete", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
