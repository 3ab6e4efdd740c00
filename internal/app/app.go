package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/classr/internal/config"
	"github.com/yungbote/classr/internal/data/db"
	"github.com/yungbote/classr/internal/data/repos"
	types "github.com/yungbote/classr/internal/domain"
	apphttp "github.com/yungbote/classr/internal/http"
	"github.com/yungbote/classr/internal/jobs/autoclean"
	"github.com/yungbote/classr/internal/jobs/autosync"
	"github.com/yungbote/classr/internal/jobs/dispatch"
	"github.com/yungbote/classr/internal/jobs/export"
	"github.com/yungbote/classr/internal/observability"
	"github.com/yungbote/classr/internal/platform/logger"
)

// App owns every long-lived component of one server process.
type App struct {
	Log        *logger.Logger
	Cfg        *config.Config
	Store      *db.SQLiteService
	Repos      *repos.Repos
	Services   Services
	Dispatcher *dispatch.Dispatcher
	Server     *apphttp.Server
	Metrics    *observability.Metrics

	agents       []*autosync.Agent
	sweeper      *autoclean.Sweeper
	sink         export.Sink
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config) (a *App, err error) {
	log, err := logger.New(cfg.Env, filepath.Join(cfg.Data.LogPath, "classr.log"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a = &App{Log: log, Cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Env, cfg.Otel)
	if cfg.Server.Metrics {
		a.Metrics = observability.NewMetrics()
	}

	log.Info("Opening entity store...", "path", cfg.Data.DBPath)
	a.Store, err = db.NewSQLiteService(log, db.Options{Path: cfg.Data.DBPath})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.Repos = wireRepos(a.Store, log)

	a.Dispatcher = dispatch.New(cfg.Server.ParallelJobs, log)
	a.Dispatcher.OnFinish(func(_ string, status types.JobStatus) { a.Metrics.JobFinished(status) })

	var exporter *export.Exporter
	a.sink, exporter, err = wireExport(ctx, log, cfg.Export)
	if err != nil {
		return nil, err
	}

	a.Services, err = wireServices(ctx, log, cfg, a.Repos, a.Dispatcher, exporter)
	if err != nil {
		return nil, err
	}

	a.agents, err = wireAgents(log, cfg, a.Services, a.Metrics)
	if err != nil {
		return nil, err
	}
	a.sweeper = wireSweeper(log, cfg, a.Services, a.Metrics)
	a.Server = wireServer(log, cfg, a.Store, a.Services, a.Metrics)
	return a, nil
}

// Run serves HTTP and runs the background loops until ctx ends or the
// server fails, then drains the dispatcher within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.Server.Run)
	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("shutting down http server")
		sctx, cancel := context.WithTimeout(context.Background(), a.Cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return a.Server.Shutdown(sctx)
	})
	for _, agent := range a.agents {
		agent := agent
		g.Go(func() error { return agent.Run(gctx) })
	}
	if a.sweeper != nil {
		g.Go(func() error { return a.sweeper.Run(gctx) })
	}
	a.Metrics.StartCollector(gctx, a.Log, a.Store.DB(), a.Dispatcher, 15*time.Second)

	err := g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), a.Cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if stopErr := a.Dispatcher.Stop(sctx); stopErr != nil {
		a.Log.Warn("dispatcher did not drain before shutdown timeout", "error", stopErr)
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	var errs error
	if a.sink != nil {
		errs = multierr.Append(errs, a.sink.Close())
	}
	if a.Store != nil {
		errs = multierr.Append(errs, a.Store.Close())
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = multierr.Append(errs, a.otelShutdown(ctx))
		cancel()
	}
	if a.Log != nil {
		if errs != nil {
			a.Log.Warn("close finished with errors", "error", errs)
		}
		a.Log.Sync()
	}
}
