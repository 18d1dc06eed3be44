// Package server builds the tracker's dependency graph and runs the HTTP
// service with its refresh workers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/api"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/clock/system"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/config"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/dispatcher"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/hash/sha256"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/id/uuid"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/metrics"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/hnx-restricted-tracker/internal/queue/memory"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/stock"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/watchlist"
	"github.com/JakeFAU/hnx-restricted-tracker/internal/worker"
)

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	scheduler *refresh.Scheduler
	queue     *queueMemory.Queue
	scraper   *scraper.Scraper
	refresher *refresh.Refresher
	stocks    *stock.Service
	jobs      *refresh.Jobs

	closers []closer
}

// Build creates the application's dependencies. On error everything opened
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeAll(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("publisher", cfg.Publisher.Backend),
	)
	clock := system.New()
	ids := uuid.New()

	st, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	stockOpts, err := app.setupSearch(ctx, st.stocks)
	if err != nil {
		return nil, err
	}
	app.stocks, err = stock.NewService(st.stocks, clock, logger.Named("stocks"), stockOpts...)
	if err != nil {
		return nil, fmt.Errorf("stock service init failed: %w", err)
	}
	watch, err := watchlist.NewService(st.watchlist, ids, clock, logger.Named("watchlist"))
	if err != nil {
		return nil, fmt.Errorf("watchlist service init failed: %w", err)
	}

	app.scraper, err = NewScraper(cfg, clock, logger.Named("scraper"))
	if err != nil {
		return nil, err
	}
	app.onClose("scraper session", func(context.Context) error {
		app.scraper.CloseSession()
		return nil
	})

	refreshOpts, err := app.refreshOptions(ctx, st)
	if err != nil {
		return nil, err
	}
	app.refresher, err = refresh.New(app.scraper, app.stocks, clock, logger.Named("refresh"), refreshOpts...)
	if err != nil {
		return nil, fmt.Errorf("refresher init failed: %w", err)
	}

	app.queue = queueMemory.NewQueue(cfg.Refresh.QueueDepth)
	app.jobs, err = refresh.NewJobs(st.runs, app.queue, ids, clock, logger.Named("jobs"))
	if err != nil {
		return nil, fmt.Errorf("refresh jobs init failed: %w", err)
	}
	app.dispatch = app.setupDispatcher(st.runs, clock)
	app.scheduler = refresh.NewScheduler(app.jobs, cfg.Refresh.Interval, cfg.Refresh.RunOnStart, logger.Named("scheduler"))

	deps := api.Deps{
		Stocks:    app.stocks,
		Refresher: app.refresher,
		Jobs:      app.jobs,
		Details:   app.scraper,
		Watchlist: watch,
		Ready:     st.ready,
	}
	if cfg.Financial.Enabled {
		fin, err := NewFinancial(cfg, clock, logger.Named("financial"))
		if err != nil {
			return nil, err
		}
		deps.Financial = fin
	}
	app.apiServer = api.NewServer(deps, cfg.Server.RequestTimeout, logger.Named("api"))
	return app, nil
}

func (a *App) refreshOptions(ctx context.Context, st stores) ([]refresh.Option, error) {
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.Refresh.RateRPS, Burst: a.cfg.Refresh.RateBurst})
	opts := []refresh.Option{
		refresh.WithArchive(blobs, sha256.New(), a.cfg.Archive.Prefix),
		refresh.WithPublisher(publisher, a.cfg.Publisher.Topic),
		refresh.WithLimiter(limiter, a.scraper.TargetURL()),
	}
	if st.snapshots != nil {
		opts = append(opts, refresh.WithSnapshotLog(st.snapshots))
	}
	return opts, nil
}

func (a *App) setupDispatcher(runs refresh.RunStore, clock refresh.Clock) *dispatcher.Dispatcher {
	workerCfg := worker.Config{
		MaxAttempts: a.cfg.Refresh.MaxAttempts,
		RetryDelay:  a.cfg.Refresh.RetryDelay,
		RunTimeout:  a.cfg.Refresh.RunTimeout,
	}
	d := dispatcher.New(a.queue, runs, a.refresher, clock, dispatcher.Config{
		Workers: a.cfg.Refresh.Workers,
		Worker:  workerCfg,
	}, a.logger.Named("dispatcher"))
	a.logger.Info("worker config",
		zap.Int("workers", d.Size()),
		zap.Int("max_attempts", workerCfg.MaxAttempts),
		zap.Duration("run_timeout", workerCfg.RunTimeout),
	)
	return d
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scraper returns the extraction pipeline.
func (a *App) Scraper() *scraper.Scraper {
	return a.scraper
}

// Refresh runs one synchronous scrape and persist.
func (a *App) Refresh(ctx context.Context) (refresh.Summary, error) {
	return a.refresher.Refresh(ctx)
}

// Stocks returns the stock service.
func (a *App) Stocks() *stock.Service {
	return a.stocks
}

// Jobs returns the refresh run tracker.
func (a *App) Jobs() *refresh.Jobs {
	return a.jobs
}

// Run starts the workers, the scheduler and the HTTP server, and blocks until
// ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()
	go a.scheduler.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownTimeout := a.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every resource Build opened, newest first.
func (a *App) Close(ctx context.Context) error {
	err := a.closeAll(ctx)
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
