// Package server assembles the catalog service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/api"
	"github.com/JakeFAU/catalog-scraper/internal/archive/gcs"
	"github.com/JakeFAU/catalog-scraper/internal/archive/local"
	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/clock/system"
	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-scraper/internal/id/uuid"
	"github.com/JakeFAU/catalog-scraper/internal/notify"
	notifypubsub "github.com/JakeFAU/catalog-scraper/internal/notify/pubsub"
	"github.com/JakeFAU/catalog-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-scraper/internal/reconciler"
	"github.com/JakeFAU/catalog-scraper/internal/scheduler"
	"github.com/JakeFAU/catalog-scraper/internal/scraper"
	memorystore "github.com/JakeFAU/catalog-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/catalog-scraper/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     catalog.Store
	pgStore   *pgstore.ProductStore
	hub       *notify.Hub
	forwarder *notifypubsub.Forwarder
	gcsClient *storage.Client
	scheduler *scheduler.Scheduler
	apiServer *api.Server

	// runCtx outlives HTTP requests; cancelRuns aborts on-demand runs that
	// are still active at shutdown.
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// drainGrace bounds the wait for a cancelled run to unwind.
const drainGrace = 5 * time.Second

// Build creates the application's dependencies. Resources opened before a
// failure are released before returning.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	app.runCtx, app.cancelRuns = context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			app.closeInfrastructure()
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("catalog_url", cfg.Scraper.CatalogURL),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	if err = app.setupStore(ctx); err != nil {
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupNotify(ctx); err != nil {
		return nil, err
	}
	if err = app.setupScheduler(archive); err != nil {
		return nil, err
	}

	opts := api.Options{
		RequestTimeout: cfg.RequestTimeout(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestIDs:     uuid.New(),
	}
	if app.pgStore != nil {
		opts.Ready = app.pgStore.Ping
	}
	app.apiServer = api.NewServer(app.store, app.hub, api.RunnerFunc(app.RunScrapeOnce), logger, opts)
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory product store")
		a.store = memorystore.NewProductStore()
		return nil
	}
	store, err := pgstore.NewProductStore(ctx, pgstore.ProductStoreConfig{
		DSN:      a.cfg.Database.DSN,
		Table:    a.cfg.Database.Table,
		MaxConns: a.cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("product store init failed: %w", err)
	}
	a.pgStore = store
	a.store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("product schema init failed: %w", err)
	}
	a.logger.Info("postgres product store initialized", zap.String("table", a.cfg.Database.Table))
	return nil
}

func (a *App) setupArchive(ctx context.Context) (catalog.PageArchive, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		archive, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("archiving pages to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return archive, nil
	case config.ArchiveLocal:
		archive, err := local.New(local.Config{Dir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving pages locally", zap.String("dir", a.cfg.Archive.LocalDir))
		return archive, nil
	default:
		a.logger.Debug("page archiving disabled")
		return nil, nil
	}
}

func (a *App) setupNotify(ctx context.Context) error {
	a.hub = notify.NewHub(notify.Config{Logger: a.logger})
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Debug("no Pub/Sub topic configured, events stay on the WebSocket channel")
		return nil
	}
	fwd, err := notifypubsub.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName, a.logger)
	if err != nil {
		return fmt.Errorf("pubsub forwarder init failed: %w", err)
	}
	a.forwarder = fwd
	a.hub.Subscribe(fwd)
	a.logger.Info("Pub/Sub forwarder initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupScheduler(archive catalog.PageArchive) error {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.HTTP.UserAgent,
		Timeout:     a.cfg.FetchTimeout(),
		MaxBodySize: a.cfg.HTTP.MaxBodyBytes,
	})
	opts := []scraper.Option{
		scraper.WithLogger(a.logger),
		scraper.WithLimiter(ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Scraper.RequestsPerSecond,
			Burst: a.cfg.Scraper.Burst,
		})),
	}
	if archive != nil {
		opts = append(opts, scraper.WithArchive(archive))
	}
	sc, err := scraper.New(scraper.Config{
		CatalogURL:    a.cfg.Scraper.CatalogURL,
		PageSize:      a.cfg.Scraper.PageSize,
		PageParam:     a.cfg.Scraper.PageParam,
		SizeParam:     a.cfg.Scraper.SizeParam,
		ArchivePrefix: a.cfg.Archive.Prefix,
	}, fetcher, extract.New(a.cfg.Scraper.Selectors), opts...)
	if err != nil {
		return fmt.Errorf("scraper init failed: %w", err)
	}
	a.scheduler = scheduler.New(
		sc,
		reconciler.New(a.store, a.logger),
		a.hub,
		uuid.New(),
		system.New(),
		a.logger,
	)
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Hub exposes the event hub so callers can attach extra subscribers.
func (a *App) Hub() *notify.Hub {
	return a.hub
}

// Store exposes the product store.
func (a *App) Store() catalog.Store {
	return a.store
}

// RunScrapeOnce performs a single scrape run outside the periodic loop. The
// run stops when ctx is done or the App shuts down, whichever comes first.
func (a *App) RunScrapeOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.runCtx, cancel)
	defer stop()
	return a.scheduler.RunOnce(ctx)
}

// drainRuns waits for an active run to finish before resources close. A run
// still going when ctx expires is cancelled; its batch rolls back.
func (a *App) drainRuns(ctx context.Context) {
	if err := a.scheduler.Wait(ctx); err == nil {
		return
	}
	a.logger.Warn("cancelling active scrape run for shutdown")
	a.cancelRuns()
	graceCtx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()
	if err := a.scheduler.Wait(graceCtx); err != nil {
		a.logger.Error("scrape run did not stop before shutdown", zap.Error(err))
	}
}

// Run starts the scheduler and the HTTP server and blocks until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.Scraper.RunOnStart {
		go func() {
			if _, err := a.scheduler.RunOnce(ctx); err != nil {
				a.logger.Warn("startup scrape failed", zap.Error(err))
			}
		}()
	}

	go func() {
		a.logger.Info("scheduler started", zap.Duration("interval", a.cfg.Scraper.Interval))
		if err := a.scheduler.Start(ctx, a.cfg.Scraper.Interval); err != nil {
			a.logger.Error("scheduler stopped", zap.Error(err))
			stop()
		}
	}()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.drainRuns(shutdownCtx)
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every resource the App opened.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.cancelRuns != nil {
		a.cancelRuns()
	}
	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			a.logger.Warn("pubsub forwarder close failed", zap.Error(err))
		}
		a.forwarder = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}
