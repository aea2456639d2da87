// Package app builds the long-lived crawlctl services from configuration and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/api"
	"github.com/JakeFAU/crawl-console/internal/client"
	"github.com/JakeFAU/crawl-console/internal/clock/system"
	"github.com/JakeFAU/crawl-console/internal/config"
	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/export"
	"github.com/JakeFAU/crawl-console/internal/graph"
	"github.com/JakeFAU/crawl-console/internal/id/uuid"
	"github.com/JakeFAU/crawl-console/internal/logging"
	"github.com/JakeFAU/crawl-console/internal/metrics"
	"github.com/JakeFAU/crawl-console/internal/policy/ratelimit"
	"github.com/JakeFAU/crawl-console/internal/progress"
	progresssinks "github.com/JakeFAU/crawl-console/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/crawl-console/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/crawl-console/internal/publisher/pubsub"
	"github.com/JakeFAU/crawl-console/internal/session"
	"github.com/JakeFAU/crawl-console/internal/settings"
	gcsstorage "github.com/JakeFAU/crawl-console/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crawl-console/internal/storage/local"
	memorystorage "github.com/JakeFAU/crawl-console/internal/storage/memory"
	pgstore "github.com/JakeFAU/crawl-console/internal/storage/postgres"
	"github.com/JakeFAU/crawl-console/internal/store"
)

const readyTimeout = 2 * time.Second

// App holds the wired services.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	logCleanup func() error

	engine     *client.Client
	controller *session.Controller
	graph      *graph.Builder
	archiver   *export.Archiver
	apiServer  *api.Server
	registry   *prometheus.Registry

	progressHub     *progress.Hub
	history         store.SessionRepository
	pgStore         *pgstore.SessionStore
	settingsDB      *settings.SQLiteStore
	gcsClient       *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// WithEngineHTTPClient overrides the HTTP client used to reach the engine.
func WithEngineHTTPClient(c *http.Client) Option {
	return func(o *buildOptions) {
		o.httpClient = c
	}
}

// WithLogger skips logger construction and uses logger instead.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// Build creates the application's dependencies. On error everything built
// so far is closed.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (app *App, err error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	app = &App{cfg: cfg}
	if err := app.setupLogger(bo.logger); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("engine", cfg.Engine.BaseURL),
		zap.Int("server_port", cfg.Server.Port),
	)

	engineOpts := []client.Option{
		client.WithBaseURL(cfg.Engine.BaseURL),
		client.WithTimeout(cfg.EngineTimeout()),
		client.WithLogger(app.logger.Named("engine")),
	}
	if bo.httpClient != nil {
		engineOpts = append(engineOpts, client.WithHTTPClient(bo.httpClient))
	}
	app.engine = client.New(engineOpts...)

	settingsStore, err := app.setupSettings()
	if err != nil {
		return nil, err
	}
	blobStore, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupHistory(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	app.registry = metrics.NewRegistry()
	if err = app.setupProgress(ctx, publisher); err != nil {
		return nil, err
	}

	app.controller = session.New(app.engine,
		session.WithLogger(app.logger),
		session.WithClock(system.New()),
		session.WithIDGenerator(uuid.NewUUIDGenerator()),
		session.WithEmitter(app.progressHub),
		session.WithSettingsStore(settingsStore),
		session.WithConfirmDelay(cfg.ConfirmDelay()),
		session.WithResetTimeout(time.Duration(cfg.Poll.ResetTimeoutSeconds)*time.Second),
		session.WithFetchTimeout(time.Duration(cfg.Poll.FetchTimeoutSeconds)*time.Second),
	)
	if _, err := app.controller.LoadSettings(ctx); err != nil {
		app.logger.Warn("settings load failed, using defaults", zap.Error(err))
	}

	app.graph, err = graph.NewBuilder(graph.DefaultDomainCacheSize)
	if err != nil {
		return nil, err
	}
	app.archiver = export.NewArchiver(blobStore, cfg.Storage.Prefix, app.logger)

	httpMetrics, err := metrics.NewHTTP(app.registry)
	if err != nil {
		return nil, fmt.Errorf("http metrics init failed: %w", err)
	}
	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer = api.NewServer(api.Deps{
		Controller:    app.controller,
		Graph:         app.graph,
		Archiver:      app.archiver,
		History:       app.history,
		CrawlDefaults: cfg.Crawl,
		Clock:         system.New(),
		Gatherer:      app.registry,
		HTTPMetrics:   httpMetrics,
		Ready:         app.ready,
		Logger:        app.logger,
	}, api.Options{
		APIKey:         apiKey,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		CommandLimiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.Server.CommandRPS,
			Burst: cfg.Server.CommandBurst,
		}),
	})

	return app, nil
}

func (a *App) setupLogger(injected *zap.Logger) error {
	if injected != nil {
		a.logger = injected
		return nil
	}
	logger, cleanup, err := logging.New(logging.Config{
		Development: a.cfg.Logging.Development,
		Level:       a.cfg.Logging.Level,
		File:        a.cfg.Logging.File,
		MaxSizeMB:   a.cfg.Logging.MaxSizeMB,
		MaxBackups:  a.cfg.Logging.MaxBackups,
		MaxAgeDays:  a.cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a.logger = logger
	a.logCleanup = cleanup
	return nil
}

func (a *App) setupSettings() (settings.Store, error) {
	if a.cfg.Settings.Driver == "memory" {
		a.logger.Info("using in-memory settings store")
		return settings.NewMemoryStore(), nil
	}
	path := a.cfg.Settings.Path
	if path == "" {
		path = settings.DefaultPath()
	}
	db, err := settings.OpenSQLite(path, a.logger.Named("settings"))
	if err != nil {
		return nil, fmt.Errorf("settings store init failed: %w", err)
	}
	a.settingsDB = db
	a.logger.Info("using sqlite settings store", zap.String("path", path))
	return db, nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		var err error
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket:       a.cfg.Storage.GCSBucket,
			CacheControl: a.cfg.Storage.CacheControl,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupHistory(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN configured, keeping session history in memory")
		a.history = memorystorage.NewSessionStore()
		return nil
	}
	pg, err := pgstore.NewSessionStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("session store init failed: %w", err)
	}
	a.pgStore = pg
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("session store schema failed: %w", err)
	}
	a.history = pg
	a.logger.Info("postgres session history initialized")
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(memorypublisher.WithCapacity(a.cfg.PubSub.MemoryCapacity)), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient, a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.pubsubPublisher, nil
}

func (a *App) setupProgress(ctx context.Context, publisher crawler.Publisher) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		progresssinks.NewStoreSink(a.history, a.logger.Named("progress_store")),
		progresssinks.NewNotifySink(publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_notify")),
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchMaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.BatchMaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutSeconds) * time.Second,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger,
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

// ready reports whether the engine answers its status endpoint.
func (a *App) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if _, err := a.engine.Status(ctx); err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	return nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Engine returns the engine client.
func (a *App) Engine() *client.Client { return a.engine }

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// History returns the session history repository.
func (a *App) History() store.SessionRepository { return a.history }

// Archiver returns the export archiver.
func (a *App) Archiver() *export.Archiver { return a.archiver }

// Handler returns the dashboard HTTP handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves the dashboard until ctx is canceled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

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
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return <-serveErr
}

// Close stops polling, drains progress events and releases clients. It is
// safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	if a.controller != nil {
		a.controller.Close()
	}
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progress hub close: %w", err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.settingsDB != nil {
		if err := a.settingsDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("settings store close: %w", err))
		}
	}
	for _, err := range errs {
		a.logger.Warn("shutdown step failed", zap.Error(err))
	}
	if a.logger != nil {
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	}
	if a.logCleanup != nil {
		if err := a.logCleanup(); err != nil {
			errs = append(errs, fmt.Errorf("log file close: %w", err))
		}
	}
	return errors.Join(errs...)
}
