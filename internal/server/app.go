// Package server builds the edge service's dependencies from configuration and
// runs the HTTP server until shutdown.
package server

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

	"github.com/alsamah-store/storefront-edge/internal/api"
	"github.com/alsamah-store/storefront-edge/internal/archive"
	gcsarchive "github.com/alsamah-store/storefront-edge/internal/archive/gcs"
	localarchive "github.com/alsamah-store/storefront-edge/internal/archive/local"
	memoryarchive "github.com/alsamah-store/storefront-edge/internal/archive/memory"
	"github.com/alsamah-store/storefront-edge/internal/audit"
	auditsinks "github.com/alsamah-store/storefront-edge/internal/audit/sinks"
	"github.com/alsamah-store/storefront-edge/internal/botdetect"
	"github.com/alsamah-store/storefront-edge/internal/catalog"
	pgcatalog "github.com/alsamah-store/storefront-edge/internal/catalog/postgres"
	restcatalog "github.com/alsamah-store/storefront-edge/internal/catalog/rest"
	"github.com/alsamah-store/storefront-edge/internal/config"
	"github.com/alsamah-store/storefront-edge/internal/edge"
	"github.com/alsamah-store/storefront-edge/internal/metrics"
	"github.com/alsamah-store/storefront-edge/internal/origin"
	"github.com/alsamah-store/storefront-edge/internal/policy/ratelimit"
	"github.com/alsamah-store/storefront-edge/internal/prerender"
	"github.com/alsamah-store/storefront-edge/internal/prerender/headless"
	"github.com/alsamah-store/storefront-edge/internal/prerender/remote"
	"github.com/alsamah-store/storefront-edge/internal/preview"
)

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	handler  http.Handler
	boundary *edge.Boundary

	auditHub     *audit.Hub
	pubsubClient *pubsub.Client
	storage      *storage.Client
	headless     *headless.Renderer
	pgStore      *pgcatalog.Store

	registerer prometheus.Registerer
	checks     []api.ReadinessCheck
}

// Option adjusts Build for tests.
type Option func(*App)

// WithRegisterer registers audit collectors on reg instead of the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:        cfg,
		logger:     logger,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(app)
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	metrics.Init()
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("site", cfg.Site.BaseURL),
		zap.Bool("prerender", cfg.Prerender.Enabled),
		zap.String("engine", cfg.Prerender.Engine),
		zap.Bool("preview", cfg.Preview.Enabled),
		zap.String("store", cfg.Store.Driver),
	)

	site, err := setupOrigin(app)
	if err != nil {
		return nil, err
	}

	var handlers []edge.Handler
	if cfg.Preview.Enabled {
		store, err := setupCatalog(ctx, app)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, preview.New(preview.Config{
			SiteBaseURL: cfg.Site.BaseURL,
			SiteName:    cfg.Site.Name,
			Timeout:     cfg.PreviewTimeout(),
			Store:       store,
			Logger:      logger.Named("preview"),
		}))
	}
	if cfg.Prerender.Enabled {
		gateway, err := setupGateway(app)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, gateway)
	}

	if err := setupAudit(ctx, app); err != nil {
		return nil, err
	}

	var emitter audit.Emitter = audit.NopEmitter{}
	if app.auditHub != nil {
		emitter = app.auditHub
	}
	app.boundary = edge.NewBoundary(edge.Options{
		ReservedPrefixes: cfg.Edge.ReservedPrefixes,
		Diagnostics:      cfg.Edge.Diagnostics,
		CaptureBodies:    cfg.ArchiveEnabled(),
		Matcher:          botdetect.General(),
		Emitter:          emitter,
		Logger:           logger.Named("edge"),
	}, handlers...)
	app.logger.Info("edge boundary ready", zap.Strings("handlers", app.boundary.Handlers()))

	app.handler = api.NewServer(app.boundary.Middleware(site), logger.Named("api"), app.checks...).Handler()
	return app, nil
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			a.logger.Error("http server error", zap.Error(serveErr))
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		a.logger.Warn("close failed", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("serve http: %w", serveErr)
	}
	return nil
}

// Close releases background workers and clients. The audit hub is drained
// first so its sinks can still reach Pub/Sub and storage.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.auditHub != nil {
		if err := a.auditHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit hub: %w", err))
		}
		a.auditHub = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client: %w", err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client: %w", err))
		}
		a.storage = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func setupOrigin(app *App) (http.Handler, error) {
	if app.cfg.Origin.URL != "" {
		proxy, err := origin.NewProxy(app.cfg.Origin.URL, app.logger.Named("origin"))
		if err != nil {
			return nil, fmt.Errorf("origin proxy init failed: %w", err)
		}
		app.logger.Info("proxying storefront origin", zap.String("target", app.cfg.Origin.URL))
		return proxy, nil
	}
	spa, err := origin.NewSPA(app.cfg.Origin.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("static origin init failed: %w", err)
	}
	app.logger.Info("serving storefront from disk", zap.String("dir", app.cfg.Origin.StaticDir))
	return spa, nil
}

func setupCatalog(ctx context.Context, app *App) (catalog.Store, error) {
	cfg := app.cfg.Store
	switch cfg.Driver {
	case "postgres":
		if cfg.DSN == "" {
			app.logger.Warn("no store DSN configured, previews will pass through")
			return catalog.Unconfigured{}, nil
		}
		store, err := pgcatalog.New(ctx, pgcatalog.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres catalog init failed: %w", err)
		}
		app.pgStore = store
		app.checks = append(app.checks, api.ReadinessCheck{Name: "catalog", Check: store.Ping})
		app.logger.Info("postgres catalog initialized", zap.String("table", cfg.Table))
		return store, nil
	default:
		store, err := restcatalog.New(restcatalog.Config{
			BaseURL: cfg.URL,
			AnonKey: cfg.AnonKey,
			Table:   cfg.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("rest catalog init failed: %w", err)
		}
		if !store.Configured() {
			app.logger.Warn("store URL or anon key missing, previews will pass through")
		}
		return store, nil
	}
}

func setupGateway(app *App) (*prerender.Gateway, error) {
	cfg := app.cfg.Prerender
	var renderer prerender.Renderer
	switch cfg.Engine {
	case "headless":
		r, err := headless.New(headless.Config{
			MaxParallel:       app.cfg.Headless.MaxParallel,
			UserAgent:         app.cfg.Headless.UserAgent,
			NavigationTimeout: app.cfg.HeadlessNavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless renderer init failed: %w", err)
		}
		app.headless = r
		renderer = r
		app.logger.Info("using headless renderer", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
	default:
		renderer = remote.New(remote.Config{
			ServiceURL:   cfg.ServiceURL,
			Token:        cfg.Token,
			Timeout:      app.cfg.PrerenderTimeout(),
			MaxBodyBytes: cfg.MaxBodyBytes,
		})
		if cfg.Token == "" {
			app.logger.Warn("prerender token missing, crawler requests will pass through")
		}
		app.logger.Info("using remote renderer", zap.String("service", cfg.ServiceURL))
	}

	var budget prerender.Budget
	if cfg.RatePerSecond > 0 {
		budget = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RatePerSecond,
			DefaultBurst: cfg.Burst,
		})
	}

	gateway, err := prerender.New(prerender.Config{
		SiteBaseURL:      app.cfg.Site.BaseURL,
		Timeout:          app.cfg.PrerenderTimeout(),
		CacheControl:     cfg.CacheControl,
		ReservedPrefixes: app.cfg.Edge.ReservedPrefixes,
		Renderer:         renderer,
		Budget:           budget,
		Logger:           app.logger.Named("prerender"),
	})
	if err != nil {
		return nil, fmt.Errorf("prerender gateway init failed: %w", err)
	}
	return gateway, nil
}

func setupAudit(ctx context.Context, app *App) error {
	cfg := app.cfg.Audit
	if !cfg.Enabled {
		app.logger.Info("edge audit disabled")
		return nil
	}
	var sinkList []audit.Sink
	if cfg.LogEvents {
		sinkList = append(sinkList, auditsinks.NewLogSink(app.logger.Named("audit_log")))
	}
	promSink, err := auditsinks.NewPrometheusSink(app.registerer)
	if err != nil {
		return fmt.Errorf("prometheus audit sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		app.pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		pubSink, err := auditsinks.NewPubSubSink(app.pubsubClient.Topic(cfg.PubSub.Topic))
		if err != nil {
			return fmt.Errorf("pubsub audit sink init failed: %w", err)
		}
		sinkList = append(sinkList, pubSink)
		app.logger.Info("publishing edge events",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.Topic),
		)
	}

	store, err := setupArchive(ctx, app)
	if err != nil {
		return err
	}
	if store != nil {
		archiveSink, err := auditsinks.NewArchiveSink(store, app.logger.Named("audit_archive"))
		if err != nil {
			return fmt.Errorf("archive audit sink init failed: %w", err)
		}
		sinkList = append(sinkList, archiveSink)
	}

	hubCfg := audit.HubConfig{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.MaxBatchEvents,
		MaxBatchWait:   app.cfg.AuditBatchWait(),
		Logger:         app.logger.Named("audit_hub"),
	}
	app.auditHub = audit.NewHub(hubCfg, sinkList...)
	app.logger.Info("audit hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func setupArchive(ctx context.Context, app *App) (archive.BlobStore, error) {
	cfg := app.cfg.Audit.Archive
	switch cfg.Driver {
	case "gcs":
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsarchive.New(app.storage, gcsarchive.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.logger.Info("archiving crawler documents to GCS", zap.String("bucket", cfg.Bucket))
		return store, nil
	case "local":
		store, err := localarchive.New(localarchive.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("archiving crawler documents to disk", zap.String("path", cfg.BaseDir))
		return store, nil
	case "memory":
		app.logger.Info("archiving crawler documents in memory")
		return memoryarchive.NewBlobStore(), nil
	default:
		return nil, nil
	}
}
