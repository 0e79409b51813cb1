// Package app builds and holds the long-lived archiver services: the
// metadata store, the asset store, the optional Pub/Sub publisher, and the
// run and serve entry points that use them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/api"
	"github.com/JakeFAU/comic-archiver/internal/archive"
	"github.com/JakeFAU/comic-archiver/internal/clock/system"
	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/config"
	"github.com/JakeFAU/comic-archiver/internal/extract"
	collyfetcher "github.com/JakeFAU/comic-archiver/internal/fetcher/colly"
	runid "github.com/JakeFAU/comic-archiver/internal/id/uuid"
	"github.com/JakeFAU/comic-archiver/internal/pipeline"
	"github.com/JakeFAU/comic-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/comic-archiver/internal/progress"
	progresssinks "github.com/JakeFAU/comic-archiver/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/comic-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/comic-archiver/internal/retry"
	"github.com/JakeFAU/comic-archiver/internal/runlock"
	gcsstorage "github.com/JakeFAU/comic-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/comic-archiver/internal/storage/local"
	pgstore "github.com/JakeFAU/comic-archiver/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/comic-archiver/internal/storage/sqlite"
)

// Store is the metadata backend: the pipeline write side plus the catalog.
type Store interface {
	comics.Store
	comics.Catalog
}

// Assets is an image backend that can also stream what it stored.
type Assets interface {
	comics.AssetStore
	api.ImageSource
}

// Options tune process-level wiring that does not belong in config files.
type Options struct {
	// Registerer receives the progress collectors. Defaults to the global one.
	Registerer prometheus.Registerer
}

// App holds the shared services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	opts   Options

	store     Store
	assets    Assets
	lockDir   string
	gcsClient *storage.Client
	publisher *gcppublisher.Publisher
	promSink  *progresssinks.PrometheusSink
}

// Build opens the configured backends. Close releases them.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	a := &App{cfg: cfg, logger: logger, opts: opts}

	if err := a.setupAssets(ctx); err != nil {
		_ = a.closeInfrastructure()
		return nil, err
	}
	if err := a.setupStore(ctx); err != nil {
		_ = a.closeInfrastructure()
		return nil, err
	}
	return a, nil
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Catalog exposes the read and curation side of the store.
func (a *App) Catalog() comics.Catalog {
	return a.store
}

// Assets exposes the image backend.
func (a *App) Assets() Assets {
	return a.assets
}

func (a *App) setupAssets(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		assets, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("gcs asset store init failed: %w", err)
		}
		a.assets = assets
		a.lockDir = filepath.Dir(a.cfg.SQLitePath())
	default:
		a.logger.Info("using local storage backend", zap.String("root", a.cfg.Storage.Root))
		assets, err := localstorage.New(localstorage.Config{Root: a.cfg.Storage.Root})
		if err != nil {
			return fmt.Errorf("local asset store init failed: %w", err)
		}
		a.assets = assets
		a.lockDir = a.cfg.Storage.Root
	}
	return nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case config.DriverPostgres:
		a.logger.Info("connecting to PostgreSQL")
		store, err := pgstore.New(ctx, pgstore.Config{DSN: a.cfg.DB.DSN}, a.logger.Named("store"))
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.store = store
		if a.cfg.Storage.Backend == config.StorageGCS {
			a.lockDir = "."
		}
	default:
		path := a.cfg.SQLitePath()
		a.logger.Info("opening sqlite store", zap.String("path", path))
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{Path: path}, a.logger.Named("store"))
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.store = store
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (comics.Publisher, error) {
	if !a.cfg.PubSub.Enabled() {
		return nil, nil
	}
	if a.publisher != nil {
		return a.publisher, nil
	}
	publisher, err := gcppublisher.New(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		TopicName: a.cfg.PubSub.TopicName,
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

// FetchOptions control the progress display of one Fetch call.
type FetchOptions struct {
	// Progress, when set, receives a progress bar.
	Progress io.Writer
}

// Fetch archives the configured date range. It holds the run lock for the
// whole run so two processes never write the same store.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) (pipeline.Summary, error) {
	lock, err := runlock.Acquire(a.lockDir)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("release run lock failed", zap.Error(err))
		}
	}()

	start, end, err := a.cfg.Range.Bounds()
	if err != nil {
		return pipeline.Summary{}, err
	}

	hub, err := a.setupProgress(ctx, opts)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	coordinator, err := pipeline.New(pipeline.Config{
		Start:           start,
		End:             end,
		Workers:         a.cfg.Pipeline.Concurrency,
		MaxItemAttempts: a.cfg.Pipeline.MaxItemAttempts,
		CommitEvery:     a.cfg.Pipeline.CommitEvery,
		QueueDepth:      a.cfg.Pipeline.QueueDepth,
		ItemBackoff:     a.cfg.Pipeline.ItemBackoff,
	}, pipeline.Deps{
		Store:     a.store,
		Assets:    a.assets,
		Resolver:  a.resolver(),
		Extractor: extract.New(),
		Emitter:   hub,
		Clock:     system.New(),
		IDs:       runid.New(),
		Logger:    a.logger.Named("pipeline"),
	})
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("build pipeline: %w", err)
	}
	return coordinator.Run(ctx)
}

func (a *App) resolver() *archive.Resolver {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond,
		Burst:             a.cfg.HTTP.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      a.cfg.HTTP.UserAgent,
		Accept:         a.cfg.HTTP.Accept,
		Referer:        a.cfg.HTTP.Referer,
		ConnectTimeout: a.cfg.HTTP.ConnectTimeout,
		ReadTimeout:    a.cfg.HTTP.ReadTimeout,
		WriteTimeout:   a.cfg.HTTP.WriteTimeout,
		PoolTimeout:    a.cfg.HTTP.PoolTimeout,
		MaxBodyBytes:   a.cfg.HTTP.MaxBodyBytes,
	}, limiter)
	policy := retry.New(retry.Config{
		MaxAttempts:       a.cfg.Retry.MaxAttempts,
		BaseDelay:         a.cfg.Retry.BaseDelay,
		JitterMin:         a.cfg.Retry.JitterMin,
		JitterMax:         a.cfg.Retry.JitterMax,
		RateLimitCooldown: a.cfg.Retry.RateLimitCooldown,
	}, retry.WithLogger(a.logger.Named("retry")))
	return archive.New(archive.Config{BaseURL: a.cfg.Archive.BaseURL}, fetcher, policy, a.logger.Named("archive"))
}

func (a *App) setupProgress(ctx context.Context, opts FetchOptions) (*progress.Hub, error) {
	sinkList := []progress.Sink{progresssinks.NewLogSink(a.logger.Named("progress"))}

	if a.promSink == nil {
		promSink, err := progresssinks.NewPrometheusSink(a.opts.Registerer)
		if err != nil {
			return nil, err
		}
		a.promSink = promSink
	}
	sinkList = append(sinkList, a.promSink)

	if opts.Progress != nil {
		sinkList = append(sinkList, progresssinks.NewTerminalSink(opts.Progress))
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if publisher != nil {
		pubSink, err := progresssinks.NewPublisherSink(publisher, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, err
		}
		sinkList = append(sinkList, pubSink)
	}

	return progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinkList...), nil
}

// Serve runs the read API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(a.store, a.assets, a.logger.Named("api")).Handler(),
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

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close commits and closes the store and releases cloud clients.
func (a *App) Close() error {
	err := a.closeInfrastructure()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeInfrastructure() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	return errors.Join(errs...)
}
