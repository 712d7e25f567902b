// Package app builds the harvester's long-lived services from configuration
// and acts as their dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/api"
	"github.com/JakeFAU/catalog-harvester/internal/clock/system"
	"github.com/JakeFAU/catalog-harvester/internal/config"
	"github.com/JakeFAU/catalog-harvester/internal/crawler"
	collyfetcher "github.com/JakeFAU/catalog-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-harvester/internal/hash/sha256"
	"github.com/JakeFAU/catalog-harvester/internal/id/uuid"
	"github.com/JakeFAU/catalog-harvester/internal/pagination"
	"github.com/JakeFAU/catalog-harvester/internal/policy/ratelimit"
	memorypub "github.com/JakeFAU/catalog-harvester/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/catalog-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-harvester/internal/render"
	"github.com/JakeFAU/catalog-harvester/internal/runner"
	"github.com/JakeFAU/catalog-harvester/internal/storage/gcs"
	"github.com/JakeFAU/catalog-harvester/internal/storage/local"
	"github.com/JakeFAU/catalog-harvester/internal/storage/memory"
	"github.com/JakeFAU/catalog-harvester/internal/storage/postgres"
	"github.com/JakeFAU/catalog-harvester/internal/storage/sqlite"
	"github.com/JakeFAU/catalog-harvester/internal/target"
)

// Store is the persistence handle the app runs against.
type Store interface {
	crawler.Store
	api.Pinger
}

// Options overrides pieces of the container, mostly for tests.
type Options struct {
	Clock   crawler.Clock
	IDs     crawler.IDGenerator
	Store   Store
	Fetcher crawler.Fetcher
}

// App holds the shared services of one harvester process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     Store
	fetcher   crawler.Fetcher
	archive   crawler.BlobStore
	publisher crawler.Publisher
	runner    *runner.Runner
	server    *api.Server

	closers []func() error
}

// New builds every service named by cfg. On error, whatever was opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}
	ids := opts.IDs
	if ids == nil {
		ids = uuid.New()
	}

	a.store = opts.Store
	if a.store == nil {
		if a.store, err = a.openStore(ctx, clock); err != nil {
			return nil, err
		}
	}
	a.fetcher = opts.Fetcher
	if a.fetcher == nil {
		if a.fetcher, err = a.openFetcher(); err != nil {
			return nil, err
		}
	}
	if a.archive, err = a.openArchive(ctx); err != nil {
		return nil, err
	}
	if a.publisher, err = a.openPublisher(ctx); err != nil {
		return nil, err
	}

	renderer := render.New(a.fetcher, a.archive, sha256.New(), render.Config{
		ArchivePrefix: cfg.Archive.Prefix,
		ContentType:   cfg.Archive.ContentType,
	}, logger.Named("render"))
	pagePacer := ratelimit.New(ratelimit.Config{
		RPS:    cfg.Politeness.PageRPS,
		Burst:  cfg.Politeness.Burst,
		Jitter: cfg.Politeness.PageJitter,
	})
	itemPacer := ratelimit.New(ratelimit.Config{
		RPS:    cfg.Politeness.ItemRPS,
		Burst:  cfg.Politeness.Burst,
		Jitter: cfg.Politeness.ItemJitter,
	})
	controller := pagination.New(a.store, a.store, a.store, renderer, pagePacer, itemPacer,
		pagination.Config{MaxPages: cfg.Harvest.MaxPages}, logger.Named("controller"))

	a.runner = runner.New(target.NewGenerator(a.store), a.store, controller, a.publisher, ids, clock, runner.Config{
		MinPriority:  cfg.Harvest.MinPriority,
		LimitTargets: cfg.Harvest.LimitTargets,
		Topic:        cfg.Events.Topic,
	}, logger.Named("runner"))
	a.server = api.NewServer(a.store, logger.Named("api"))

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("render", cfg.Render.Mode),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("events", cfg.Events.Provider),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, clock crawler.Clock) (Store, error) {
	cfg := a.cfg.Store
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.Migrate {
			a.logger.Info("applying postgres migrations")
			if err := postgres.Migrate(cfg.DSN); err != nil {
				return nil, err
			}
		}
		store, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns}, clock)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, clock)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.DriverMemory:
		a.logger.Warn("using in-memory store; nothing survives the process")
		return memory.NewStore(clock), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func (a *App) openFetcher() (crawler.Fetcher, error) {
	cfg := a.cfg.Render
	switch cfg.Mode {
	case config.RenderHeadless:
		session, err := headless.NewSession(headless.Config{
			UserAgent:     cfg.UserAgent,
			ExecPath:      cfg.ChromePath,
			PageTimeout:   cfg.PageTimeout,
			DetailTimeout: cfg.DetailTimeout,
			SettleDelay:   cfg.SettleDelay,
		}, a.logger.Named("headless"))
		if err != nil {
			return nil, fmt.Errorf("create headless session: %w", err)
		}
		a.closers = append(a.closers, session.Close)
		return session, nil
	case config.RenderStatic:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.UserAgent,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.PageTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown render mode: %s", cfg.Mode)
	}
}

func (a *App) openArchive(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.cfg.Archive
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderMemory:
		return memory.NewBlobStore(), nil
	case config.ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, nil
	case config.ProviderGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Provider)
	}
}

func (a *App) openPublisher(ctx context.Context) (crawler.Publisher, error) {
	cfg := a.cfg.Events
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderMemory:
		return memorypub.New(), nil
	case config.ProviderPubSub:
		pub, err := pubsubpub.New(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events provider: %s", cfg.Provider)
	}
}

// Store returns the persistence handle.
func (a *App) Store() Store { return a.store }

// Archive returns the snapshot archive, or nil when disabled.
func (a *App) Archive() crawler.BlobStore { return a.archive }

// Publisher returns the event publisher, or nil when disabled.
func (a *App) Publisher() crawler.Publisher { return a.publisher }

// Server returns the health and metrics server.
func (a *App) Server() *api.Server { return a.server }

// Plan lists every target with its current ledger decision.
func (a *App) Plan(ctx context.Context) ([]crawler.Decision, error) {
	return a.runner.Plan(ctx)
}

// Run performs one harvest. When metrics.addr is set the health and metrics
// listener runs for the duration of the harvest.
func (a *App) Run(ctx context.Context) (crawler.RunSummary, error) {
	if a.cfg.Metrics.Addr == "" {
		return a.runner.Run(ctx)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- a.server.ListenAndServe(serveCtx, a.cfg.Metrics.Addr) }()

	summary, err := a.runner.Run(ctx)
	stopServe()
	if serveErr := <-served; serveErr != nil {
		a.logger.Warn("metrics listener failed", zap.Error(serveErr))
	}
	return summary, err
}

// Close releases every service in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
		return err
	}
	return nil
}

// Migrate brings the configured store's schema up to date, or rolls it back
// when down is set. SQLite and memory stores manage their schema on open.
func Migrate(ctx context.Context, cfg config.Config, down bool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if down {
			logger.Info("rolling back postgres migrations")
			return postgres.MigrateDown(cfg.Store.DSN)
		}
		logger.Info("applying postgres migrations")
		return postgres.Migrate(cfg.Store.DSN)
	case config.DriverSQLite:
		if down {
			return fmt.Errorf("sqlite schema cannot be rolled back")
		}
		store, err := sqlite.Open(ctx, cfg.Store.SQLitePath, system.New())
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("sqlite schema ensured", zap.String("path", cfg.Store.SQLitePath))
		return store.Close()
	case config.DriverMemory:
		logger.Info("memory store has no schema to migrate")
		return nil
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}
