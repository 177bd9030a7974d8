package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/database"
	"jobpulse/internal/database/migration"
	dbpostgres "jobpulse/internal/database/postgres"
	dbsqlite "jobpulse/internal/database/sqlite"
	"jobpulse/internal/infrastructure/cache"
	"jobpulse/internal/pipeline"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/pkg/retry"
	"jobpulse/internal/repository"
	"jobpulse/internal/scraper"
	"jobpulse/internal/usecase"
	"jobpulse/internal/ws"
	"jobpulse/migrations"

	"go.uber.org/zap"
)

// Container owns every long-lived dependency of the process.
type Container struct {
	Config config.Config
	Logger *zap.Logger
	DB     database.DB
	Redis  *cache.Redis
	Hub    *ws.Hub

	Postings *repository.SQLPostingRepository
	Runs     *repository.SQLRunRepository

	Retention    *usecase.RetentionUsecase
	Reactivation *usecase.ReactivationUsecase
	Status       *usecase.StatusUsecase
	Pipeline     *pipeline.Pipeline
}

func NewContainer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Container, error) {
	log = logger.OrNop(log)

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := openDB(connCtx, cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("database connected", zap.String("driver", db.Driver()))

	redis := cache.NewRedis(cfg.Redis, log)
	hub := ws.NewHub(log)

	postings := repository.NewSQLPostingRepository(db)
	runs := repository.NewSQLRunRepository(db)

	writes := retry.Default()
	fetchPolicy := retry.Backoff{
		Attempts:  cfg.Crawl.FetchAttempts,
		BaseDelay: cfg.Crawl.FetchBaseDelay,
		MaxDelay:  cfg.Crawl.FetchMaxDelay,
		Jitter:    0.2,
	}
	httpFetcher := scraper.NewCollyFetcher(scraper.CollyOptions{Timeout: cfg.Crawl.FetchTimeout})

	upsert := usecase.NewUpsertUsecase(postings, writes, log)
	retention := usecase.NewRetentionUsecase(postings, cfg.Retention.StaleAfter, log)
	reactivation := usecase.NewReactivationUsecase(postings, log)
	validation := usecase.NewValidationUsecase(postings, []scraper.Fetcher{
		scraper.NewBrowserFetcher(scraper.FullProfile()),
		scraper.NewBrowserFetcher(scraper.ReducedProfile()),
		httpFetcher,
	}, redis, cfg.Validator, cfg.Crawl.DetailURLTemplate, log)
	backfill := usecase.NewBackfillUsecase(postings, []scraper.Fetcher{
		httpFetcher,
		scraper.NewBrowserFetcher(scraper.ReducedProfile()),
	}, cfg.Backfill, cfg.Crawl.DetailURLTemplate, log)
	status := usecase.NewStatusUsecase(postings, runs, db, redis, redis, cfg.Retention.StaleAfter, log)

	p := pipeline.New(pipeline.Deps{
		Crawl: pipeline.CrawlDeps{
			Open: crawlOpener(cfg.Crawl, httpFetcher),
			Walker: scraper.WalkerConfig{
				StartURL:          cfg.Crawl.StartURL,
				PathPrefix:        cfg.Crawl.ListingPathPrefix,
				MaxPages:          cfg.Crawl.MaxPages,
				EmptyStreak:       cfg.Crawl.EmptyStreak,
				IdleStreak:        cfg.Crawl.IdleStreak,
				LowYieldThreshold: cfg.Crawl.LowYieldThreshold,
				Retry:             fetchPolicy,
				PageDelay:         cfg.Crawl.PageDelay,
			},
			Extractor: scraper.NewExtractor(scraper.DefaultSelectors()),
			Continuation: scraper.Chain{
				scraper.PageParam{Param: cfg.Crawl.PageParam},
				scraper.DefaultNextLink(),
			},
			Upsert: upsert,
		},
		Validation:   validation,
		Retention:    retention,
		Reactivation: reactivation,
		Backfill:     backfill,
		Runs:         runs,
		Locker:       redis,
		Notifier:     hub,
		Status:       status,
		Logger:       log,
	}, pipeline.Options{
		UpsertInFlight:  cfg.Crawl.UpsertInFlight,
		LockTTL:         cfg.Crawl.LockTTL,
		SweepAfterCrawl: cfg.Retention.SweepAfterCrawl,
	})

	return &Container{
		Config:       cfg,
		Logger:       log,
		DB:           db,
		Redis:        redis,
		Hub:          hub,
		Postings:     postings,
		Runs:         runs,
		Retention:    retention,
		Reactivation: reactivation,
		Status:       status,
		Pipeline:     p,
	}, nil
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (database.DB, error) {
	if cfg.IsSQLite() {
		db, err := dbsqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return dbpostgres.Connect(ctx, cfg)
}

// crawlOpener hands out the shared HTTP fetcher, or a fresh browser per
// crawl when the listing needs JavaScript.
func crawlOpener(cfg config.CrawlConfig, httpFetcher scraper.Fetcher) pipeline.FetcherOpener {
	if !cfg.UseBrowser {
		return func(context.Context) (scraper.Fetcher, func(), error) {
			return httpFetcher, func() {}, nil
		}
	}
	return func(ctx context.Context) (scraper.Fetcher, func(), error) {
		b, err := scraper.OpenBrowser(ctx, scraper.FullProfile())
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}
}

// Migrate applies the PostgreSQL migrations, from MIGRATIONS_DIR when set and
// the embedded copies otherwise. SQLite carries its schema at open time.
func (c *Container) Migrate(ctx context.Context) error {
	if c.DB.Driver() != dbpostgres.DriverName {
		return nil
	}
	r := migration.Runner{FS: migrations.FS, Logger: c.Logger}
	if dir := strings.TrimSpace(c.Config.Database.MigrationsDir); dir != "" {
		r = migration.Runner{Dir: dir, Logger: c.Logger}
	}
	if _, err := r.Run(ctx, c.DB.SQLDB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
