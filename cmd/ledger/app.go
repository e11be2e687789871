package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/david/market-ledger/internal/config"
	"github.com/david/market-ledger/internal/db"
	"github.com/david/market-ledger/internal/health"
	"github.com/david/market-ledger/internal/ingest"
	"github.com/david/market-ledger/internal/logging"
	"github.com/david/market-ledger/internal/news"
	"github.com/david/market-ledger/internal/run"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// app holds the components shared by the run and serve commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *ingest.Registry
	table    *health.Table
	feeds    *news.Config
	pool     *pgxpool.Pool
	store    *db.Store
}

func newApp(ctx context.Context, withStore bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if a.registry, err = ingest.LoadRegistry(cfg.Run.Registry); err != nil {
		return nil, err
	}
	if a.table, err = health.LoadTable(cfg.Run.Metrics); err != nil {
		return nil, err
	}
	if a.feeds, err = news.LoadConfig(cfg.Run.Feeds); err != nil {
		return nil, err
	}

	if withStore {
		pool, err := db.Connect(ctx, cfg.Database.URL)
		switch {
		case errors.Is(err, db.ErrNoDatabase):
			logger.Info("no database configured; using the data file only")
		case err != nil:
			return nil, err
		default:
			if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			a.pool = pool
			a.store = db.NewStore(pool)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}

// runner wires the extraction pipeline, news collector and scorer. Sinks are
// the data file and, when configured, the database.
func (a *app) runner(output string, withNews bool) *run.Runner {
	fetcher := ingest.NewRateLimitedFetcher(ingest.DefaultFetchConfig(), a.logger)
	pipeline := ingest.NewPipeline(fetcher,
		ingest.WithCollyFetcher(ingest.NewCollyFetcher(ingest.DefaultFetchConfig(), a.logger)),
		ingest.WithLogger(a.logger),
	)

	var scorerOpts []health.Option
	for key, b := range a.cfg.Baselines {
		scorerOpts = append(scorerOpts, health.WithBaseline(key, b.Score, b.Trend))
	}
	scorerOpts = append(scorerOpts, health.WithLogger(a.logger))

	opts := []run.Option{
		run.WithScorer(health.NewScorer(a.table, scorerOpts...)),
		run.WithConcurrency(a.cfg.Run.Concurrency),
		run.WithLogger(a.logger),
	}
	if withNews {
		opts = append(opts, run.WithNews(news.NewCollector(a.feeds, fetcher, news.WithLogger(a.logger))))
	}
	if output != "" {
		opts = append(opts, run.WithSinks(fileSink(output)))
	}
	if a.store != nil {
		opts = append(opts, run.WithSinks(a.store))
	}
	return run.NewRunner(a.registry, pipeline, opts...)
}
