package main

import (
	"github.com/fortuna/propline/internal/backfill"
	"github.com/fortuna/propline/internal/cache"
	"github.com/fortuna/propline/internal/config"
	"github.com/fortuna/propline/internal/ingest/sgo"
	"github.com/fortuna/propline/internal/logging"
	"github.com/fortuna/propline/internal/publisher"
	"github.com/fortuna/propline/internal/store"
	"github.com/fortuna/propline/internal/store/repository"
	"github.com/fortuna/propline/internal/upsert"
)

type deps struct {
	runner *backfill.Runner
	db     *store.Database
	cache  *cache.RedisCache
}

func (d *deps) Close() {
	if d.cache != nil {
		d.cache.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

// wire builds a runner from cfg. Redis is optional for the CLI: when it is unreachable the run
// proceeds uncached and unpublished. Postgres is required unless this is a dry run.
func wire(cfg *config.Config, g *globalFlags) (*deps, error) {
	log := logging.For("cli")
	d := &deps{}

	clientCfg := sgo.ClientConfig{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		Limit:         cfg.Upstream.Limit,
		RecentTTL:     cfg.Cache.RecentTTL,
		HistoricalTTL: cfg.Cache.HistoricalTTL,
	}

	var sink backfill.SummarySink
	if !g.noCache {
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("⚠️  Redis unavailable, running without response cache")
		} else {
			d.cache = rc
			clientCfg.Cache = rc
			sink = publisher.NewRedisStreamPublisher(rc.Client())
		}
	}

	var writer backfill.Writer
	if !g.dryRun {
		db, err := store.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			d.Close()
			return nil, &backfill.ConfigurationError{Setting: "DATABASE_URL", Reason: err.Error()}
		}
		d.db = db
		writer = upsert.NewWriter(
			repository.NewPropLineRepository(db),
			repository.NewGameLogRepository(db),
			upsert.WithBatchSizes(cfg.Upsert.PropBatchSize, cfg.Upsert.GameLogBatchSize),
		)
	}

	d.runner = backfill.NewRunner(sgo.NewClient(clientCfg), writer, sink, backfill.RunnerConfig{
		Leagues:            cfg.Ingest.Leagues,
		ChunkSize:          cfg.Ingest.ChunkSize,
		MinRequestInterval: cfg.Ingest.MinRequestInterval,
		FetchTimeout:       cfg.Ingest.FetchTimeout,
		LeagueConcurrency:  cfg.Ingest.LeagueConcurrency,
		DefaultSportsbook:  cfg.Ingest.DefaultSportsbook,
	})
	return d, nil
}
