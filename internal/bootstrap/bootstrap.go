// Package bootstrap assembles the tariff sources and the pricing engine from
// configuration for both binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"deliverycost/internal/config"
	"deliverycost/internal/db"
	"deliverycost/internal/destination"
	"deliverycost/internal/engine"
	"deliverycost/internal/geo"
	"deliverycost/internal/metrics"
	"deliverycost/internal/rate"
	"deliverycost/internal/tariff"
	"deliverycost/internal/tariff/flatfile"
	tariffmongo "deliverycost/internal/tariff/mongo"
	"deliverycost/internal/tariff/postgres"
	"deliverycost/internal/tariff/remote"
	"deliverycost/internal/tariff/simulated"
)

// MongoCollection holds the tariff documents.
const MongoCollection = "tariffs"

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Migrate applies the Postgres schema and Mongo indexes on start.
	Migrate bool
}

// Stack is an assembled engine with the stores it owns. Postgres and Mongo
// are nil unless configured.
type Stack struct {
	Directory *geo.Directory
	Sources   []tariff.Source
	Postgres  *postgres.Source
	Mongo     *tariffmongo.Source
	Engine    *engine.Engine

	closers []func(context.Context) error
}

// Close releases the database connections.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Build opens every source named in cfg.Sources, in order, and wires them
// into an engine.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Stack, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	dir, err := geo.Default()
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	st := &Stack{Directory: dir}
	for _, name := range cfg.Sources {
		src, err := st.open(ctx, name, cfg, opts)
		if err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("open source %s: %w", name, err)
		}
		st.Sources = append(st.Sources, src)
	}

	chainCfg := tariff.Config{
		PriceTTL:      cfg.PriceCacheTTL,
		ListingTTL:    cfg.ListingCacheTTL,
		SourceTimeout: cfg.SourceTimeout,
		Breaker:       tariff.DefaultBreakerConfig(),
		Logger:        opts.Logger.Named("tariff"),
	}
	engCfg := engine.Config{
		QuoteTTL: cfg.PriceCacheTTL,
		Logger:   opts.Logger.Named("engine"),
	}
	if opts.Metrics != nil {
		chainCfg.Recorder = opts.Metrics
		engCfg.Recorder = opts.Metrics
	}
	chain, err := tariff.NewChain(chainCfg, st.Sources...)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	var matchOpts []destination.Option
	if cfg.FuzzyThreshold > 0 {
		matchOpts = append(matchOpts, destination.WithTypoTolerance(cfg.FuzzyThreshold))
	}
	st.Engine = engine.New(destination.NewMatcher(dir, matchOpts...), chain, rate.NewCalculator(), engCfg)
	opts.Logger.Info("pricing engine ready", zap.Strings("sources", chain.Sources()))
	return st, nil
}

func (st *Stack) open(ctx context.Context, name string, cfg config.Config, opts Options) (tariff.Source, error) {
	switch name {
	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		src := postgres.New(pool)
		if opts.Migrate {
			if err := src.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		st.Postgres = src
		return src, nil

	case config.SourceMongo:
		m, err := db.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, m.Disconnect)
		src := tariffmongo.New(m.Database, MongoCollection)
		if opts.Migrate {
			if err := src.EnsureIndexes(ctx); err != nil {
				return nil, err
			}
		}
		st.Mongo = src
		return src, nil

	case config.SourceRemote:
		var ropts []remote.Option
		if cfg.TariffAPIToken != "" {
			ropts = append(ropts, remote.WithToken(cfg.TariffAPIToken))
		}
		return remote.New(cfg.TariffAPIURL, ropts...), nil

	case config.SourceFlatfile:
		src, err := flatfile.Open(cfg.TariffCSV, cfg.TariffCSVService)
		if err != nil {
			return nil, err
		}
		opts.Logger.Info("tariff export loaded",
			zap.String("path", cfg.TariffCSV),
			zap.String("service", cfg.TariffCSVService),
			zap.Int("records", src.Len()),
		)
		return src, nil

	case config.SourceSimulated:
		return simulated.New(st.Directory, simulated.DefaultPricing()), nil
	}
	return nil, fmt.Errorf("unknown tariff source %q", name)
}
