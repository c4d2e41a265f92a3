package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/cardquant/internal/cache"
	"github.com/newthinker/cardquant/internal/collector"
	"github.com/newthinker/cardquant/internal/collector/jsonfile"
	"github.com/newthinker/cardquant/internal/config"
	"github.com/newthinker/cardquant/internal/core"
	"github.com/newthinker/cardquant/internal/filter"
	"github.com/newthinker/cardquant/internal/insights"
	"github.com/newthinker/cardquant/internal/llm"
	"github.com/newthinker/cardquant/internal/llm/factory"
	"github.com/newthinker/cardquant/internal/logger"
	"github.com/newthinker/cardquant/internal/metrics"
	"github.com/newthinker/cardquant/internal/pipeline"
	"github.com/newthinker/cardquant/internal/storage/archive"
	"github.com/newthinker/cardquant/internal/storage/pricedb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runtime holds everything a command needs, built from one config file.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	store    pricedb.Store
	metrics  *metrics.Registry
	pipeline *pipeline.Pipeline
	insights *insights.Generator

	closers []func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logger.New(cfg.Log.Development || debug, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	rt := &runtime{cfg: cfg, log: log, metrics: metrics.NewRegistry()}
	if err := rt.build(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) build(ctx context.Context) error {
	cfg, log := rt.cfg, rt.log

	store, err := pricedb.Open(cfg.Storage.Hot.Driver, cfg.Storage.Hot.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)

	if cfg.Catalog != "" {
		items, err := jsonfile.LoadCatalog(cfg.Catalog)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := store.UpsertItem(ctx, item); err != nil {
				return fmt.Errorf("seeding catalog: %w", err)
			}
		}
		log.Info("catalog loaded", zap.String("path", cfg.Catalog), zap.Int("items", len(items)))
	}

	collectors, err := buildCollectors(cfg)
	if err != nil {
		return err
	}
	for _, c := range collectors.GetAll() {
		log.Debug("collector registered", zap.String("name", c.Name()), zap.String("source", string(c.Source())))
	}

	provider, err := factory.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm provider: %w", err)
	}
	chain := buildChain(cfg, provider, log)
	rt.insights = insights.New(provider, log)

	analysisCache, err := rt.buildCache(ctx)
	if err != nil {
		return err
	}

	rt.pipeline = pipeline.New(pipeline.Deps{
		Store:      store,
		Collectors: collectors,
		Chain:      chain,
		Cache:      analysisCache,
		Metrics:    rt.metrics,
		Logger:     log,
	},
		pipeline.WithTimeout(cfg.Analysis.Timeout),
		pipeline.WithRiskFreeRate(cfg.Analysis.RiskFreeRate),
	)
	return nil
}

func buildCollectors(cfg *config.Config) (*collector.Registry, error) {
	registry := collector.NewRegistry()

	names := make([]string, 0, len(cfg.Collectors))
	for name := range cfg.Collectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cc := cfg.Collectors[name]
		if !cc.Enabled {
			continue
		}
		c := jsonfile.New(name, core.Source(cc.Source))
		if err := c.Init(collector.Config{Enabled: cc.Enabled, Path: cc.Path}); err != nil {
			return nil, fmt.Errorf("initializing collector %s: %w", name, err)
		}
		registry.Register(c)
	}
	return registry, nil
}

// buildChain assembles the filter tiers. A nil provider leaves the semantic
// tier out.
func buildChain(cfg *config.Config, provider llm.Provider, log *zap.Logger) *filter.Chain {
	var semantic filter.Tier
	if provider != nil {
		semantic = filter.NewSemanticTier(provider, filter.SemanticConfig{
			Threshold:     cfg.Filter.Semantic.Threshold,
			BatchSize:     cfg.Filter.Semantic.BatchSize,
			Concurrency:   cfg.Filter.Semantic.Concurrency,
			RatePerSecond: cfg.Filter.Semantic.RatePerSecond,
		}, log)
		log.Info("semantic filtering available", zap.String("provider", provider.Name()))
	}

	return filter.NewChain(
		semantic,
		filter.NewRuleTier(),
		filter.NewStatisticalTier(cfg.Filter.IQRMultiplier, cfg.Filter.MinGroupSize),
		log,
	)
}

// buildCache selects the hot backend and attaches the mirrors. With redis the
// store still receives every result so history keeps working.
func (rt *runtime) buildCache(ctx context.Context) (*cache.Cache, error) {
	cfg, log := rt.cfg, rt.log
	storeBackend := cache.NewStoreBackend(rt.store)

	var opts []cache.Option
	cold, err := archive.New(cfg.Storage.Cold.Archive())
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if cold != nil {
		opts = append(opts, cache.WithMirror(archive.NewAnalyses(cold)))
	}

	if cfg.Cache.Backend != "redis" {
		return cache.New(storeBackend, log, opts...), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	backend := cache.NewRedisBackend(client, cfg.Cache.Redis.Retention)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable, caching in the store",
			zap.String("addr", cfg.Cache.Redis.Addr),
			zap.Error(err),
		)
		backend.Close()
		return cache.New(storeBackend, log, opts...), nil
	}
	rt.closers = append(rt.closers, backend.Close)

	opts = append(opts, cache.WithMirror(storeBackend))
	return cache.New(backend, log, opts...), nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Warn("close failed", zap.Error(err))
		}
	}
	rt.log.Sync()
}
