// Package indexer assembles the partition engine with its collaborators:
// the field registry, postings caches, the compactor and health checks.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/merge"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postcache"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/redis"
)

// Options tune what Open wires.
type Options struct {
	// Registerer receives the metrics; nil leaves them unregistered.
	Registerer prometheus.Registerer
	// PostingsCacheBytes bounds the in-process postings cache; zero
	// disables it.
	PostingsCacheBytes int64
	OnCommit           func(*partition.Partition)
}

// Service is a running indexer over one data directory.
type Service struct {
	Fields    field.Definer
	Engine    *partition.Engine
	Compactor *merge.Compactor
	Health    *health.Checker
	Metrics   *metrics.Metrics

	closers []func() error
	logger  *slog.Logger
}

// Open connects the configured dependencies, defines the configured fields
// and opens the engine on cfg.Indexer.DataDir.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	s := &Service{
		Health:  health.NewChecker(),
		Metrics: metrics.New(opts.Registerer),
		logger:  slog.Default().With("component", "indexer"),
	}
	if err := s.open(ctx, cfg, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) open(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting field registry: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.Health.Register("postgres", health.Ping(db.DB.PingContext))
		reg, err := field.NewPGRegistry(ctx, db)
		if err != nil {
			return err
		}
		s.Fields = reg
	} else {
		s.Fields = field.NewRegistry()
	}
	if err := field.Configure(ctx, s.Fields, cfg.Fields); err != nil {
		return fmt.Errorf("defining fields: %w", err)
	}

	var tiers postcache.Tiered
	if opts.PostingsCacheBytes > 0 {
		tiers = append(tiers, postcache.NewMemory(opts.PostingsCacheBytes))
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting postings cache: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.Health.Register("redis", health.Optional(client.Ping))
		tiers = append(tiers, postcache.NewRedis(client, cfg.Redis))
	}
	var cache partition.PostingsCache
	if len(tiers) > 0 {
		cache = tiers
	}

	engine, err := partition.NewEngine(cfg.Indexer, s.Fields, partition.EngineOptions{
		Metrics:       s.Metrics,
		PostingsCache: cache,
		OnCommit:      opts.OnCommit,
	})
	if err != nil {
		return err
	}
	s.Engine = engine
	s.closers = append(s.closers, engine.Close)
	s.Health.Register("data_dir", health.Writable(cfg.Indexer.DataDir))
	s.Compactor = merge.NewCompactor(engine, cfg.Merge, cfg.Indexer, s.Metrics)

	s.logger.Info("indexer opened",
		"data_dir", cfg.Indexer.DataDir,
		"fields", len(s.Fields.Fields()),
		"partitions", len(engine.Partitions()),
		"live_docs", engine.Live(),
		"redis_cache", cfg.Redis.Enabled,
	)
	return nil
}

// Close shuts the engine down first, then the connections it used.
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
