package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	cacheBytes := flag.Int64("postings-cache", 64<<20, "in-process postings cache size in bytes, 0 to disable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "data_dir", cfg.Indexer.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier *consumer.Notifier
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		notifier = consumer.NewNotifier(producer)
	}
	opts := indexer.Options{
		Registerer:         prometheus.DefaultRegisterer,
		PostingsCacheBytes: *cacheBytes,
	}
	if notifier != nil {
		opts.OnCommit = notifier.Dumped
	}

	svc, err := indexer.Open(ctx, cfg, opts)
	if err != nil {
		slog.Error("failed to open indexer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("closing indexer", "error", err)
		}
	}()
	if notifier != nil {
		svc.Compactor.OnMerged = notifier.Merged
		svc.Health.Register("kafka", health.Optional(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka)
		}))
	}

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, svc.Health.Routes())
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	svc.Engine.StartFlushLoop(ctx)
	compacting := svc.Compactor.Start(ctx)

	if !cfg.Kafka.Enabled {
		slog.Info("kafka disabled, serving existing partitions until shutdown")
		<-ctx.Done()
	} else {
		kafkaConsumer := kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(svc.Engine),
		)
		indexConsumer := consumer.New(kafkaConsumer)
		slog.Info("indexer service ready, consuming from kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := indexConsumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}

	<-compacting
	slog.Info("flushing live partition before shutdown")
	fctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := svc.Engine.Flush(fctx); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer service stopped", "partitions", len(svc.Engine.Partitions()))
}
