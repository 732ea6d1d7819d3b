package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	all := flag.Bool("all", false, "merge every partition into one")
	rounds := flag.Int("rounds", 0, "maximum merge rounds, 0 runs until nothing is left to merge")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The offline merger never consumes, so the postings cache only costs memory.
	cfg.Redis.Enabled = false
	svc, err := indexer.Open(ctx, cfg, indexer.Options{})
	if err != nil {
		slog.Error("failed to open indexer", "error", err)
		os.Exit(1)
	}
	before := len(svc.Engine.Partitions())

	code := 0
	done := 0
	for *rounds == 0 || done < *rounds {
		merged, err := svc.Compactor.RunOnce(ctx, *all)
		if err != nil {
			slog.Error("merge failed", "round", done+1, "error", err)
			code = 1
			break
		}
		if !merged {
			break
		}
		done++
	}
	slog.Info("merge finished",
		"rounds", done,
		"partitions_before", before,
		"partitions_after", len(svc.Engine.Partitions()),
		"live_docs", svc.Engine.Live(),
	)
	if err := svc.Close(); err != nil {
		slog.Error("closing indexer", "error", err)
		code = 1
	}
	os.Exit(code)
}
