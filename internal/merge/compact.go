package merge

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// Compactor merges an Engine's partitions in the background. Each round
// merges the MergeFactor smallest partitions once at least that many
// exist.
type Compactor struct {
	engine  *partition.Engine
	cfg     config.MergeConfig
	indexer config.IndexerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	// OnMerged runs after a merged partition replaces its sources.
	OnMerged func(merged *partition.Partition, sources []uint64)
}

func NewCompactor(e *partition.Engine, cfg config.MergeConfig, indexer config.IndexerConfig, m *metrics.Metrics) *Compactor {
	return &Compactor{
		engine:  e,
		cfg:     cfg,
		indexer: indexer,
		metrics: m,
		logger:  slog.Default().With("component", "compactor"),
	}
}

// pick chooses the partitions of the next round, smallest first and
// returned in sequence order.
func (c *Compactor) pick(parts []*partition.Partition, all bool) []*partition.Partition {
	if len(parts) < 2 || (!all && len(parts) < c.cfg.MergeFactor) {
		return nil
	}
	if all {
		return parts
	}
	bySize := slices.Clone(parts)
	slices.SortStableFunc(bySize, func(a, b *partition.Partition) int { return cmp.Compare(a.Live(), b.Live()) })
	picked := bySize[:c.cfg.MergeFactor]
	slices.SortFunc(picked, func(a, b *partition.Partition) int { return cmp.Compare(a.Seq(), b.Seq()) })
	return picked
}

// RunOnce performs one merge round. With all set every partition is merged
// into one. It reports whether a merge happened.
func (c *Compactor) RunOnce(ctx context.Context, all bool) (bool, error) {
	sources := c.pick(c.engine.Partitions(), all)
	if sources == nil {
		return false, nil
	}
	seq := c.engine.ReserveSeq()
	w, err := partition.Create(c.indexer.DataDir, seq, c.metrics)
	if err != nil {
		return false, err
	}
	res, err := Merge(ctx, sources, c.engine.Fields(), w, Options{
		AllowDuplicateKeys: c.cfg.AllowDuplicateKeys,
		PageSize:           c.indexer.PageSize,
		BufferInitialSize:  c.indexer.BufferInitialSize,
		Parallelism:        c.cfg.Parallelism,
		Metrics:            c.metrics,
	})
	if err != nil {
		return false, err
	}
	merged, err := partition.Open(res.Path, c.engine.Fields(), c.engine.OpenOptions())
	if err != nil {
		c.discard(res.Path)
		return false, err
	}
	if err := c.engine.Swap(sources, res.Snapshots, merged); err != nil {
		merged.Close()
		c.discard(res.Path)
		return false, err
	}
	if c.OnMerged != nil {
		seqs := make([]uint64, len(sources))
		for i, s := range sources {
			seqs[i] = s.Seq()
		}
		c.OnMerged(merged, seqs)
	}
	return true, nil
}

func (c *Compactor) discard(path string) {
	if err := os.RemoveAll(path); err != nil {
		c.logger.Error("removing unpublished merge", "path", path, "error", err)
	}
}

// Start runs a merge round every Interval until ctx is cancelled. The
// returned channel closes once no round is running.
func (c *Compactor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if c.cfg.Interval <= 0 {
		close(done)
		return done
	}
	ticker := time.NewTicker(c.cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("compactor stopping")
				return
			case <-ticker.C:
				if _, err := c.RunOnce(ctx, false); err != nil {
					c.logger.Error("merge round failed", "error", err)
				}
			}
		}
	}()
	return done
}
