package partition

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// EngineOptions are the optional collaborators of an Engine.
type EngineOptions struct {
	Metrics       *metrics.Metrics
	PostingsCache PostingsCache
	// OnCommit runs on the writer goroutine after each partition is
	// published.
	OnCommit func(*Partition)
}

type flushJob struct {
	mem     *Memory
	seq     uint64
	deletes map[string]struct{}
	done    chan struct{}
	err     error
}

// Engine owns the live Memory partition and the committed partitions of
// one data directory. When the live partition fills up it is swapped for
// an empty one and handed to a background writer, so indexing continues
// while the dump runs.
type Engine struct {
	cfg       config.IndexerConfig
	fields    field.Lookup
	opts      EngineOptions
	metrics   *metrics.Metrics
	pageCache *dictionary.PageCache
	logger    *slog.Logger

	mu      sync.Mutex
	mem     *Memory
	pending []*flushJob
	nextSeq uint64
	closed  bool
	sending sync.WaitGroup

	partsMu sync.RWMutex
	parts   []*Partition

	flushCh chan *flushJob
	writer  sync.WaitGroup
}

func NewEngine(cfg config.IndexerConfig, fields field.Lookup, opts EngineOptions) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, lxerrors.IO("creating index data directory", err)
	}
	depth := cfg.FlushQueueDepth
	if depth < 1 {
		depth = 1
	}
	e := &Engine{
		cfg:       cfg,
		fields:    fields,
		opts:      opts,
		metrics:   metrics.Or(opts.Metrics),
		pageCache: dictionary.NewPageCache(cfg.PageCacheSize, opts.Metrics),
		logger:    slog.Default().With("component", "engine"),
		mem:       NewMemory(fields),
		nextSeq:   1,
		flushCh:   make(chan *flushJob, depth),
	}
	if err := e.loadExistingPartitions(); err != nil {
		return nil, fmt.Errorf("loading existing partitions: %w", err)
	}
	e.writer.Add(1)
	go e.runWriter()
	return e, nil
}

func (e *Engine) openOptions() OpenOptions {
	return OpenOptions{PageCache: e.pageCache, PostingsCache: e.opts.PostingsCache, Metrics: e.opts.Metrics}
}

// Index adds doc to the live partition. A document whose key is already
// indexed replaces the earlier version, wherever it lives.
func (e *Engine) Index(doc Document) (uint32, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, lxerrors.New(lxerrors.ErrClosed, "index", doc.Key)
	}
	if _, err := e.deleteLocked(doc.Key); err != nil {
		e.mu.Unlock()
		return 0, err
	}
	id, err := e.mem.Add(doc)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	e.metrics.DocsIndexedTotal.Inc()
	var job *flushJob
	if e.full() {
		e.logger.Info("live partition full, flipping",
			"docs", e.mem.Len(),
			"size", e.mem.Size(),
		)
		job = e.flipLocked()
	}
	e.mu.Unlock()
	e.enqueue(job)
	return id, nil
}

func (e *Engine) full() bool {
	if e.cfg.MaxDocsPerPartition > 0 && e.mem.Len() >= e.cfg.MaxDocsPerPartition {
		return true
	}
	return e.cfg.MaxMemoryBytes > 0 && e.mem.Size() >= e.cfg.MaxMemoryBytes
}

// Delete removes the document with key from every partition. It reports
// whether any live copy was found.
func (e *Engine) Delete(key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, lxerrors.New(lxerrors.ErrClosed, "delete", key)
	}
	return e.deleteLocked(key)
}

// deleteLocked removes key from the live partition, records it against
// every in-flight dump holding it and deletes it on disk.
func (e *Engine) deleteLocked(key string) (bool, error) {
	found := e.mem.Delete(key)
	for _, job := range e.pending {
		if _, ok := job.mem.DocID(key); ok {
			job.deletes[key] = struct{}{}
			found = true
		}
	}
	for _, p := range e.Partitions() {
		id, ok, err := p.DocID(key)
		if err != nil {
			return found, err
		}
		if !ok {
			continue
		}
		if _, err := p.Delete(id); err != nil {
			return found, err
		}
		found = true
	}
	return found, nil
}

// flipLocked swaps in an empty live partition and returns the dump job for
// the old one, or nil when it holds no live documents.
func (e *Engine) flipLocked() *flushJob {
	mem := e.mem
	e.mem = NewMemory(e.fields)
	if mem.Len() == 0 {
		return nil
	}
	job := &flushJob{
		mem:     mem,
		seq:     e.nextSeq,
		deletes: make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	e.nextSeq++
	e.pending = append(e.pending, job)
	e.sending.Add(1)
	return job
}

// enqueue hands job to the writer. It blocks while the queue is full.
func (e *Engine) enqueue(job *flushJob) {
	if job == nil {
		return
	}
	defer e.sending.Done()
	e.flushCh <- job
}

// Flush dumps the live partition and waits until it and every dump queued
// before it are committed.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return lxerrors.New(lxerrors.ErrClosed, "flush", e.cfg.DataDir)
	}
	job := e.flipLocked()
	waits := slices.Clone(e.pending)
	e.mu.Unlock()
	e.enqueue(job)
	for _, j := range waits {
		select {
		case <-j.done:
			if j.err != nil {
				return j.err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) runWriter() {
	defer e.writer.Done()
	for job := range e.flushCh {
		job.err = e.commit(job)
		if job.err != nil {
			e.logger.Error("partition flush failed",
				"partition", Name(job.seq),
				"docs", job.mem.Len(),
				"error", job.err,
			)
			e.mu.Lock()
			e.removePending(job)
			e.mu.Unlock()
		}
		close(job.done)
	}
}

func (e *Engine) commit(job *flushJob) error {
	w, err := Create(e.cfg.DataDir, job.seq, e.opts.Metrics)
	if err != nil {
		return err
	}
	path, err := job.mem.Dump(w, DumpOptions{
		PageSize:          e.cfg.PageSize,
		BufferInitialSize: e.cfg.BufferInitialSize,
		Metrics:           e.opts.Metrics,
	})
	if err != nil {
		return err
	}
	p, err := Open(path, e.fields, e.openOptions())
	if err != nil {
		return err
	}

	e.mu.Lock()
	for key := range job.deletes {
		id, ok, err := p.DocID(key)
		if err == nil && ok {
			_, err = p.Delete(id)
		}
		if err != nil {
			e.logger.Error("applying deletion to flushed partition",
				"partition", Name(job.seq),
				"key", key,
				"error", err,
			)
		}
	}
	e.addPartition(p)
	e.removePending(job)
	e.mu.Unlock()

	e.logger.Info("partition flushed",
		"partition", Name(job.seq),
		"docs", p.Live(),
		"late_deletes", len(job.deletes),
		"active_partitions", len(e.Partitions()),
	)
	if e.opts.OnCommit != nil {
		e.opts.OnCommit(p)
	}
	return nil
}

func (e *Engine) removePending(job *flushJob) {
	e.pending = slices.DeleteFunc(e.pending, func(j *flushJob) bool { return j == job })
}

func (e *Engine) addPartition(p *Partition) {
	e.partsMu.Lock()
	defer e.partsMu.Unlock()
	i, _ := slices.BinarySearchFunc(e.parts, p.Seq(), func(q *Partition, seq uint64) int {
		return cmp.Compare(q.Seq(), seq)
	})
	e.parts = slices.Insert(e.parts, i, p)
	e.metrics.ActivePartitions.Set(float64(len(e.parts)))
}

// Partitions returns the committed partitions in sequence order.
func (e *Engine) Partitions() []*Partition {
	e.partsMu.RLock()
	defer e.partsMu.RUnlock()
	return slices.Clone(e.parts)
}

// Live is the number of documents in the live partition.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Len()
}

// ReserveSeq allocates a partition sequence number, for merges.
func (e *Engine) ReserveSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := e.nextSeq
	e.nextSeq++
	return seq
}

// OpenOptions are the options the engine opens partitions with.
func (e *Engine) OpenOptions() OpenOptions { return e.openOptions() }

// Fields is the field lookup the engine indexes with.
func (e *Engine) Fields() field.Lookup { return e.fields }

// forgetter is a postings cache that can drop a removed partition.
type forgetter interface{ Forget(dir string) }

// Swap replaces merged sources with their merge result. snapshots are the
// deletion bitmaps the merge read; documents deleted from a source since
// then are deleted from merged by key. The source directories are removed.
func (e *Engine) Swap(sources []*Partition, snapshots []*roaring.Bitmap, merged *Partition) error {
	if len(sources) != len(snapshots) {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "swap", "%d sources, %d snapshots", len(sources), len(snapshots))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	late := 0
	for i, src := range sources {
		it := roaring.AndNot(src.Deleted(), snapshots[i]).Iterator()
		for it.HasNext() {
			key, ok, err := src.Key(it.Next())
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			id, ok, err := merged.DocID(key)
			if err != nil {
				return err
			}
			if ok {
				if _, err := merged.Delete(id); err != nil {
					return err
				}
				late++
			}
		}
	}

	e.partsMu.Lock()
	e.parts = slices.DeleteFunc(e.parts, func(p *Partition) bool { return slices.Contains(sources, p) })
	e.partsMu.Unlock()
	e.addPartition(merged)

	for _, src := range sources {
		if err := src.Close(); err != nil {
			e.logger.Error("closing merged partition", "partition", Name(src.Seq()), "error", err)
		}
		if err := os.RemoveAll(src.Dir()); err != nil {
			e.logger.Error("removing merged partition", "partition", Name(src.Seq()), "error", err)
		}
		if f, ok := e.opts.PostingsCache.(forgetter); ok {
			f.Forget(src.Dir())
		}
	}
	e.logger.Info("partitions swapped",
		"merged", Name(merged.Seq()),
		"sources", len(sources),
		"late_deletes", late,
	)
	return nil
}

// StartFlushLoop flushes the live partition every FlushInterval until ctx
// is cancelled, then flushes once more.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(context.Background()); err != nil && !lxerrors.Is(err, lxerrors.ErrClosed) {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				e.mu.Lock()
				var job *flushJob
				if !e.closed && e.mem.Len() > 0 {
					job = e.flipLocked()
				}
				e.mu.Unlock()
				e.enqueue(job)
			}
		}
	}()
}

// Close flushes the live partition, drains the writer and closes every
// partition.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	job := e.flipLocked()
	e.mu.Unlock()
	e.enqueue(job)

	e.sending.Wait()
	close(e.flushCh)
	e.writer.Wait()

	e.partsMu.Lock()
	defer e.partsMu.Unlock()
	var first error
	for _, p := range e.parts {
		if err := p.Close(); err != nil {
			e.logger.Error("closing partition", "partition", Name(p.Seq()), "error", err)
			if first == nil {
				first = err
			}
		}
	}
	e.parts = nil
	e.metrics.ActivePartitions.Set(0)
	return first
}

func (e *Engine) loadExistingPartitions() error {
	seqs, err := List(e.cfg.DataDir)
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		e.nextSeq = max(e.nextSeq, seq+1)
		p, err := Open(Path(e.cfg.DataDir, seq), e.fields, e.openOptions())
		if err != nil {
			e.logger.Error("failed to open partition, skipping",
				"partition", Name(seq),
				"error", err,
			)
			continue
		}
		e.parts = append(e.parts, p)
		e.logger.Info("loaded existing partition",
			"partition", Name(seq),
			"docs", p.Live(),
			"fields", len(p.FieldIDs()),
		)
	}
	e.metrics.ActivePartitions.Set(float64(len(e.parts)))
	e.logger.Info("partition recovery complete", "partitions_loaded", len(e.parts))
	return nil
}
