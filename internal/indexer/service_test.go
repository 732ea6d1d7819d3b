package indexer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/health"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Indexer.DataDir = t.TempDir()
	cfg.Indexer.MaxDocsPerPartition = 2
	cfg.Indexer.FlushInterval = 0
	cfg.Merge.MergeFactor = 2
	return cfg
}

func TestServiceIndexFlushMerge(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()
	var committed []string
	s, err := Open(ctx, cfg, Options{
		Registerer:         reg,
		PostingsCacheBytes: 1 << 20,
		OnCommit:           func(p *partition.Partition) { committed = append(committed, partition.Name(p.Seq())) },
	})
	require.NoError(t, err)
	defer s.Close()

	for _, d := range []partition.Document{
		{Key: "a", Fields: map[string][]any{"title": {"Go partitions"}, "tags": {"Infra"}}},
		{Key: "b", Fields: map[string][]any{"body": {"merging partitions quickly"}}},
		{Key: "c", Fields: map[string][]any{"title": {"Other"}, "tags": {"infra"}}},
	} {
		_, err := s.Engine.Index(d)
		require.NoError(t, err)
	}
	require.NoError(t, s.Engine.Flush(ctx))
	assert.Len(t, committed, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(s.Metrics.DocsIndexedTotal))

	merged, err := s.Compactor.RunOnce(ctx, true)
	require.NoError(t, err)
	require.True(t, merged)
	parts := s.Engine.Partitions()
	require.Len(t, parts, 1)
	p := parts[0]
	assert.Equal(t, 3, p.Live())

	tags, err := p.Field("tags").Dict(field.DictSavedUncased).Get("infra")
	require.NoError(t, err)
	require.NotNil(t, tags)
	assert.Equal(t, 2, tags.N())

	body, err := p.Field("body").Stemmed("Partitions")
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Equal(t, []uint32{2}, postings.Collect(body.Iterator(postings.Features{})))

	report := s.Health.Run(ctx)
	assert.Equal(t, health.StatusUp, report.Status)
	assert.Contains(t, report.Components, "data_dir")
}

func TestServiceRejectsBadSchema(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fields = []config.FieldConfig{{Name: "body", Attrs: "vector"}}
	_, err := Open(context.Background(), cfg, Options{})
	assert.Error(t, err)
}
