package dedup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/embedding"
	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/vector"
)

// OutputPrefix names the deduplicated batch files.
const OutputPrefix = "deduped"

// EmbeddingOptions configures chunk level deduplication.
type EmbeddingOptions struct {
	// Src holds chunk batch files (*.json); Dst receives deduped_NNN.json.
	Src string
	Dst string
	// CacheDir, when set, holds the chunk embedding matrix and the
	// per-batch search cache.
	CacheDir string

	Encoder embedding.Encoder
	Batch   embedding.Batch

	Threshold float64
	K         int
	// BatchSize is the index/search batch and the maximum records per
	// output file.
	BatchSize int
	NewIndex  func() index.Index

	// Seed picks cluster representatives. Unseeded picks with a time based
	// seed instead; the kept chunks then differ from run to run.
	Seed     int64
	Unseeded bool

	Logger *zap.Logger
}

// EmbeddingStats summarises a run.
type EmbeddingStats struct {
	Chunks       int
	Kept         int
	Removed      int
	Clusters     int
	Merges       int
	SkippedFiles int
	Embedding    embedding.Stats
}

// EmbeddingDeduper keeps one representative per cluster of semantically
// similar chunks.
type EmbeddingDeduper struct {
	opts   EmbeddingOptions
	logger *zap.Logger
}

// NewEmbeddingDeduper validates opts.
func NewEmbeddingDeduper(opts EmbeddingOptions) (*EmbeddingDeduper, error) {
	if opts.Encoder == nil {
		return nil, errors.New("dedup: encoder is required")
	}
	if opts.Src == "" || opts.Dst == "" {
		return nil, errors.New("dedup: source and destination dirs are required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = corpus.DefaultMaxItemsPerFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingDeduper{opts: opts, logger: logger}, nil
}

// Run embeds every chunk under Src, clusters them and writes the
// representatives to Dst in input order. Previous output batches in Dst
// are replaced.
func (d *EmbeddingDeduper) Run(ctx context.Context) (EmbeddingStats, error) {
	var stats EmbeddingStats
	records, skipped, err := corpus.ReadChunkDir(d.opts.Src, d.logger)
	if err != nil {
		return stats, err
	}
	stats.Chunks, stats.SkippedFiles = len(records), skipped
	if len(records) == 0 {
		d.logger.Warn("no chunks to deduplicate", zap.String("src", d.opts.Src))
		return stats, nil
	}

	m, estats, err := d.embed(ctx, records)
	stats.Embedding = estats
	if err != nil {
		return stats, err
	}

	var cache *SearchCache
	if d.opts.CacheDir != "" {
		if cache, err = OpenSearchCache(filepath.Join(d.opts.CacheDir, "search.bolt")); err != nil {
			return stats, err
		}
		defer cache.Close()
	}
	clustering, err := Cluster(m.Rows(), ClusterOptions{
		Threshold: d.opts.Threshold,
		K:         d.opts.K,
		BatchSize: d.opts.BatchSize,
		NewIndex:  d.opts.NewIndex,
		Cache:     cache,
		Logger:    d.logger,
	})
	if err != nil {
		return stats, err
	}

	seed := d.opts.Seed
	if d.opts.Unseeded {
		seed = time.Now().UnixNano()
		d.logger.Warn("representative selection is not seeded; kept chunks will differ between runs")
	}
	reps := clustering.Representatives(seed)
	kept := make([]corpus.ChunkRecord, len(reps))
	for i, pos := range reps {
		kept[i] = records[pos]
	}
	if err := d.clearOutput(); err != nil {
		return stats, err
	}
	if _, err := corpus.WriteChunkBatches(d.opts.Dst, OutputPrefix, kept, d.opts.BatchSize); err != nil {
		return stats, err
	}
	stats.Kept = len(kept)
	stats.Removed = len(records) - len(kept)
	stats.Clusters = len(clustering.Clusters())
	stats.Merges = clustering.Merges()
	d.logger.Info("chunk dedup finished", zap.Int("chunks", stats.Chunks), zap.Int("kept", stats.Kept),
		zap.Int("removed", stats.Removed), zap.Int("merges", stats.Merges))
	return stats, nil
}

// embed returns the chunk embeddings. With a cache dir, complete matrices
// are cached under a name derived from the chunk texts.
func (d *EmbeddingDeduper) embed(ctx context.Context, records []corpus.ChunkRecord) (*vector.Matrix, embedding.Stats, error) {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.PageContent
	}
	digest := embedding.Digest(texts)
	var path string
	if d.opts.CacheDir != "" {
		path = filepath.Join(d.opts.CacheDir, fmt.Sprintf("chunks-%016x%s", digest, embedding.MatrixExt))
		m, err := vector.ReadMatrixFile(path)
		switch {
		case err == nil && m.Source == digest && m.Len() == len(records):
			d.logger.Info("loaded cached chunk embeddings", zap.String("path", path))
			return m, embedding.Stats{Total: m.Len(), Embedded: m.Len()}, nil
		case err == nil:
			d.logger.Warn("ignoring cached chunk embeddings", zap.Int("rows", m.Len()), zap.Int("chunks", len(records)))
		case !errors.Is(err, os.ErrNotExist):
			return nil, embedding.Stats{}, err
		}
	}
	b := d.opts.Batch
	b.Logger = d.logger
	if b.Label == "" {
		b.Label = "chunks"
	}
	m, stats, err := embedding.Embed(ctx, d.opts.Encoder, texts, b)
	if err != nil {
		return nil, stats, err
	}
	if path != "" && stats.Missing() == 0 {
		if err := vector.WriteMatrixFile(path, m); err != nil {
			return nil, stats, fmt.Errorf("dedup: cache embeddings: %w", err)
		}
	}
	return m, stats, nil
}

func (d *EmbeddingDeduper) clearOutput() error {
	stale, err := corpus.Discover(d.opts.Dst, OutputPrefix+"_*.json")
	if err != nil {
		return err
	}
	for _, name := range stale {
		if err := os.Remove(filepath.Join(d.opts.Dst, name)); err != nil {
			return fmt.Errorf("dedup: remove %s: %w", name, err)
		}
	}
	return nil
}
