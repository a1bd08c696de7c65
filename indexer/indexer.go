package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/embedding"
	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/index/hnsw"
	"github.com/viant/corpusdedup/store"
	"github.com/viant/corpusdedup/vector"
)

const addBatch = 1024

// Model describes how one model's corpus embeddings are produced.
type Model struct {
	Encoder embedding.Encoder
	Batch   embedding.Batch
	// ShareEmbeddingsWith names another model whose corpus embeddings are
	// reused instead of computing new ones.
	ShareEmbeddingsWith string
}

// Options configures a Builder.
type Options struct {
	// Dir holds embedding caches and index stores.
	Dir      string
	Models   map[string]Model
	NewIndex func() index.Index
	Logger   *zap.Logger
}

// Artifacts are the per-model outputs of BuildAll.
type Artifacts struct {
	Model      string
	Embeddings *vector.Matrix
	// EmbeddingsFrom is the model whose embeddings were used.
	EmbeddingsFrom string
	Index          index.Index
	// Built reports whether the index was built in this run rather than
	// restored.
	Built bool
}

// Builder embeds and indexes the corpus per model.
type Builder struct {
	opts   Options
	logger *zap.Logger
}

// New validates opts.
func New(opts Options) (*Builder, error) {
	if opts.Dir == "" {
		return nil, errors.New("indexer: dir is required")
	}
	for name, m := range opts.Models {
		if m.ShareEmbeddingsWith == "" && m.Encoder == nil {
			return nil, fmt.Errorf("indexer: model %s has no encoder", name)
		}
		if src := m.ShareEmbeddingsWith; src != "" {
			owner, ok := opts.Models[src]
			if !ok || owner.ShareEmbeddingsWith != "" {
				return nil, fmt.Errorf("indexer: model %s shares embeddings with %q which does not own any", name, src)
			}
		}
	}
	if opts.NewIndex == nil {
		opts.NewIndex = func() index.Index { return hnsw.New(hnsw.DefaultConfig()) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{opts: opts, logger: logger}, nil
}

// MatrixPath returns the embedding cache file of model.
func (b *Builder) MatrixPath(model string) string {
	return filepath.Join(b.opts.Dir, embedding.Slug(model)+".fp32"+embedding.MatrixExt)
}

// StorePath returns the index store of model.
func (b *Builder) StorePath(model string) string {
	return filepath.Join(b.opts.Dir, embedding.Slug(model)+".ann.sqlite")
}

// EmbedCorpus returns the corpus embeddings of model, loading the cache
// unless rebuild is set. A cache computed from other texts is recomputed. A
// corrupt cache is fatal. Embeddings with failed batches are returned but
// not cached, so the next run retries them.
func (b *Builder) EmbedCorpus(ctx context.Context, model string, texts []string, rebuild bool) (*vector.Matrix, error) {
	m, ok := b.opts.Models[model]
	if !ok {
		return nil, fmt.Errorf("indexer: unknown model %q", model)
	}
	if m.ShareEmbeddingsWith != "" {
		return b.EmbedCorpus(ctx, m.ShareEmbeddingsWith, texts, rebuild)
	}
	path := b.MatrixPath(model)
	digest := embedding.Digest(texts)
	if !rebuild {
		cached, err := vector.ReadMatrixFile(path)
		switch {
		case err == nil && cached.Source == digest && cached.Len() == len(texts):
			b.logger.Info("loaded corpus embeddings", zap.String("model", model), zap.Int("rows", cached.Len()))
			return cached, nil
		case err == nil:
			b.logger.Warn("corpus embeddings are from another corpus build; recomputing",
				zap.String("model", model), zap.Int("rows", cached.Len()), zap.Int("passages", len(texts)))
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("indexer: %s: %w", model, err)
		}
	}
	batch := m.Batch
	batch.Logger = b.logger
	if batch.Label == "" {
		batch.Label = model
	}
	mat, stats, err := embedding.Embed(ctx, m.Encoder, texts, batch)
	if err != nil {
		return nil, fmt.Errorf("indexer: embed %s: %w", model, err)
	}
	if stats.Missing() > 0 {
		b.logger.Warn("not caching incomplete corpus embeddings",
			zap.String("model", model), zap.Int("embedded", stats.Embedded), zap.Int("passages", stats.Total))
		return mat, nil
	}
	if err := os.MkdirAll(b.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("indexer: mkdir: %w", err)
	}
	if err := vector.WriteMatrixFile(path, mat); err != nil {
		return nil, fmt.Errorf("indexer: cache %s: %w", model, err)
	}
	b.logger.Info("embedded corpus", zap.String("model", model), zap.Int("rows", mat.Len()), zap.Int("dim", mat.Dim))
	return mat, nil
}

// BuildIndex restores the persisted index of model, or builds and persists
// one over m when none exists, rebuild is set, or the persisted one was
// built over other embeddings. Keys are row positions; zero rows are
// skipped.
func (b *Builder) BuildIndex(ctx context.Context, model string, m *vector.Matrix, rebuild bool) (index.Index, error) {
	idx, _, err := b.buildIndex(ctx, model, m, rebuild)
	return idx, err
}

func (b *Builder) buildIndex(ctx context.Context, model string, m *vector.Matrix, rebuild bool) (index.Index, bool, error) {
	if err := os.MkdirAll(b.opts.Dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("indexer: mkdir: %w", err)
	}
	st, err := store.Open(ctx, b.StorePath(model), store.WithLogger(b.logger))
	if err != nil {
		return nil, false, err
	}
	defer st.Close()

	idx, built, err := st.Ensure(ctx, model, m.Fingerprint(), rebuild, func(ctx context.Context) (index.Index, error) {
		return b.populate(ctx, model, m)
	})
	if err != nil {
		return nil, false, err
	}
	if !built {
		b.logger.Info("restored index", zap.String("model", model), zap.Int("vectors", idx.Len()))
	}
	return idx, built, nil
}

func (b *Builder) populate(ctx context.Context, model string, m *vector.Matrix) (index.Index, error) {
	idx := b.opts.NewIndex()
	keys := make([]int64, 0, addBatch)
	rows := make([][]float32, 0, addBatch)
	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := idx.Add(keys, rows); err != nil {
			return fmt.Errorf("indexer: add to %s index: %w", model, err)
		}
		keys, rows = keys[:0], rows[:0]
		return nil
	}
	skipped := 0
	for i := 0; i < m.Len(); i++ {
		row := m.Row(i)
		if vector.Magnitude(row) == 0 {
			skipped++
			continue
		}
		keys = append(keys, int64(i))
		rows = append(rows, row)
		if len(keys) == addBatch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		b.logger.Warn("left unembedded rows out of index", zap.String("model", model), zap.Int("rows", skipped))
	}
	return idx, nil
}

// BuildAll embeds and indexes texts for every model. Models owning their
// embeddings go first so sharing models can reuse them.
func (b *Builder) BuildAll(ctx context.Context, texts []string, rebuild bool) (map[string]*Artifacts, error) {
	names := make([]string, 0, len(b.opts.Models))
	for name := range b.opts.Models {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		si, sj := b.opts.Models[names[i]].ShareEmbeddingsWith != "", b.opts.Models[names[j]].ShareEmbeddingsWith != ""
		if si != sj {
			return !si
		}
		return names[i] < names[j]
	})
	out := make(map[string]*Artifacts, len(names))
	for _, name := range names {
		art := &Artifacts{Model: name, EmbeddingsFrom: name}
		if src := b.opts.Models[name].ShareEmbeddingsWith; src != "" {
			art.EmbeddingsFrom = src
			art.Embeddings = out[src].Embeddings
			b.logger.Info("sharing corpus embeddings", zap.String("model", name), zap.String("from", src))
		} else {
			m, err := b.EmbedCorpus(ctx, name, texts, rebuild)
			if err != nil {
				return out, err
			}
			art.Embeddings = m
		}
		idx, built, err := b.buildIndex(ctx, name, art.Embeddings, rebuild)
		if err != nil {
			return out, err
		}
		art.Index, art.Built = idx, built
		out[name] = art
	}
	return out, nil
}

// Status describes the persisted index of model without restoring it. It
// returns store.ErrNotFound when none has been built.
func (b *Builder) Status(ctx context.Context, model string) (*store.Info, error) {
	if _, err := os.Stat(b.StorePath(model)); errors.Is(err, os.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	st, err := store.Open(ctx, b.StorePath(model), store.WithLogger(b.logger))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Stat(ctx, model)
}

// Drop removes the persisted index of model and, unless it shares another
// model's embeddings, its embedding cache. The next build starts over.
func (b *Builder) Drop(ctx context.Context, model string) error {
	if _, err := os.Stat(b.StorePath(model)); err == nil {
		st, err := store.Open(ctx, b.StorePath(model), store.WithLogger(b.logger))
		if err != nil {
			return err
		}
		unlock, err := st.AcquireBuildLock(ctx, model)
		if err != nil {
			st.Close()
			return err
		}
		err = st.Delete(ctx, model)
		unlock()
		st.Close()
		if err != nil {
			return err
		}
	}
	if b.opts.Models[model].ShareEmbeddingsWith != "" {
		return nil
	}
	if err := os.Remove(b.MatrixPath(model)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("indexer: drop %s embeddings: %w", model, err)
	}
	b.logger.Info("dropped index", zap.String("model", model))
	return nil
}
