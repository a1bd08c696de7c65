package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/vector"
)

// MatrixExt is the file extension of cached embedding matrices.
const MatrixExt = ".mat"

// Slug turns a model id such as "BAAI/bge-base-en-v1.5" into a file name
// component.
func Slug(model string) string { return strings.ReplaceAll(model, "/", "_") }

// Instruction formats a query with the instruction prefix of its task.
func Instruction(prefix, query string) string {
	return "Instruct: " + prefix + "\nQuery: " + query
}

// QueryEmbedder embeds query files per model and caches one matrix per
// (model, file stem) under Dir/<model slug>/<stem>.mat.
type QueryEmbedder struct {
	Dir      string
	Prefixes map[string]string
	Batch    Batch
	Logger   *zap.Logger
}

// CachePath returns the matrix path for model and stem.
func (q *QueryEmbedder) CachePath(model, stem string) string {
	return filepath.Join(q.Dir, Slug(model), stem+MatrixExt)
}

// Load returns the cached matrix; a missing cache satisfies
// errors.Is(err, os.ErrNotExist).
func (q *QueryEmbedder) Load(model, stem string) (*vector.Matrix, error) {
	return vector.ReadMatrixFile(q.CachePath(model, stem))
}

// EmbedFile returns the query embeddings of qf under model, computing and
// caching them unless a cache of the same queries already exists. cached
// reports a cache hit.
func (q *QueryEmbedder) EmbedFile(ctx context.Context, model string, enc Encoder, qf *corpus.QueryFile) (m *vector.Matrix, cached bool, err error) {
	logger := q.logger()
	path := q.CachePath(model, qf.Stem)
	prefix := q.Prefixes[qf.Task()]
	texts := make([]string, len(qf.Queries))
	for i, query := range qf.Queries {
		texts[i] = Instruction(prefix, query)
	}
	m, err = vector.ReadMatrixFile(path)
	switch {
	case err == nil && m.Source == Digest(texts):
		return m, true, nil
	case err == nil:
		logger.Warn("query embeddings are from other queries; recomputing", zap.String("model", model), zap.String("file", qf.Stem))
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, err
	}
	b := q.Batch
	b.Logger = logger
	b.Label = model + "-" + qf.Stem
	m, stats, err := Embed(ctx, enc, texts, b)
	if err != nil {
		return nil, false, err
	}
	if stats.Missing() > 0 {
		logger.Warn("query embeddings incomplete", zap.String("model", model), zap.String("file", qf.Stem),
			zap.Int("embedded", stats.Embedded), zap.Int("queries", stats.Total))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("embedding: mkdir: %w", err)
	}
	if err := vector.WriteMatrixFile(path, m); err != nil {
		return nil, false, fmt.Errorf("embedding: write %s: %w", path, err)
	}
	logger.Info("embedded queries", zap.String("model", model), zap.String("file", qf.Stem), zap.Int("queries", m.Len()))
	return m, false, nil
}

func (q *QueryEmbedder) logger() *zap.Logger {
	if q.Logger == nil {
		return zap.NewNop()
	}
	return q.Logger
}
