package main

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/config"
	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/embedding"
	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/index/bruteforce"
	"github.com/viant/corpusdedup/index/cover"
	"github.com/viant/corpusdedup/index/hnsw"
	"github.com/viant/corpusdedup/indexer"
)

// annFactory returns the configured ANN backend constructor.
func annFactory(c config.Config) func() index.Index {
	switch c.ANN.Kind {
	case config.ANNCover:
		return func() index.Index { return cover.New(c.ANN.CoverBase) }
	case config.ANNBruteForce:
		return func() index.Index { return bruteforce.New() }
	}
	hc := hnsw.Config{
		Connectivity:    c.ANN.Connectivity,
		ExpansionAdd:    c.ANN.ExpansionAdd,
		ExpansionSearch: c.ANN.ExpansionSearch,
		Seed:            c.Seed,
	}
	return func() index.Index { return hnsw.New(hc) }
}

// selectModels returns only when it names configured models, else all.
func selectModels(c config.Config, only []string) []string {
	if len(only) == 0 {
		return c.ModelNames()
	}
	for _, name := range only {
		if _, found := c.Models[name]; !found {
			fail("unknown model %q", name)
		}
	}
	return only
}

func newIndexer(c config.Config, models []string) (*indexer.Builder, error) {
	wanted := map[string]indexer.Model{}
	add := func(name string) error {
		m := c.Models[name]
		entry := indexer.Model{ShareEmbeddingsWith: m.ShareEmbeddingsWith}
		if m.ShareEmbeddingsWith == "" {
			enc, err := c.Encoder(name)
			if err != nil {
				return err
			}
			entry.Encoder, entry.Batch = enc, c.CorpusBatch(name)
		}
		wanted[name] = entry
		return nil
	}
	for _, name := range models {
		if err := add(name); err != nil {
			return nil, err
		}
		if src := c.Models[name].ShareEmbeddingsWith; src != "" {
			if _, done := wanted[src]; !done {
				if err := add(src); err != nil {
					return nil, err
				}
			}
		}
	}
	return indexer.New(indexer.Options{
		Dir:      c.Paths().BaselineIndexes,
		Models:   wanted,
		NewIndex: annFactory(c),
		Logger:   logger,
	})
}

// corpusManager flattens src (the deduplicated chunks by default) into the
// ordered corpus file.
func corpusManager(c config.Config, src string) *corpus.Manager {
	if src == "" {
		src = c.Paths().ChunksDeduped
	}
	return &corpus.Manager{
		Dir:    src,
		Out:    filepath.Join(c.Paths().Corpus, corpus.OrderedCorpusFile),
		Logger: logger,
	}
}

func loadCorpus(c config.Config) ([]string, error) {
	return corpusManager(c, "").LoadOrBuild()
}

func loadQueryFiles(c config.Config) ([]*corpus.QueryFile, error) {
	dir := c.Paths().TestQueries
	names, err := corpus.Discover(dir, corpus.JSONPattern)
	if err != nil {
		return nil, err
	}
	var files []*corpus.QueryFile
	for _, name := range names {
		qf, err := corpus.LoadQueryFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("skipping query file", zap.String("file", name), zap.Error(err))
			continue
		}
		files = append(files, qf)
	}
	return files, nil
}

func queryEmbedder(c config.Config) *embedding.QueryEmbedder {
	return &embedding.QueryEmbedder{
		Dir:      c.Paths().QueryEmbeddings,
		Prefixes: c.TaskPrefixes,
		Logger:   logger,
	}
}

// embedQueries makes sure every (model, query file) pair has cached query
// embeddings and reports how many were computed now.
func embedQueries(ctx context.Context, c config.Config, models []string, files []*corpus.QueryFile) (int, error) {
	qe := queryEmbedder(c)
	computed := 0
	for _, model := range models {
		enc, err := c.Encoder(model)
		if err != nil {
			return computed, err
		}
		qe.Batch = c.QueryBatch(model)
		for _, qf := range files {
			_, cached, err := qe.EmbedFile(ctx, model, enc, qf)
			if err != nil {
				return computed, err
			}
			if !cached {
				computed++
			}
		}
	}
	return computed, nil
}
