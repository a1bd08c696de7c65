package config

import "path/filepath"

// Paths is the directory layout under BaseDir.
type Paths struct {
	ExtractedText   string
	DedupText       string
	DupText         string
	ChunksJSON      string
	ChunksDeduped   string
	SearchCache     string
	Corpus          string
	TestQueries     string
	QueryEmbeddings string
	BaselineIndexes string
	LabelPools      string
}

// Paths derives the layout from BaseDir.
func (c Config) Paths() Paths {
	at := func(name string) string { return filepath.Join(c.BaseDir, name) }
	return Paths{
		ExtractedText:   at("extracted_txt"),
		DedupText:       at("dedup_txt"),
		DupText:         at("dup_txt"),
		ChunksJSON:      at("chunks_json"),
		ChunksDeduped:   at("chunks_deduped"),
		SearchCache:     at("search_cache"),
		Corpus:          at("corpus"),
		TestQueries:     at("test_queries"),
		QueryEmbeddings: at("query_embeddings"),
		BaselineIndexes: at("baseline_indexes"),
		LabelPools:      at("label_pools"),
	}
}
