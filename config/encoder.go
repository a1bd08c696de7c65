package config

import (
	"fmt"

	"github.com/viant/corpusdedup/embedding"
)

// Encoder builds the encoder configured for model.
func (c Config) Encoder(model string) (embedding.Encoder, error) {
	m, ok := c.Models[model]
	if !ok {
		return nil, fmt.Errorf("config: unknown model %q", model)
	}
	switch m.Backend {
	case BackendHash:
		return embedding.NewHashEncoder(m.Dim), nil
	case BackendOpenAI:
		return embedding.NewOpenAIEncoder(embedding.OpenAIConfig{Model: model, BaseURL: m.BaseURL, Dim: m.Dim})
	}
	return nil, fmt.Errorf("config: model %q: unknown backend %q", model, m.Backend)
}

// CorpusBatch returns the batching used to embed corpus passages with model.
func (c Config) CorpusBatch(model string) embedding.Batch {
	m := c.Models[model]
	return embedding.Batch{
		Size:    c.Embedding.BatchSize,
		Options: embedding.Options{MaxTokens: c.Embedding.MaxTokens, Pool: m.Pool, UseEncode: m.UseEncode},
		Label:   model,
	}
}

// QueryBatch returns the batching used to embed queries with model.
func (c Config) QueryBatch(model string) embedding.Batch {
	b := c.CorpusBatch(model)
	b.Options.MaxTokens = c.Embedding.QueryMaxTokens
	return b
}
