package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.MinHash.Threshold)
	assert.Equal(t, 128, cfg.MinHash.NumPerm)
	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, 16, cfg.ANN.Connectivity)
	assert.Equal(t, 1000, cfg.EmbeddingDedup.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold zero", func(c *Config) { c.MinHash.Threshold = 0 }},
		{"threshold above one", func(c *Config) { c.EmbeddingDedup.Threshold = 1.2 }},
		{"num perm", func(c *Config) { c.MinHash.NumPerm = 1 }},
		{"k", func(c *Config) { c.EmbeddingDedup.K = 0 }},
		{"ann kind", func(c *Config) { c.ANN.Kind = "faiss" }},
		{"top k", func(c *Config) { c.TopK = 0 }},
		{"no models", func(c *Config) { c.Models = nil }},
		{"hash dim", func(c *Config) { c.Models = map[string]Model{"hash-256": {Backend: BackendHash}} }},
		{"unknown backend", func(c *Config) { c.Models["x"] = Model{Backend: "torch"} }},
		{"share unknown", func(c *Config) { c.Models["x"] = Model{Backend: BackendHash, Dim: 4, ShareEmbeddingsWith: "nope"} }},
		{"dedup model", func(c *Config) { c.EmbeddingDedup.Model = "missing" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Models = map[string]Model{"hash-256": {Backend: BackendHash, Dim: 256}}
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yml := `
base_dir: /data/bench
minhash:
  threshold: 0.9
ann:
  kind: cover
models:
  org/model:
    backend: openai
    base_url: http://localhost:8080/v1
    pool: last
  org/twin:
    backend: openai
    share_embeddings_with: org/model
embedding_dedup:
  model: org/model
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv(EnvSeed, "7")
	t.Setenv(EnvBaseDir, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/bench", cfg.BaseDir)
	assert.Equal(t, 0.9, cfg.MinHash.Threshold)
	assert.Equal(t, 128, cfg.MinHash.NumPerm, "unspecified fields keep defaults")
	assert.Equal(t, ANNCover, cfg.ANN.Kind)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, []string{"org/model", "org/twin"}, cfg.ModelNames(), "models replace defaults")
	assert.Equal(t, "last", cfg.Models["org/model"].Pool)
	assert.Equal(t, filepath.Join("/data/bench", "label_pools"), cfg.Paths().LabelPools)

	t.Setenv(EnvBaseDir, "/override")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/override", cfg.BaseDir)

	t.Setenv(EnvSeed, "abc")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvBaseDir, "")
	t.Setenv(EnvSeed, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().TopK, cfg.TopK)
}

func TestConfig_Encoder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models["remote"] = Model{Backend: BackendOpenAI, BaseURL: "http://127.0.0.1:1/v1", Pool: "mean"}

	enc, err := cfg.Encoder("hash-256")
	require.NoError(t, err)
	assert.Equal(t, 256, enc.Dim())

	_, err = cfg.Encoder("remote")
	require.NoError(t, err)

	_, err = cfg.Encoder("missing")
	assert.Error(t, err)

	b := cfg.QueryBatch("remote")
	assert.Equal(t, 512, b.Options.MaxTokens)
	assert.Equal(t, "mean", b.Options.Pool)
	assert.Equal(t, 256, cfg.CorpusBatch("remote").Options.MaxTokens)
}
