// Package config holds the pipeline configuration: thresholds, batch sizes,
// index parameters, embedding models and the directory layout derived from
// one base directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvBaseDir = "CORPUSDEDUP_BASE_DIR"
	EnvSeed    = "CORPUSDEDUP_SEED"
)

// Embedding backends.
const (
	BackendHash   = "hash"
	BackendOpenAI = "openai"
)

// ANN index kinds.
const (
	ANNHNSW       = "hnsw"
	ANNCover      = "cover"
	ANNBruteForce = "bruteforce"
)

// MinHash configures document-level deduplication.
type MinHash struct {
	// Threshold is the Jaccard similarity at which a document is a
	// near-duplicate. Default: 0.8
	Threshold float64 `yaml:"threshold"`
	// NumPerm is the signature length. Default: 128
	NumPerm int `yaml:"num_perm"`
	// ShingleSize is the token window. Default: 3
	ShingleSize int `yaml:"shingle_size"`
	// Seed fixes the permutation coefficients. Default: 1
	Seed int64 `yaml:"seed"`
	// Shuffle processes documents in seeded random order instead of sorted
	// path order. Which member of a duplicate group survives depends on the
	// order. Default: false
	Shuffle bool `yaml:"shuffle"`
}

// EmbeddingDedup configures chunk-level deduplication.
type EmbeddingDedup struct {
	// Threshold is the cosine similarity at which two chunks merge.
	// Default: 0.8
	Threshold float64 `yaml:"threshold"`
	// K is the neighbour count searched per chunk. Default: 10
	K int `yaml:"k"`
	// BatchSize is the index/search batch and the max records per output
	// file. Default: 1000
	BatchSize int `yaml:"batch_size"`
	// Model names the entry in Models used to embed chunks.
	Model string `yaml:"model"`
}

// Embedding configures encoder calls.
type Embedding struct {
	// BatchSize is texts per encoder call. Default: 32
	BatchSize int `yaml:"batch_size"`
	// MaxTokens truncates corpus passages. Default: 256
	MaxTokens int `yaml:"max_tokens"`
	// QueryMaxTokens truncates queries. Default: 512
	QueryMaxTokens int `yaml:"query_max_tokens"`
}

// ANN configures the approximate index built per model.
type ANN struct {
	// Kind is hnsw, cover or bruteforce. Default: hnsw
	Kind string `yaml:"kind"`
	// Connectivity is the HNSW link budget. Default: 16
	Connectivity int `yaml:"connectivity"`
	// ExpansionAdd is the HNSW build candidate list. Default: 128
	ExpansionAdd int `yaml:"expansion_add"`
	// ExpansionSearch is the HNSW search candidate list. Default: 64
	ExpansionSearch int `yaml:"expansion_search"`
	// CoverBase is the cover tree level base. Default: 1.3
	CoverBase float64 `yaml:"cover_base"`
}

// Model configures one embedding model.
type Model struct {
	// Backend is hash or openai.
	Backend string `yaml:"backend"`
	// Dim is the expected embedding dimension (required for hash).
	Dim int `yaml:"dim"`
	// Pool is the pooling hint (cls, last, mean).
	Pool string `yaml:"pool"`
	// UseEncode asks for the model's native encode path.
	UseEncode bool `yaml:"use_encode"`
	// BaseURL targets an OpenAI-compatible server.
	BaseURL string `yaml:"base_url"`
	// ShareEmbeddingsWith reuses another model's corpus embeddings.
	ShareEmbeddingsWith string `yaml:"share_embeddings_with"`
}

// Config is the full pipeline configuration.
type Config struct {
	BaseDir        string            `yaml:"base_dir"`
	Seed           int64             `yaml:"seed"`
	MinHash        MinHash           `yaml:"minhash"`
	EmbeddingDedup EmbeddingDedup    `yaml:"embedding_dedup"`
	Embedding      Embedding         `yaml:"embedding"`
	ANN            ANN               `yaml:"ann"`
	TopK           int               `yaml:"top_k"`
	Parallelism    int               `yaml:"parallelism"`
	Models         map[string]Model  `yaml:"models"`
	TaskPrefixes   map[string]string `yaml:"task_prefixes"`
}

// DefaultConfig returns the default configuration with a single offline
// hashing model.
func DefaultConfig() Config {
	return Config{
		BaseDir: ".",
		Seed:    42,
		MinHash: MinHash{Threshold: 0.8, NumPerm: 128, ShingleSize: 3, Seed: 1},
		EmbeddingDedup: EmbeddingDedup{
			Threshold: 0.8,
			K:         10,
			BatchSize: 1000,
			Model:     "hash-256",
		},
		Embedding: Embedding{BatchSize: 32, MaxTokens: 256, QueryMaxTokens: 512},
		ANN: ANN{
			Kind:            ANNHNSW,
			Connectivity:    16,
			ExpansionAdd:    128,
			ExpansionSearch: 64,
			CoverBase:       1.3,
		},
		TopK:        10,
		Parallelism: 4,
		Models: map[string]Model{
			"hash-256": {Backend: BackendHash, Dim: 256},
		},
		TaskPrefixes: map[string]string{
			"FactCheck": "Given the claim, retrieve the most relevant document that supports or refutes it",
			"NLI":       "Given the premise, retrieve the most relevant entailed hypothesis",
			"QA":        "Given the question, retrieve the most relevant passage answering it",
			"QAdoc":     "Given the question, retrieve the most relevant document answering it",
			"STS":       "Given the sentence, retrieve a semantically equivalent sentence",
			"Twitter":   "Given the user query, retrieve the most relevant Twitter text",
		},
	}
}

// Load reads .env (if present), applies the YAML file at path (if not
// empty) over the defaults, then environment overrides, and validates.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over cfg. A models map in the document replaces the
// default models instead of merging with them.
func Parse(data []byte, cfg *Config) error {
	var probe struct {
		Models map[string]Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Models != nil {
		cfg.Models = nil
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseDir); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", EnvSeed, err)
		}
		c.Seed = seed
	}
	return nil
}

// Validate checks value ranges and model references.
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return errors.New("base_dir is required")
	}
	if c.MinHash.Threshold <= 0 || c.MinHash.Threshold > 1 {
		return fmt.Errorf("minhash.threshold must be in (0, 1] (got %.2f)", c.MinHash.Threshold)
	}
	if c.MinHash.NumPerm < 2 || c.MinHash.NumPerm > 1024 {
		return fmt.Errorf("minhash.num_perm must be between 2 and 1024 (got %d)", c.MinHash.NumPerm)
	}
	if c.MinHash.ShingleSize <= 0 {
		return fmt.Errorf("minhash.shingle_size must be positive (got %d)", c.MinHash.ShingleSize)
	}
	if c.EmbeddingDedup.Threshold <= 0 || c.EmbeddingDedup.Threshold > 1 {
		return fmt.Errorf("embedding_dedup.threshold must be in (0, 1] (got %.2f)", c.EmbeddingDedup.Threshold)
	}
	if c.EmbeddingDedup.K <= 0 {
		return fmt.Errorf("embedding_dedup.k must be positive (got %d)", c.EmbeddingDedup.K)
	}
	if c.EmbeddingDedup.BatchSize <= 0 {
		return fmt.Errorf("embedding_dedup.batch_size must be positive (got %d)", c.EmbeddingDedup.BatchSize)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive (got %d)", c.Embedding.BatchSize)
	}
	if c.Embedding.MaxTokens <= 0 || c.Embedding.QueryMaxTokens <= 0 {
		return fmt.Errorf("embedding max tokens must be positive (got %d, %d)", c.Embedding.MaxTokens, c.Embedding.QueryMaxTokens)
	}
	switch c.ANN.Kind {
	case ANNHNSW, ANNCover, ANNBruteForce:
	default:
		return fmt.Errorf("ann.kind must be one of hnsw, cover, bruteforce (got %q)", c.ANN.Kind)
	}
	if c.ANN.Connectivity < 2 {
		return fmt.Errorf("ann.connectivity must be at least 2 (got %d)", c.ANN.Connectivity)
	}
	if c.ANN.ExpansionAdd <= 0 || c.ANN.ExpansionSearch <= 0 {
		return fmt.Errorf("ann expansions must be positive (got %d, %d)", c.ANN.ExpansionAdd, c.ANN.ExpansionSearch)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive (got %d)", c.TopK)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive (got %d)", c.Parallelism)
	}
	if len(c.Models) == 0 {
		return errors.New("at least one model is required")
	}
	for name, m := range c.Models {
		switch m.Backend {
		case BackendHash:
			if m.Dim <= 0 {
				return fmt.Errorf("models.%s: hash backend needs a positive dim", name)
			}
		case BackendOpenAI:
		default:
			return fmt.Errorf("models.%s: unknown backend %q", name, m.Backend)
		}
		if src := m.ShareEmbeddingsWith; src != "" {
			owner, ok := c.Models[src]
			if !ok {
				return fmt.Errorf("models.%s: share_embeddings_with names unknown model %q", name, src)
			}
			if owner.ShareEmbeddingsWith != "" {
				return fmt.Errorf("models.%s: %q shares embeddings itself; chains are not allowed", name, src)
			}
		}
	}
	if _, ok := c.Models[c.EmbeddingDedup.Model]; !ok {
		return fmt.Errorf("embedding_dedup.model %q is not configured", c.EmbeddingDedup.Model)
	}
	return nil
}

// ModelNames returns the configured model ids, sorted.
func (c Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
