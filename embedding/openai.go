package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEncoder calls an OpenAI-compatible /embeddings endpoint. BaseURL
// lets it target self-hosted servers exposing the same API.
type OpenAIEncoder struct {
	client *openai.Client
	model  string
	dim    int
}

// OpenAIConfig configures NewOpenAIEncoder.
type OpenAIConfig struct {
	Model   string
	BaseURL string
	// APIKey defaults to $OPENAI_API_KEY.
	APIKey string
	// Dim is the expected output dimension, 0 when unknown.
	Dim int
}

// NewOpenAIEncoder creates an encoder for cfg.Model.
func NewOpenAIEncoder(cfg OpenAIConfig) (*OpenAIEncoder, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" && cfg.BaseURL == "" {
		return nil, errors.New("embedding: OPENAI_API_KEY environment variable not set")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding: model is required")
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEncoder{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model, dim: cfg.Dim}, nil
}

// Dim implements Encoder.
func (e *OpenAIEncoder) Dim() int { return e.dim }

// Encode implements Encoder. Truncation and pooling are the server's
// business; MaxTokens, Pool and UseEncode are not sent.
func (e *OpenAIEncoder) Encode(ctx context.Context, texts []string, _ Options) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBatchFailed, e.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %s: %d embeddings for %d inputs", ErrBatchFailed, e.model, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: %s: embedding index %d out of range", ErrBatchFailed, e.model, d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			v[i] = float32(f)
		}
		out[d.Index] = v
	}
	return out, nil
}
