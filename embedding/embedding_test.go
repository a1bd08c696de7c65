package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/vector"
)

func norm(v []float32) float64 { return math.Sqrt(vector.Dot(v, v)) }

func TestEmbed_SkipsFailedBatches(t *testing.T) {
	enc := EncoderFunc(func(_ context.Context, texts []string, _ Options) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, s := range texts {
			if s == "bad" {
				return nil, errors.New("backend exploded")
			}
			out[i] = []float32{float32(len(s)), 1}
		}
		return out, nil
	})
	texts := []string{"a", "bb", "bad", "ccc", "dddd"}
	m, stats, err := Embed(context.Background(), enc, texts, Batch{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Embedded: 3, FailedBatches: 1}, stats)
	assert.Equal(t, 2, stats.Missing())
	require.Equal(t, 5, m.Len())

	for _, i := range []int{0, 1, 4} {
		assert.InDelta(t, 1.0, norm(m.Row(i)), 1e-6, "row %d", i)
	}
	assert.Zero(t, norm(m.Row(2)))
	assert.Zero(t, norm(m.Row(3)))
}

func TestEmbed_WrongShapeIsBatchFailure(t *testing.T) {
	enc := EncoderFunc(func(_ context.Context, texts []string, _ Options) ([][]float32, error) {
		return [][]float32{{1}}, nil
	})
	_, stats, err := Embed(context.Background(), enc, []string{"x", "y"}, Batch{Size: 2})
	assert.ErrorIs(t, err, ErrBatchFailed)
	assert.Equal(t, 1, stats.FailedBatches)
}

func TestEmbed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Embed(ctx, NewHashEncoder(8), []string{"x"}, Batch{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashEncoder(t *testing.T) {
	enc := NewHashEncoder(128)
	out, err := enc.Encode(context.Background(), []string{
		"flood waters rose across the river valley",
		"Flood waters rose across the river valley!",
		"quarterly earnings beat analyst expectations",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, out[0], out[1])
	for _, v := range out {
		vector.Normalize(v)
	}
	assert.Greater(t, vector.Dot(out[0], out[1]), vector.Dot(out[0], out[2]))

	short, err := enc.Encode(context.Background(), []string{"one two three"}, Options{MaxTokens: 1})
	require.NoError(t, err)
	one, _ := enc.Encode(context.Background(), []string{"one"}, Options{})
	assert.Equal(t, one[0], short[0])
}

func TestOpenAIEncoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		// answer out of order to check index placement
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	enc, err := NewOpenAIEncoder(OpenAIConfig{Model: "test-model", BaseURL: srv.URL + "/v1", APIKey: "k", Dim: 2})
	require.NoError(t, err)
	out, err := enc.Encode(context.Background(), []string{"a", "b", "c"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, out)
	assert.Equal(t, 2, enc.Dim())
}

func TestNewOpenAIEncoder_Validation(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIEncoder(OpenAIConfig{Model: "m"})
	assert.Error(t, err)
	_, err = NewOpenAIEncoder(OpenAIConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestQueryEmbedder_CachesPerModelAndStem(t *testing.T) {
	dir := t.TempDir()
	qpath := filepath.Join(dir, "QA_floods.json")
	require.NoError(t, os.WriteFile(qpath, []byte(`[{"user_query":"where did it flood"},{"user_query":"how deep"}]`), 0o644))
	qf, err := corpus.LoadQueryFile(qpath)
	require.NoError(t, err)

	var seen []string
	hash := NewHashEncoder(16)
	enc := EncoderFunc(func(ctx context.Context, texts []string, opts Options) ([][]float32, error) {
		seen = append(seen, texts...)
		return hash.Encode(ctx, texts, opts)
	})
	qe := &QueryEmbedder{Dir: filepath.Join(dir, "qemb"), Prefixes: map[string]string{"QA": "Given the question"}}

	m, cached, err := qe.EmbedFile(context.Background(), "org/model", enc, qf)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "Instruct: Given the question\nQuery: where did it flood", seen[0])
	assert.FileExists(t, filepath.Join(dir, "qemb", "org_model", "QA_floods.mat"))

	again, cached, err := qe.EmbedFile(context.Background(), "org/model", enc, qf)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, m.Data, again.Data)
	assert.Len(t, seen, 2, "cache hit must not call the encoder")

	qf.Queries = append(qf.Queries, "who was evacuated")
	grown, cached, err := qe.EmbedFile(context.Background(), "org/model", enc, qf)
	require.NoError(t, err)
	assert.False(t, cached, "edited query file is embedded again")
	assert.Equal(t, 3, grown.Len())

	_, err = qe.Load("other/model", "QA_floods")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
