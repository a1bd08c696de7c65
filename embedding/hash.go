package embedding

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/viant/corpusdedup/minhash"
)

// HashEncoder is a deterministic bag-of-words encoder: every normalised word
// (and word bigram) adds a signed unit to the bucket its xxhash selects. It
// needs no model and is meant for tests and offline dry runs.
type HashEncoder struct {
	dim int
}

// NewHashEncoder returns a HashEncoder with dim buckets.
func NewHashEncoder(dim int) *HashEncoder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEncoder{dim: dim}
}

// Dim implements Encoder.
func (h *HashEncoder) Dim() int { return h.dim }

// Encode implements Encoder. MaxTokens truncates the word list.
func (h *HashEncoder) Encode(ctx context.Context, texts []string, opts Options) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		words := strings.Fields(minhash.Normalize(text))
		if opts.MaxTokens > 0 && len(words) > opts.MaxTokens {
			words = words[:opts.MaxTokens]
		}
		v := make([]float32, h.dim)
		for j, w := range words {
			h.add(v, w)
			if j > 0 {
				h.add(v, words[j-1]+" "+w)
			}
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEncoder) add(v []float32, feature string) {
	sum := xxhash.Sum64String(feature)
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	v[sum%uint64(h.dim)] += sign
}
