package embedding

import (
	"context"
	"errors"
)

// ErrBatchFailed marks a batch the encoder could not embed.
var ErrBatchFailed = errors.New("embedding: batch failed")

// Pooling strategies an encoder may honour.
const (
	PoolCLS  = "cls"
	PoolLast = "last"
	PoolMean = "mean"
)

// Options are passed through to the encoder on every batch.
type Options struct {
	// MaxTokens truncates each input.
	MaxTokens int
	// Pool selects the token pooling strategy for encoders that pool.
	Pool string
	// UseEncode asks the encoder for its native sentence encode path.
	UseEncode bool
}

// Encoder turns texts into vectors, one per input, all of one dimension.
type Encoder interface {
	Encode(ctx context.Context, texts []string, opts Options) ([][]float32, error)
	// Dim returns the output dimension, or 0 when only known after the
	// first call.
	Dim() int
}

// EncoderFunc adapts a function to Encoder with an unknown dimension.
type EncoderFunc func(ctx context.Context, texts []string, opts Options) ([][]float32, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, texts []string, opts Options) ([][]float32, error) {
	return f(ctx, texts, opts)
}

// Dim implements Encoder.
func (f EncoderFunc) Dim() int { return 0 }
