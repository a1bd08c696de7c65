package embedding

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/viant/corpusdedup/vector"
)

// DefaultBatchSize is the number of texts per encoder call.
const DefaultBatchSize = 32

// Stats counts the outcome of an Embed run.
type Stats struct {
	Total         int
	Embedded      int
	FailedBatches int
}

// Missing returns how many inputs have no embedding.
func (s Stats) Missing() int { return s.Total - s.Embedded }

// Digest identifies an ordered list of texts. Embed stamps it on the matrix
// it returns so caches can tell which inputs their rows belong to.
func Digest(texts []string) uint64 {
	d := xxhash.New()
	for _, t := range texts {
		_, _ = d.WriteString(t)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Batch configures Embed.
type Batch struct {
	Size    int
	Options Options
	Logger  *zap.Logger
	// Label names the run in log lines.
	Label string
}

// Embed encodes texts in batches of b.Size. A batch the encoder rejects, or
// answers with the wrong shape, is logged and skipped; its rows stay zero so
// row i still belongs to texts[i]. Every embedded row is L2-normalised. A
// count mismatch is logged at Warn. An error is returned only when ctx is
// done or no batch at all could be embedded.
func Embed(ctx context.Context, enc Encoder, texts []string, b Batch) (*vector.Matrix, Stats, error) {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := b.Size
	if size <= 0 {
		size = DefaultBatchSize
	}
	stats := Stats{Total: len(texts)}
	rows := make([][]float32, len(texts))
	dim := enc.Dim()
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		end := min(start+size, len(texts))
		out, err := enc.Encode(ctx, texts[start:end], b.Options)
		if err == nil {
			err = checkShape(out, end-start, &dim)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, stats, ctxErr
			}
			stats.FailedBatches++
			logger.Warn("skipping embedding batch", zap.String("run", b.Label),
				zap.Int("start", start), zap.Int("end", end), zap.Error(err))
			continue
		}
		for i, v := range out {
			vector.Normalize(v)
			rows[start+i] = v
		}
		stats.Embedded += end - start
	}
	if stats.Missing() > 0 {
		logger.Warn("embedded count mismatch", zap.String("run", b.Label),
			zap.Int("embedded", stats.Embedded), zap.Int("total", stats.Total))
	}
	if len(texts) > 0 && stats.Embedded == 0 {
		return nil, stats, fmt.Errorf("%w: %s: none of %d texts embedded", ErrBatchFailed, b.Label, len(texts))
	}
	m := &vector.Matrix{Dim: dim, Data: make([]float32, len(texts)*dim), Source: Digest(texts)}
	for i, v := range rows {
		if v != nil {
			copy(m.Row(i), v)
		}
	}
	return m, stats, nil
}

// checkShape validates a batch answer and fixes *dim on the first valid one.
func checkShape(out [][]float32, want int, dim *int) error {
	if len(out) != want {
		return fmt.Errorf("%w: %d vectors for %d texts", ErrBatchFailed, len(out), want)
	}
	d := *dim
	for i, v := range out {
		if d == 0 {
			d = len(v)
		}
		if len(v) == 0 || len(v) != d {
			return fmt.Errorf("%w: vector %d has dim %d, want %d", ErrBatchFailed, i, len(v), d)
		}
	}
	*dim = d
	return nil
}
