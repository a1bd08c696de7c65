package retrieval

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/index/bruteforce"
	"github.com/viant/corpusdedup/vector"
)

// DefaultTopK is the result list length.
const DefaultTopK = 10

// ErrUnknownModel is returned by Retrieve for a model never registered.
var ErrUnknownModel = errors.New("retrieval: unknown model")

// Hit is one ranked corpus position.
type Hit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Result holds both ranked lists of one query.
type Result struct {
	Exact []Hit `json:"exact"`
	ANN   []Hit `json:"ann"`
	// Skipped marks a query without an embedding.
	Skipped bool `json:"skipped,omitempty"`
}

// Recall is RecallAtK(r.Exact, r.ANN).
func (r Result) Recall() float64 { return RecallAtK(r.Exact, r.ANN) }

// Results holds one Result per query, in query order.
type Results struct {
	Model   string
	Queries []Result
	// Skipped counts queries with a zero vector; their lists are empty.
	Skipped int
}

// MeanRecall averages recall over queries that have an exact list.
func (r *Results) MeanRecall() float64 {
	sum, n := 0.0, 0
	for _, q := range r.Queries {
		if len(q.Exact) == 0 {
			continue
		}
		sum += q.Recall()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type entry struct {
	exact *bruteforce.Index
	ann   index.Index
}

// Retriever serves exact and approximate search for registered models over
// one corpus. It is safe for concurrent use.
type Retriever struct {
	mu     sync.RWMutex
	corpus []string
	topK   int
	models map[string]*entry
	logger *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a retriever over corpus passages returning topK hits per list.
func New(corpus []string, topK int, opts ...Option) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	r := &Retriever{corpus: corpus, topK: topK, models: map[string]*entry{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopK returns the list length.
func (r *Retriever) TopK() int { return r.topK }

// Passage returns the text at corpus position i.
func (r *Retriever) Passage(i int) string {
	if i < 0 || i >= len(r.corpus) {
		return ""
	}
	return r.corpus[i]
}

// Passages maps hits to their texts.
func (r *Retriever) Passages(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = r.Passage(h.Index)
	}
	return out
}

// Register attaches a model's corpus embeddings and ANN index. Row i of m
// must be corpus passage i; zero rows (failed embeddings) are excluded
// from exact search, as they are from the ANN index.
func (r *Retriever) Register(model string, m *vector.Matrix, ann index.Index) error {
	if m.Len() != len(r.corpus) {
		return fmt.Errorf("retrieval: %s: %d embeddings for %d passages", model, m.Len(), len(r.corpus))
	}
	if ann == nil {
		return fmt.Errorf("retrieval: %s: ANN index is required", model)
	}
	exact := bruteforce.New(bruteforce.WithMetric(bruteforce.InnerProduct))
	var keys []int64
	var rows [][]float32
	for i := 0; i < m.Len(); i++ {
		row := m.Row(i)
		if vector.Magnitude(row) == 0 {
			continue
		}
		keys = append(keys, int64(i))
		rows = append(rows, row)
	}
	if len(keys) > 0 {
		if err := exact.Add(keys, rows); err != nil {
			return fmt.Errorf("retrieval: %s: %w", model, err)
		}
	}
	if missing := m.Len() - len(keys); missing > 0 {
		r.logger.Warn("passages without embeddings are not retrievable", zap.String("model", model), zap.Int("passages", missing))
	}
	r.mu.Lock()
	r.models[model] = &entry{exact: exact, ann: ann}
	r.mu.Unlock()
	return nil
}

// Retrieve ranks the corpus for each query row with both the exact scan
// and the ANN index. Each list holds min(topK, indexed passages) hits by
// descending score; exact ties go to the lower corpus position.
func (r *Retriever) Retrieve(model string, queries *vector.Matrix) (*Results, error) {
	r.mu.RLock()
	e, ok := r.models[model]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if e.exact.Len() > 0 && queries.Len() > 0 && queries.Dim != e.exact.Dim() {
		return nil, fmt.Errorf("retrieval: %s: %w: queries %d, corpus %d", model, index.ErrDimMismatch, queries.Dim, e.exact.Dim())
	}
	out := &Results{Model: model, Queries: make([]Result, queries.Len())}
	for i := range out.Queries {
		q := queries.Row(i)
		if vector.Magnitude(q) == 0 {
			out.Skipped++
			out.Queries[i].Skipped = true
			continue
		}
		exact, err := search(e.exact, q, r.topK)
		if err != nil {
			return nil, fmt.Errorf("retrieval: %s exact query %d: %w", model, i, err)
		}
		ann, err := search(e.ann, q, r.topK)
		if err != nil {
			return nil, fmt.Errorf("retrieval: %s ann query %d: %w", model, i, err)
		}
		out.Queries[i] = Result{Exact: exact, ANN: ann}
	}
	if out.Skipped > 0 {
		r.logger.Warn("skipped queries without embeddings", zap.String("model", model), zap.Int("queries", out.Skipped))
	}
	return out, nil
}

func search(idx index.Index, q []float32, k int) ([]Hit, error) {
	if idx.Len() == 0 {
		return []Hit{}, nil
	}
	keys, scores, err := idx.Search(q, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(keys))
	for i, key := range keys {
		hits[i] = Hit{Index: int(key), Score: scores[i]}
	}
	return hits, nil
}

// RecallAtK is the fraction of exact hits that the approximate list also
// contains. An empty exact list has nothing to miss and scores 1.
func RecallAtK(exact, approx []Hit) float64 {
	if len(exact) == 0 {
		return 1
	}
	found := make(map[int]struct{}, len(approx))
	for _, h := range approx {
		found[h.Index] = struct{}{}
	}
	n := 0
	for _, h := range exact {
		if _, ok := found[h.Index]; ok {
			n++
		}
	}
	return float64(n) / float64(len(exact))
}
