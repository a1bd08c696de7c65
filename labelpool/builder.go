package labelpool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/internal/fsutil"
	"github.com/viant/corpusdedup/retrieval"
	"github.com/viant/corpusdedup/vector"
)

const (
	// OutputSuffix is appended to the query file stem.
	OutputSuffix = "_label_pool.json"
	// LockSuffix names the lock file next to an output.
	LockSuffix = ".lock"

	poolField     = "label_pool"
	baselineField = "baseline_results"
)

// ErrMismatch reports inputs that do not line up record for record.
var ErrMismatch = errors.New("labelpool: records do not match")

// QueryVectors loads the cached query embeddings of a query file.
type QueryVectors interface {
	Load(model, stem string) (*vector.Matrix, error)
}

// Options configures a Builder.
type Options struct {
	OutDir    string
	Retriever *retrieval.Retriever
	Queries   QueryVectors
	Logger    *zap.Logger
}

// Report summarises one BuildForFile call.
type Report struct {
	File    string
	Model   string
	Queries int
	Skipped int
	// Recall is the mean recall@k of the ANN list against the exact one.
	Recall float64
}

// Builder writes label pools.
type Builder struct {
	opts   Options
	logger *zap.Logger
}

// NewBuilder validates opts.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.OutDir == "" || opts.Retriever == nil || opts.Queries == nil {
		return nil, errors.New("labelpool: output dir, retriever and query vectors are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{opts: opts, logger: logger}, nil
}

// OutputPath returns the pool file of a query file stem.
func (b *Builder) OutputPath(stem string) string {
	return filepath.Join(b.opts.OutDir, stem+OutputSuffix)
}

// BuildForFile retrieves every query of qf with model and merges the
// results into the pool file. Each record gains
// baseline_results.<model>_exact and <model>_ann (set once, never
// overwritten) and a label_pool extended with both lists. The pool file
// is read, merged and replaced under its lock; when it does not exist yet
// the query records are the starting point.
func (b *Builder) BuildForFile(ctx context.Context, qf *corpus.QueryFile, model string) (*Report, error) {
	q, err := b.opts.Queries.Load(model, qf.Stem)
	if err != nil {
		return nil, fmt.Errorf("labelpool: query embeddings for %s/%s: %w", model, qf.Stem, err)
	}
	if q.Len() != len(qf.Records) {
		return nil, fmt.Errorf("%w: %s has %d queries but %d embeddings for %s", ErrMismatch, qf.Stem, len(qf.Records), q.Len(), model)
	}
	res, err := b.opts.Retriever.Retrieve(model, q)
	if err != nil {
		return nil, err
	}
	report := &Report{File: qf.Stem, Model: model, Queries: len(qf.Records), Skipped: res.Skipped, Recall: res.MeanRecall()}

	out := b.OutputPath(qf.Stem)
	err = WithLock(ctx, out+LockSuffix, func() error {
		records, err := b.current(out, qf)
		if err != nil {
			return err
		}
		for i, r := range res.Queries {
			if r.Skipped {
				continue
			}
			if records[i], err = b.mergeRecord(records[i], model, r); err != nil {
				return fmt.Errorf("labelpool: %s record %d: %w", qf.Stem, i, err)
			}
		}
		return write(out, records)
	})
	if err != nil {
		return nil, err
	}
	b.logger.Info("merged label pool", zap.String("file", qf.Stem), zap.String("model", model),
		zap.Int("queries", report.Queries), zap.Float64("recall", report.Recall))
	return report, nil
}

// current returns the records to merge into: the existing pool file, or
// the query records when there is none.
func (b *Builder) current(out string, qf *corpus.QueryFile) ([][]byte, error) {
	data, err := os.ReadFile(out)
	if errors.Is(err, os.ErrNotExist) {
		records := make([][]byte, len(qf.Records))
		for i, r := range qf.Records {
			records[i] = append([]byte(nil), r...)
		}
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("labelpool: read %s: %w", out, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("labelpool: %s is not valid JSON", out)
	}
	items := gjson.ParseBytes(data).Array()
	if len(items) != len(qf.Records) {
		return nil, fmt.Errorf("%w: %s has %d records, %s has %d", ErrMismatch, out, len(items), qf.Path, len(qf.Records))
	}
	records := make([][]byte, len(items))
	for i, item := range items {
		records[i] = []byte(item.Raw)
	}
	return records, nil
}

func (b *Builder) mergeRecord(rec []byte, model string, r retrieval.Result) ([]byte, error) {
	exact := b.opts.Retriever.Passages(r.Exact)
	ann := b.opts.Retriever.Passages(r.ANN)
	var err error
	for _, field := range []struct {
		suffix string
		list   []string
	}{{"_exact", exact}, {"_ann", ann}} {
		path := baselineField + "." + gjson.Escape(model+field.suffix)
		if gjson.GetBytes(rec, path).Exists() {
			continue
		}
		if rec, err = sjson.SetBytes(rec, path, field.list); err != nil {
			return nil, err
		}
	}
	var pool []string
	for _, v := range gjson.GetBytes(rec, poolField).Array() {
		pool = append(pool, v.String())
	}
	return sjson.SetBytes(rec, poolField, Merge(Merge(pool, exact), ann))
}

func write(path string, records [][]byte) error {
	var raw bytes.Buffer
	raw.WriteByte('[')
	for i, r := range records {
		if i > 0 {
			raw.WriteByte(',')
		}
		raw.Write(r)
	}
	raw.WriteByte(']')
	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("labelpool: format %s: %w", path, err)
	}
	out.WriteByte('\n')
	if err := fsutil.WriteFileAtomic(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("labelpool: write %s: %w", path, err)
	}
	return nil
}
