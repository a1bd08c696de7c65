package dedup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/internal/fsutil"
	"github.com/viant/corpusdedup/lsh"
	"github.com/viant/corpusdedup/minhash"
)

// DocumentOptions configures document level deduplication.
type DocumentOptions struct {
	// Src is scanned for *.txt files at any depth.
	Src string
	// UniqueDir and DupDir receive copies under the same relative paths.
	UniqueDir string
	DupDir    string

	Threshold   float64
	NumPerm     int
	ShingleSize int
	// Seed fixes the MinHash permutations.
	Seed      int64
	Tokenizer minhash.Tokenizer
	Order     Order
	Logger    *zap.Logger
}

// DocumentStats summarises a run. Unique + Duplicates + Skipped == Total.
type DocumentStats struct {
	Total      int
	Unique     int
	Duplicates int
	// NoSignature counts unique documents too short to shingle.
	NoSignature int
	Skipped     int
}

// DocumentDeduper partitions documents into unique and near-duplicate sets.
type DocumentDeduper struct {
	opts   DocumentOptions
	hasher *minhash.Hasher
	logger *zap.Logger
}

// NewDocumentDeduper validates opts and fills defaults.
func NewDocumentDeduper(opts DocumentOptions) (*DocumentDeduper, error) {
	if opts.Threshold == 0 {
		opts.Threshold = 0.8
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("dedup: threshold must be in (0, 1], got %v", opts.Threshold)
	}
	if opts.NumPerm == 0 {
		opts.NumPerm = minhash.DefaultNumPerm
	}
	if opts.ShingleSize == 0 {
		opts.ShingleSize = minhash.DefaultShingleSize
	}
	if opts.Seed == 0 {
		opts.Seed = minhash.DefaultSeed
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = minhash.WordTokenizer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentDeduper{
		opts:   opts,
		hasher: minhash.New(opts.NumPerm, opts.Seed, opts.Tokenizer, minhash.WithShingleSize(opts.ShingleSize)),
		logger: logger,
	}, nil
}

// Classify walks records in their given order. A record is a duplicate when
// the LSH index already holds a signature whose estimated Jaccard
// similarity reaches the threshold; otherwise it is unique and inserted.
// Records without a signature are always unique and never inserted.
func (d *DocumentDeduper) Classify(records []corpus.TextRecord) (unique, dup []corpus.TextRecord, err error) {
	unique, dup, _, err = d.classify(records)
	return unique, dup, err
}

func (d *DocumentDeduper) classify(records []corpus.TextRecord) (unique, dup []corpus.TextRecord, noSig int, err error) {
	idx, err := lsh.New(d.opts.Threshold, d.opts.NumPerm)
	if err != nil {
		return nil, nil, 0, err
	}
	for i, rec := range records {
		sig := d.hasher.Sign(rec.Content)
		if sig.Empty() {
			noSig++
			unique = append(unique, rec)
			continue
		}
		if key, ok := idx.FindSimilar(sig); ok {
			orig, _ := strconv.Atoi(key)
			d.logger.Debug("near duplicate", zap.String("source", rec.SourceID),
				zap.String("original", records[orig].SourceID))
			dup = append(dup, rec)
			continue
		}
		if err := idx.Insert(strconv.Itoa(i), sig); err != nil {
			return nil, nil, 0, err
		}
		unique = append(unique, rec)
	}
	return unique, dup, noSig, nil
}

// Run reads every document under Src, orders, classifies and copies each
// one into exactly one of UniqueDir or DupDir. Unreadable files are logged
// and skipped.
func (d *DocumentDeduper) Run(ctx context.Context) (DocumentStats, error) {
	var stats DocumentStats
	if d.opts.UniqueDir == "" || d.opts.DupDir == "" {
		return stats, errors.New("dedup: unique and duplicate output dirs are required")
	}
	names, err := corpus.Discover(d.opts.Src, corpus.TextPattern)
	if err != nil {
		return stats, err
	}
	stats.Total = len(names)
	records := make([]corpus.TextRecord, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := corpus.ReadTextRecord(d.opts.Src, name)
		if err != nil {
			d.logger.Warn("skipping unreadable document", zap.String("path", name), zap.Error(err))
			stats.Skipped++
			continue
		}
		records = append(records, rec)
	}
	if !d.opts.Order.Reproducible() {
		d.logger.Warn("document order is not seeded; kept duplicates will differ between runs",
			zap.String("order", d.opts.Order.Name()))
	}
	d.opts.Order.Apply(records)

	unique, dup, noSig, err := d.classify(records)
	if err != nil {
		return stats, err
	}
	stats.NoSignature = noSig
	if err := d.copyAll(ctx, unique, d.opts.UniqueDir); err != nil {
		return stats, err
	}
	if err := d.copyAll(ctx, dup, d.opts.DupDir); err != nil {
		return stats, err
	}
	stats.Unique, stats.Duplicates = len(unique), len(dup)
	d.logger.Info("document dedup finished", zap.Int("total", stats.Total), zap.Int("unique", stats.Unique),
		zap.Int("duplicates", stats.Duplicates), zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func (d *DocumentDeduper) copyAll(ctx context.Context, records []corpus.TextRecord, dir string) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(dir, filepath.FromSlash(rec.SourceID))
		if err := fsutil.WriteFileAtomic(dst, []byte(rec.Content), 0o644); err != nil {
			return fmt.Errorf("dedup: copy %s: %w", rec.SourceID, err)
		}
	}
	return nil
}
