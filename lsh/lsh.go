// Package lsh indexes MinHash signatures in banded buckets so that "is
// anything similar already here" is answered without pairwise comparison.
package lsh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/viant/corpusdedup/minhash"
)

var (
	// ErrEmptySignature is returned when inserting a signature with no
	// shingles.
	ErrEmptySignature = errors.New("lsh: empty signature")
	// ErrDuplicateKey is returned when a key is inserted twice.
	ErrDuplicateKey = errors.New("lsh: duplicate key")
)

// Index maps each band of a signature to the keys inserted with that band.
// It grows monotonically. It is not safe for concurrent writes.
type Index struct {
	threshold float64
	numPerm   int
	bands     int
	rows      int
	buckets   []map[string][]string
	sigs      map[string]minhash.Signature
}

// New sizes bands for threshold with equal false positive and false
// negative weights.
func New(threshold float64, numPerm int) (*Index, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("lsh: threshold must be in (0, 1], got %v", threshold)
	}
	if numPerm < 2 {
		return nil, fmt.Errorf("lsh: numPerm must be >= 2, got %d", numPerm)
	}
	b, r := OptimalParams(threshold, numPerm, 0.5, 0.5)
	idx := &Index{
		threshold: threshold,
		numPerm:   numPerm,
		bands:     b,
		rows:      r,
		buckets:   make([]map[string][]string, b),
		sigs:      map[string]minhash.Signature{},
	}
	for i := range idx.buckets {
		idx.buckets[i] = map[string][]string{}
	}
	return idx, nil
}

// Params returns the band count and rows per band.
func (x *Index) Params() (bands, rows int) { return x.bands, x.rows }

// Threshold returns the configured similarity threshold.
func (x *Index) Threshold() float64 { return x.threshold }

// Len returns the number of inserted keys.
func (x *Index) Len() int { return len(x.sigs) }

func (x *Index) bandKey(sig minhash.Signature, band int) string {
	buf := make([]byte, 4*x.rows)
	for j := 0; j < x.rows; j++ {
		binary.LittleEndian.PutUint32(buf[4*j:], sig[band*x.rows+j])
	}
	return string(buf)
}

func (x *Index) check(sig minhash.Signature) error {
	if sig.Empty() {
		return ErrEmptySignature
	}
	if len(sig) != x.numPerm {
		return fmt.Errorf("lsh: signature has %d values, index expects %d", len(sig), x.numPerm)
	}
	return nil
}

// Insert adds sig under key.
func (x *Index) Insert(key string, sig minhash.Signature) error {
	if err := x.check(sig); err != nil {
		return err
	}
	if _, ok := x.sigs[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	x.sigs[key] = sig
	for b := range x.buckets {
		k := x.bandKey(sig, b)
		x.buckets[b][k] = append(x.buckets[b][k], key)
	}
	return nil
}

// Query returns the sorted keys sharing at least one band with sig. These
// are candidates; their similarity is not verified.
func (x *Index) Query(sig minhash.Signature) []string {
	if x.check(sig) != nil {
		return nil
	}
	seen := map[string]struct{}{}
	for b := range x.buckets {
		for _, key := range x.buckets[b][x.bandKey(sig, b)] {
			seen[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// HasSimilar reports whether a candidate's estimated Jaccard similarity to
// sig reaches the threshold. Empty signatures never match.
func (x *Index) HasSimilar(sig minhash.Signature) bool {
	_, ok := x.FindSimilar(sig)
	return ok
}

// FindSimilar returns the first candidate (in key order) whose estimated
// similarity reaches the threshold.
func (x *Index) FindSimilar(sig minhash.Signature) (string, bool) {
	for _, key := range x.Query(sig) {
		if minhash.Jaccard(sig, x.sigs[key]) >= x.threshold {
			return key, true
		}
	}
	return "", false
}
