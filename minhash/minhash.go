package minhash

import (
	"math"
	"math/bits"
	"math/rand"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultNumPerm is the signature length.
	DefaultNumPerm = 128
	// DefaultShingleSize is the token window length.
	DefaultShingleSize = 3
	// DefaultSeed seeds the permutation coefficients.
	DefaultSeed = 1

	mersennePrime = (1 << 61) - 1
	maxHash       = math.MaxUint32
)

// Signature is a MinHash sketch. An empty signature means the input had no
// shingles; it never matches anything.
type Signature []uint32

// Empty reports whether the signature carries no shingles.
func (s Signature) Empty() bool { return len(s) == 0 }

// Hasher produces signatures with a fixed set of permutations. It is safe
// for concurrent use.
type Hasher struct {
	tok     Tokenizer
	shingle int
	a, b    []uint64
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithShingleSize overrides the default window of 3 tokens.
func WithShingleSize(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.shingle = n
		}
	}
}

// New returns a Hasher with numPerm permutations derived from seed. A nil
// tokenizer uses WordTokenizer.
func New(numPerm int, seed int64, tok Tokenizer, opts ...Option) *Hasher {
	if numPerm <= 0 {
		numPerm = DefaultNumPerm
	}
	if tok == nil {
		tok = WordTokenizer{}
	}
	h := &Hasher{tok: tok, shingle: DefaultShingleSize, a: make([]uint64, numPerm), b: make([]uint64, numPerm)}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < numPerm; i++ {
		h.a[i] = 1 + uint64(rng.Int63n(mersennePrime-1))
		h.b[i] = uint64(rng.Int63n(mersennePrime))
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NumPerm returns the signature length.
func (h *Hasher) NumPerm() int { return len(h.a) }

// Sign tokenizes text and returns its signature.
func (h *Hasher) Sign(text string) Signature {
	return h.SignShingles(Shingles(h.tok.Tokenize(text), h.shingle))
}

// SignShingles folds pre-built shingles into a signature.
func (h *Hasher) SignShingles(shingles []string) Signature {
	if len(shingles) == 0 {
		return nil
	}
	sig := make(Signature, len(h.a))
	for i := range sig {
		sig[i] = maxHash
	}
	for _, sh := range shingles {
		hv := xxhash.Sum64String(sh) & maxHash
		for i := range sig {
			if v := h.permute(i, hv); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

func (h *Hasher) permute(i int, hv uint64) uint32 {
	hi, lo := bits.Mul64(h.a[i], hv)
	lo, carry := bits.Add64(lo, h.b[i], 0)
	hi += carry
	return uint32(bits.Rem64(hi, lo, mersennePrime) & maxHash)
}

// Shingles returns every contiguous window of n ids formatted as
// "(a, b, c)". Fewer than n ids yield no shingles.
func Shingles(ids []uint32, n int) []string {
	if n <= 0 || len(ids) < n {
		return nil
	}
	out := make([]string, 0, len(ids)-n+1)
	var b strings.Builder
	for i := 0; i+n <= len(ids); i++ {
		b.Reset()
		b.WriteByte('(')
		for j := 0; j < n; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.FormatUint(uint64(ids[i+j]), 10))
		}
		if n == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
		out = append(out, b.String())
	}
	return out
}

// Jaccard estimates the Jaccard similarity of the shingle sets behind two
// signatures as the fraction of equal positions. Empty or mismatched
// signatures score 0.
func Jaccard(a, b Signature) float64 {
	if a.Empty() || len(a) != len(b) {
		return 0
	}
	eq := 0
	for i := range a {
		if a[i] == b[i] {
			eq++
		}
	}
	return float64(eq) / float64(len(a))
}
