package minhash

import (
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Tokenizer maps text to a token id sequence.
type Tokenizer interface {
	Tokenize(text string) []uint32
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func(text string) []uint32

// Tokenize calls f.
func (f TokenizerFunc) Tokenize(text string) []uint32 { return f(text) }

// WordTokenizer normalises text and assigns each word the low 32 bits of
// its xxhash, so equal words share an id without a vocabulary.
type WordTokenizer struct{}

// Tokenize implements Tokenizer.
func (WordTokenizer) Tokenize(text string) []uint32 {
	words := strings.Fields(Normalize(text))
	ids := make([]uint32, len(words))
	for i, w := range words {
		ids[i] = uint32(xxhash.Sum64String(w))
	}
	return ids
}

// Normalize lowercases text, replaces every rune that is neither a letter
// nor a digit with a space and collapses whitespace runs.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}
