package lsh

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/corpusdedup/minhash"
)

func TestOptimalParams(t *testing.T) {
	for _, th := range []float64{0.5, 0.8, 0.9} {
		b, r := OptimalParams(th, 128, 0.5, 0.5)
		assert.LessOrEqual(t, b*r, 128, "threshold %v", th)
		assert.Greater(t, b, 0)
		assert.Greater(t, r, 0)
	}
	bLow, rLow := OptimalParams(0.5, 128, 0.5, 0.5)
	bHigh, rHigh := OptimalParams(0.9, 128, 0.5, 0.5)
	assert.Greater(t, rHigh, rLow, "stricter threshold needs longer bands")
	assert.Less(t, bHigh, bLow)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 128)
	assert.Error(t, err)
	_, err = New(1.5, 128)
	assert.Error(t, err)
	_, err = New(0.8, 1)
	assert.Error(t, err)
}

func words(n int, prefix string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func TestInsertQuery(t *testing.T) {
	h := minhash.New(128, minhash.DefaultSeed, nil)
	idx, err := New(0.8, 128)
	require.NoError(t, err)

	base := words(60, "w")
	near := base + " tail"
	other := words(60, "z")

	require.NoError(t, idx.Insert("base", h.Sign(base)))
	assert.True(t, idx.HasSimilar(h.Sign(near)))
	assert.Contains(t, idx.Query(h.Sign(near)), "base")
	key, ok := idx.FindSimilar(h.Sign(base))
	assert.True(t, ok)
	assert.Equal(t, "base", key)
	assert.False(t, idx.HasSimilar(h.Sign(other)))
	assert.Equal(t, 1, idx.Len())
}

func TestInsert_Errors(t *testing.T) {
	h := minhash.New(128, minhash.DefaultSeed, nil)
	idx, err := New(0.8, 128)
	require.NoError(t, err)

	assert.ErrorIs(t, idx.Insert("e", h.Sign("too short")), ErrEmptySignature)
	assert.False(t, idx.HasSimilar(h.Sign("")))
	assert.Empty(t, idx.Query(nil))

	sig := h.Sign(words(10, "a"))
	require.NoError(t, idx.Insert("k", sig))
	assert.ErrorIs(t, idx.Insert("k", sig), ErrDuplicateKey)
	assert.Error(t, idx.Insert("short", sig[:64]))
}

func TestHasSimilar_ThresholdMonotonic(t *testing.T) {
	h := minhash.New(128, minhash.DefaultSeed, nil)
	base := words(40, "w")
	probes := []string{
		base,
		base + " extra",
		words(30, "w") + " " + words(10, "q"),
		words(20, "w") + " " + words(20, "q"),
		words(40, "q"),
	}
	prev := len(probes) + 1
	for _, th := range []float64{0.3, 0.5, 0.7, 0.8, 0.9, 0.99} {
		idx, err := New(th, 128)
		require.NoError(t, err)
		require.NoError(t, idx.Insert("base", h.Sign(base)))
		hits := 0
		for _, p := range probes {
			if idx.HasSimilar(h.Sign(p)) {
				hits++
			}
		}
		assert.LessOrEqual(t, hits, prev, "threshold %v", th)
		prev = hits
	}
}
