package dedup

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/corpusdedup/corpus"
)

func passage(n int, prefix string) []string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return w
}

// variant replaces edits distinct positions of base with fresh words.
func variant(rng *rand.Rand, base []string, edits int, tag string) string {
	out := append([]string(nil), base...)
	for i, pos := range rng.Perm(len(base))[:edits] {
		out[pos] = fmt.Sprintf("%s_%d", tag, i)
	}
	return strings.Join(out, " ")
}

func records(texts map[string]string) []corpus.TextRecord {
	var out []corpus.TextRecord
	for id, text := range texts {
		out = append(out, corpus.TextRecord{SourceID: id, Content: text})
	}
	SortedOrder().Apply(out)
	return out
}

func ids(records []corpus.TextRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.SourceID
	}
	return out
}

func TestClassify(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	base := passage(200, "w")
	d, err := NewDocumentDeduper(DocumentOptions{})
	require.NoError(t, err)

	unique, dup, err := d.Classify(records(map[string]string{
		"a.txt":     strings.Join(base, " "),
		"b.txt":     variant(rng, base, 2, "b"),
		"c.txt":     strings.Join(passage(200, "z"), " "),
		"tiny.txt":  "hi",
		"tiny2.txt": "hi",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "c.txt", "tiny.txt", "tiny2.txt"}, ids(unique))
	assert.Equal(t, []string{"b.txt"}, ids(dup))
}

func TestClassify_FirstInOrderSurvives(t *testing.T) {
	base := strings.Join(passage(120, "w"), " ")
	recs := []corpus.TextRecord{
		{SourceID: "z.txt", Content: base},
		{SourceID: "a.txt", Content: base},
	}
	d, err := NewDocumentDeduper(DocumentOptions{})
	require.NoError(t, err)
	unique, dup, err := d.Classify(recs)
	require.NoError(t, err)
	assert.Equal(t, []string{"z.txt"}, ids(unique))
	assert.Equal(t, []string{"a.txt"}, ids(dup))
}

func TestClassify_ThresholdMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	texts := map[string]string{}
	for c := 0; c < 6; c++ {
		base := passage(200, fmt.Sprintf("c%d_", c))
		texts[fmt.Sprintf("c%d-0.txt", c)] = strings.Join(base, " ")
		for v, edits := range []int{2, 8, 20, 40, 70} {
			texts[fmt.Sprintf("c%d-%d.txt", c, v+1)] = variant(rng, base, edits, fmt.Sprintf("c%dv%d", c, v))
		}
	}
	recs := records(texts)

	prev := len(recs) + 1
	for _, th := range []float64{0.5, 0.7, 0.9} {
		d, err := NewDocumentDeduper(DocumentOptions{Threshold: th})
		require.NoError(t, err)
		unique, dup, err := d.Classify(recs)
		require.NoError(t, err)
		assert.Equal(t, len(recs), len(unique)+len(dup))
		assert.LessOrEqual(t, len(dup), prev, "threshold %v", th)
		prev = len(dup)
	}
	assert.Greater(t, prev, 0, "the closest variants stay duplicates at 0.9")
}

func TestOrder(t *testing.T) {
	recs := func() []corpus.TextRecord {
		var out []corpus.TextRecord
		for i := 9; i >= 0; i-- {
			out = append(out, corpus.TextRecord{SourceID: fmt.Sprintf("%02d", i)})
		}
		return out
	}
	sorted := recs()
	Order{}.Apply(sorted)
	assert.Equal(t, "00", sorted[0].SourceID)
	assert.True(t, Order{}.Reproducible())

	a, b := recs(), recs()
	ShuffledOrder(5).Apply(a)
	ShuffledOrder(5).Apply(b)
	assert.Equal(t, ids(a), ids(b))
	assert.True(t, ShuffledOrder(5).Reproducible())
	assert.False(t, RandomOrder().Reproducible())
}

func TestDocumentDeduper_Run(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	base := strings.Join(passage(150, "w"), " ")
	files := map[string]string{
		"law/a.txt":       base,
		"law/copy/a.txt":  base,
		"news/b.txt":      strings.Join(passage(150, "n"), " "),
		"news/short.txt":  "one two",
		"news/ignore.pdf": "not text",
	}
	for rel, content := range files {
		path := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	d, err := NewDocumentDeduper(DocumentOptions{
		Src:       src,
		UniqueDir: filepath.Join(root, "unique"),
		DupDir:    filepath.Join(root, "dup"),
	})
	require.NoError(t, err)
	stats, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DocumentStats{Total: 4, Unique: 3, Duplicates: 1, NoSignature: 1}, stats)

	got, err := corpus.Discover(filepath.Join(root, "unique"), corpus.TextPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"law/a.txt", "news/b.txt", "news/short.txt"}, got)
	got, err = corpus.Discover(filepath.Join(root, "dup"), corpus.TextPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"law/copy/a.txt"}, got)

	data, err := os.ReadFile(filepath.Join(root, "unique", "law", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, base, string(data))
}

func TestDocumentDeduper_RunNeedsOutputs(t *testing.T) {
	d, err := NewDocumentDeduper(DocumentOptions{Src: t.TempDir()})
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	assert.Error(t, err)
}
