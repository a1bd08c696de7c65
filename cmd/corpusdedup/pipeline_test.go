package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/corpusdedup/config"
	"github.com/viant/corpusdedup/index"
)

func TestAnnFactory(t *testing.T) {
	c := config.DefaultConfig()
	for kind, want := range map[string]index.Kind{
		config.ANNHNSW:       index.KindHNSW,
		config.ANNCover:      index.KindCover,
		config.ANNBruteForce: index.KindBruteForce,
	} {
		c.ANN.Kind = kind
		idx := annFactory(c)()
		require.NoError(t, idx.Add([]int64{1}, [][]float32{{1, 0}}))
		data, err := idx.MarshalBinary()
		require.NoError(t, err)
		got, err := index.KindOf(data)
		require.NoError(t, err)
		assert.Equal(t, want, got, kind)
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t c", 10))
	assert.Equal(t, "abc…", preview("abcdef", 3))
}

func TestNewIndexer_PullsSharedOwner(t *testing.T) {
	c := config.DefaultConfig()
	c.BaseDir = t.TempDir()
	c.Models["twin"] = config.Model{Backend: config.BackendHash, Dim: 256, ShareEmbeddingsWith: "hash-256"}
	b, err := newIndexer(c, []string{"twin"})
	require.NoError(t, err)
	arts, err := b.BuildAll(context.Background(), []string{"alpha beta", "gamma delta"}, false)
	require.NoError(t, err)
	assert.Contains(t, arts, "twin")
	assert.Contains(t, arts, "hash-256")
	assert.Equal(t, "hash-256", arts["twin"].EmbeddingsFrom)
}

func TestEmbedQueries(t *testing.T) {
	c := config.DefaultConfig()
	c.BaseDir = t.TempDir()
	dir := c.Paths().TestQueries
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "QA_x.json"), []byte(`[{"user_query":"where"},{"user_query":"why"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{`), 0o644))

	files, err := loadQueryFiles(c)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, []string{"where", "why"}, files[0].Queries)

	n, err := embedQueries(context.Background(), c, c.ModelNames(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = embedQueries(context.Background(), c, c.ModelNames(), files)
	require.NoError(t, err)
	assert.Zero(t, n)

	m, err := queryEmbedder(c).Load("hash-256", "QA_x")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}
