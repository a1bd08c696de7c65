package labelpool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/viant/corpusdedup/corpus"
	"github.com/viant/corpusdedup/index/bruteforce"
	"github.com/viant/corpusdedup/retrieval"
	"github.com/viant/corpusdedup/vector"
)

func TestMerge(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Merge(nil, []string{"a", "b", "a", "c"}))
	pool := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "b", "c", "d"}, Merge(pool, []string{"c", "d"}))
	assert.Equal(t, []string{"a", "b", "c"}, pool)
	assert.Equal(t, pool, Merge(pool, pool))
	assert.Equal(t, []string{"b", "a"}, Merge([]string{"b", "b"}, []string{"a", "b"}))
}

func TestWithLock_SerializesReadModifyWrite(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(dir, "counter")
	require.NoError(t, os.WriteFile(counter, []byte("0"), 0o644))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), counter+LockSuffix, func() error {
				data, err := os.ReadFile(counter)
				if err != nil {
					return err
				}
				n, _ := strconv.Atoi(string(data))
				time.Sleep(time.Millisecond)
				return os.WriteFile(counter, []byte(strconv.Itoa(n+1)), 0o644)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "16", string(data))
}

func TestWithLock_ReleasedOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	boom := errors.New("boom")
	assert.ErrorIs(t, WithLock(context.Background(), path, func() error { return boom }), boom)
	assert.NoError(t, WithLock(context.Background(), path, func() error { return nil }))
}

func TestWithLock_WaitsUntilContextDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "x.lock")
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- WithLock(context.Background(), path, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := WithLock(ctx, path, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
	assert.NoError(t, <-done)
}

type memQueries map[string]*vector.Matrix

func (m memQueries) Load(model, stem string) (*vector.Matrix, error) {
	q, ok := m[model+"/"+stem]
	if !ok {
		return nil, os.ErrNotExist
	}
	return q, nil
}

func fixture(t *testing.T) (*Builder, *corpus.QueryFile, string) {
	t.Helper()
	dir := t.TempDir()
	passages := []string{"p0", "p1", "p2", "p3", "p4"}
	m, err := vector.NewMatrix([][]float32{{1, 0}, {0.8, 0.6}, {0, 1}, {-1, 0}, {0.6, 0.8}})
	require.NoError(t, err)
	r := retrieval.New(passages, 2)
	for _, model := range []string{"org/m.v1", "m2"} {
		ann := bruteforce.New()
		require.NoError(t, ann.Add([]int64{0, 1, 2, 3, 4}, m.Rows()))
		require.NoError(t, r.Register(model, m, ann))
	}

	qpath := filepath.Join(dir, "QA_floods.json")
	require.NoError(t, os.WriteFile(qpath, []byte(`[
  {"user_query": "first", "meta": {"lang": "en"}},
  {"user_query": "second", "meta": {"lang": "fr"}}
]`), 0o644))
	qf, err := corpus.LoadQueryFile(qpath)
	require.NoError(t, err)

	q1, _ := vector.NewMatrix([][]float32{{1, 0}, {0, 1}})
	q2, _ := vector.NewMatrix([][]float32{{0, 1}, {0, 0}})
	b, err := NewBuilder(Options{
		OutDir:    filepath.Join(dir, "label_pools"),
		Retriever: r,
		Queries:   memQueries{"org/m.v1/QA_floods": q1, "m2/QA_floods": q2},
	})
	require.NoError(t, err)
	return b, qf, b.OutputPath(qf.Stem)
}

func strs(res gjson.Result) []string {
	var out []string
	for _, v := range res.Array() {
		out = append(out, v.String())
	}
	return out
}

func TestBuildForFile_MergesModels(t *testing.T) {
	b, qf, out := fixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, model := range []string{"org/m.v1", "m2"} {
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			_, err := b.BuildForFile(ctx, qf, model)
			assert.NoError(t, err)
		}(model)
	}
	wg.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(data))
	exact1 := "0.baseline_results." + gjson.Escape("org/m.v1_exact")
	assert.Equal(t, []string{"p0", "p1"}, strs(gjson.GetBytes(data, exact1)))
	assert.Equal(t, []string{"p2", "p4"}, strs(gjson.GetBytes(data, "0.baseline_results.m2_exact")))
	assert.ElementsMatch(t, []string{"p0", "p1", "p2", "p4"}, strs(gjson.GetBytes(data, "0.label_pool")))
	assert.Equal(t, "en", gjson.GetBytes(data, "0.meta.lang").String())
	assert.Equal(t, "first", gjson.GetBytes(data, "0.user_query").String())

	// The second query has no m2 embedding.
	assert.False(t, gjson.GetBytes(data, "1.baseline_results.m2_exact").Exists())
	assert.Equal(t, []string{"p2", "p4"}, strs(gjson.GetBytes(data, "1.label_pool")))
	assert.FileExists(t, out+LockSuffix)
}

func TestBuildForFile_Idempotent(t *testing.T) {
	b, qf, out := fixture(t)
	ctx := context.Background()
	report, err := b.BuildForFile(ctx, qf, "org/m.v1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queries)
	assert.Equal(t, 1.0, report.Recall)
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = b.BuildForFile(ctx, qf, "org/m.v1")
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestBuildForFile_KeepsExistingBaselines(t *testing.T) {
	b, qf, out := fixture(t)
	seeded := `[{"user_query":"first","baseline_results":{"m2_exact":["old"]},"label_pool":["old"]},{"user_query":"second"}]`
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(out, []byte(seeded), 0o644))

	report, err := b.BuildForFile(context.Background(), qf, "m2")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, strs(gjson.GetBytes(data, "0.baseline_results.m2_exact")))
	assert.Equal(t, []string{"p2", "p4"}, strs(gjson.GetBytes(data, "0.baseline_results.m2_ann")))
	assert.Equal(t, []string{"old", "p2", "p4"}, strs(gjson.GetBytes(data, "0.label_pool")))
}

func TestBuildForFile_Errors(t *testing.T) {
	b, qf, out := fixture(t)
	ctx := context.Background()

	_, err := b.BuildForFile(ctx, qf, "unknown")
	assert.ErrorIs(t, err, os.ErrNotExist)

	short := *qf
	short.Records = short.Records[:1]
	_, err = b.BuildForFile(ctx, &short, "m2")
	assert.ErrorIs(t, err, ErrMismatch)

	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(out, []byte(`[{"user_query":"only one"}]`), 0o644))
	_, err = b.BuildForFile(ctx, qf, "m2")
	assert.ErrorIs(t, err, ErrMismatch)

	require.NoError(t, os.WriteFile(out, []byte(`[{`), 0o644))
	_, err = b.BuildForFile(ctx, qf, "m2")
	assert.Error(t, err)
	data, _ := os.ReadFile(out)
	assert.Equal(t, "[{", string(data), "a corrupt pool is never overwritten")
}

func TestNewBuilder_Validation(t *testing.T) {
	_, err := NewBuilder(Options{})
	assert.Error(t, err)
}
