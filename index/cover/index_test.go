package cover

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/viant/corpusdedup/index"
	"github.com/viant/corpusdedup/index/bruteforce"
	"github.com/viant/corpusdedup/vector"
)

func unitVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vector.Normalize(v)
		out[i] = v
	}
	return out
}

func TestSearch_AgreesWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	vecs := unitVectors(rng, 200, 16)
	keys := make([]int64, len(vecs))
	for i := range keys {
		keys[i] = int64(i)
	}
	cov := New(0)
	exact := bruteforce.New()
	if err := cov.Add(keys, vecs); err != nil {
		t.Fatalf("cover Add failed: %v", err)
	}
	if err := exact.Add(keys, vecs); err != nil {
		t.Fatalf("bruteforce Add failed: %v", err)
	}
	for _, q := range unitVectors(rng, 10, 16) {
		got, gotScores, err := cov.Search(q, 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		want, wantScores, _ := exact.Search(q, 10)
		for n := range want {
			if got[n] != want[n] {
				t.Fatalf("rank %d: key %d, want %d", n, got[n], want[n])
			}
			if math.Abs(gotScores[n]-wantScores[n]) > 1e-9 {
				t.Fatalf("rank %d: score %v, want %v", n, gotScores[n], wantScores[n])
			}
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vecs := unitVectors(rng, 50, 4)
	keys := make([]int64, len(vecs))
	for i := range keys {
		keys[i] = int64(100 + i)
	}
	idx := New(1.5)
	if err := idx.Add(keys, vecs); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored := New(0)
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if restored.Len() != 50 || restored.Dim() != 4 {
		t.Fatalf("restored len=%d dim=%d", restored.Len(), restored.Dim())
	}
	a, _, _ := idx.Search(vecs[7], 5)
	b, _, _ := restored.Search(vecs[7], 5)
	for n := range a {
		if a[n] != b[n] {
			t.Fatalf("restored results differ: %v vs %v", a, b)
		}
	}
	if a[0] != 107 {
		t.Fatalf("top hit = %d, want 107", a[0])
	}

	if err := New(0).UnmarshalBinary(data[:len(data)-3]); !errors.Is(err, index.ErrCorrupt) {
		t.Fatalf("truncated err = %v, want ErrCorrupt", err)
	}
}

func TestUnmarshal_PointsWithoutDimension(t *testing.T) {
	w := &index.Writer{}
	w.U64(math.Float64bits(2))
	w.U32(0)
	w.U64(1 << 40)
	err := New(2).UnmarshalBinary(index.Seal(index.KindCover, w.Buf))
	if !errors.Is(err, index.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
