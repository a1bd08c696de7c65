package bruteforce

import (
	"errors"
	"testing"

	"github.com/viant/corpusdedup/index"
)

func TestSearch_OrderAndTieBreak(t *testing.T) {
	idx := New()
	err := idx.Add([]int64{5, 2, 9, 1}, [][]float32{
		{0, 1},
		{1, 0},
		{1, 0},
		{0.6, 0.8},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	keys, scores, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := []int64{2, 9, 1}
	for n := range want {
		if keys[n] != want[n] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if scores[0] != 1 || scores[1] != 1 {
		t.Fatalf("scores = %v", scores)
	}
	if scores[2] >= scores[1] {
		t.Fatalf("scores not descending: %v", scores)
	}
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	idx := New()
	_ = idx.Add([]int64{0, 1}, [][]float32{{1, 0}, {0, 1}})
	keys, _, err := idx.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len(keys) = %d, want 2", len(keys))
	}
}

func TestAdd_Errors(t *testing.T) {
	idx := New()
	if err := idx.Add([]int64{1}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Add([]int64{2}, [][]float32{{1, 0, 0}}); !errors.Is(err, index.ErrDimMismatch) {
		t.Fatalf("dim mismatch err = %v", err)
	}
	if err := idx.Add([]int64{1}, [][]float32{{0, 1}}); !errors.Is(err, index.ErrDuplicateKey) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, _, err := idx.Search([]float32{1}, 1); !errors.Is(err, index.ErrDimMismatch) {
		t.Fatalf("query dim err = %v", err)
	}
}

func TestCosineMetric(t *testing.T) {
	idx := New(WithMetric(Cosine))
	_ = idx.Add([]int64{0, 1}, [][]float32{{10, 0}, {0, 3}})
	keys, scores, err := idx.Search([]float32{2, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if keys[0] != 0 || scores[0] < 0.999 {
		t.Fatalf("got %v %v", keys, scores)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	idx := New()
	_ = idx.Add([]int64{3, 7}, [][]float32{{1, 0}, {0.6, 0.8}})
	data, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored := New()
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if restored.Len() != 2 || restored.Dim() != 2 {
		t.Fatalf("restored len=%d dim=%d", restored.Len(), restored.Dim())
	}
	a, _, _ := idx.Search([]float32{0.6, 0.8}, 2)
	b, _, _ := restored.Search([]float32{0.6, 0.8}, 2)
	if a[0] != b[0] || a[1] != b[1] {
		t.Fatalf("restored results differ: %v vs %v", a, b)
	}

	data[len(data)-2] ^= 0xFF
	if err := New().UnmarshalBinary(data); !errors.Is(err, index.ErrCorrupt) {
		t.Fatalf("corrupt err = %v, want ErrCorrupt", err)
	}
}

func TestMarshalEmpty(t *testing.T) {
	data, err := New().MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	restored := New()
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if restored.Len() != 0 {
		t.Fatalf("Len = %d", restored.Len())
	}
}

func TestUnmarshal_ItemsWithoutDimension(t *testing.T) {
	w := &index.Writer{}
	w.U32(uint32(InnerProduct))
	w.U32(0)
	w.U64(1 << 40)
	err := New().UnmarshalBinary(index.Seal(index.KindBruteForce, w.Buf))
	if !errors.Is(err, index.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
