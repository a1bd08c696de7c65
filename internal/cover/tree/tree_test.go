package tree

import (
	"math/rand"
	"sort"
	"testing"
)

func TestKNearest_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := New(1.3, Euclidean)
	var points []*Point
	for i := 0; i < 300; i++ {
		v := make([]float32, 8)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		p := NewPoint(int64(i), v)
		points = append(points, p)
		tr.Insert(p)
	}
	if tr.Len() != 300 {
		t.Fatalf("Len = %d, want 300", tr.Len())
	}
	for trial := 0; trial < 20; trial++ {
		q := make([]float32, 8)
		for j := range q {
			q[j] = rng.Float32()*2 - 1
		}
		qp := NewPoint(-1, q)
		got := tr.KNearest(qp, 5)

		want := make([]Neighbor, 0, len(points))
		for _, p := range points {
			want = append(want, Neighbor{Point: p, Distance: euclideanDistance(qp, p)})
		}
		sort.Slice(want, func(i, j int) bool { return worse(want[j], want[i]) })
		if len(got) != 5 {
			t.Fatalf("len = %d, want 5", len(got))
		}
		for i := range got {
			if got[i].Point.Key != want[i].Point.Key {
				t.Fatalf("trial %d rank %d: key %d, want %d", trial, i, got[i].Point.Key, want[i].Point.Key)
			}
		}
	}
}

func TestKNearest_DuplicatesTieBreak(t *testing.T) {
	tr := New(2, Euclidean)
	tr.Insert(NewPoint(9, []float32{1, 0}))
	tr.Insert(NewPoint(4, []float32{1, 0}))
	tr.Insert(NewPoint(6, []float32{0, 1}))
	got := tr.KNearest(NewPoint(-1, []float32{1, 0}), 2)
	if len(got) != 2 || got[0].Point.Key != 4 || got[1].Point.Key != 9 {
		t.Fatalf("got %+v", got)
	}
}

func TestKNearest_Empty(t *testing.T) {
	if got := New(0, "").KNearest(NewPoint(0, []float32{1}), 3); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
