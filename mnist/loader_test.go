package mnist

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

// syntheticSet builds n images whose first pixel stores the sample index.
func syntheticSet(t *testing.T, n int) *Set {
	t.Helper()
	images := make([]float64, n*pixels)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		images[i*pixels] = float64(i)
		labels[i] = i % NumClasses
	}
	set, err := NewSet(images, labels)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func drain(it *Iterator) []Batch {
	var out []Batch
	for {
		b, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestLoaderVisitsEverySampleOnce(t *testing.T) {
	tests := []struct {
		n, batchSize int
		shuffle      bool
		wantBatches  int
		wantLast     int
	}{
		{n: 10, batchSize: 3, wantBatches: 4, wantLast: 1},
		{n: 10, batchSize: 5, wantBatches: 2, wantLast: 5},
		{n: 7, batchSize: 10, wantBatches: 1, wantLast: 7},
		{n: 23, batchSize: 4, shuffle: true, wantBatches: 6, wantLast: 3},
	}
	for _, tt := range tests {
		set := syntheticSet(t, tt.n)
		l, err := NewLoader(set, tt.batchSize, tt.shuffle, 1)
		if err != nil {
			t.Fatal(err)
		}
		if l.Len() != tt.wantBatches {
			t.Errorf("n=%d bs=%d: Len() = %d; want %d", tt.n, tt.batchSize, l.Len(), tt.wantBatches)
		}
		batches := drain(l.Iter())
		if len(batches) != tt.wantBatches {
			t.Fatalf("n=%d bs=%d: got %d batches; want %d", tt.n, tt.batchSize, len(batches), tt.wantBatches)
		}
		if last := batches[len(batches)-1].Len(); last != tt.wantLast {
			t.Errorf("n=%d bs=%d: last batch has %d samples; want %d", tt.n, tt.batchSize, last, tt.wantLast)
		}
		seen := make([]int, tt.n)
		for _, b := range batches {
			shape := b.Images.Shape()
			if shape[0] != b.Len() || shape[1] != 1 || shape[2] != ImgSize || shape[3] != ImgSize {
				t.Fatalf("batch shape %v for %d labels", shape, b.Len())
			}
			data := b.Images.Data().([]float64)
			for i, idx := range b.Indices {
				seen[idx]++
				if int(data[i*pixels]) != idx {
					t.Errorf("batch row %d holds sample %v; want %d", i, data[i*pixels], idx)
				}
				if b.Labels[i] != set.Label(idx) {
					t.Errorf("label of sample %d = %d; want %d", idx, b.Labels[i], set.Label(idx))
				}
			}
		}
		for idx, c := range seen {
			if c != 1 {
				t.Errorf("n=%d bs=%d: sample %d seen %d times", tt.n, tt.batchSize, idx, c)
			}
		}
	}
}

func order(batches []Batch) []int {
	var out []int
	for _, b := range batches {
		out = append(out, b.Indices...)
	}
	return out
}

func TestLoaderShuffleIsPerPass(t *testing.T) {
	set := syntheticSet(t, 50)
	shuffled, err := NewLoader(set, 8, true, 3)
	if err != nil {
		t.Fatal(err)
	}
	first := order(drain(shuffled.Iter()))
	second := order(drain(shuffled.Iter()))
	if reflect.DeepEqual(first, second) {
		t.Error("two shuffled passes produced the same order")
	}

	fixed, err := NewLoader(set, 8, false, 3)
	if err != nil {
		t.Fatal(err)
	}
	a := order(drain(fixed.Iter()))
	b := order(drain(fixed.Iter()))
	if !reflect.DeepEqual(a, b) {
		t.Error("unshuffled passes differ")
	}
	for i, idx := range a {
		if idx != i {
			t.Fatalf("unshuffled pass position %d holds %d", i, idx)
		}
	}
}

func TestNewSetValidates(t *testing.T) {
	if _, err := NewSet(make([]float64, pixels), []int{1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short images: err = %v; want ErrShapeMismatch", err)
	}
	if _, err := NewSet(make([]float64, pixels), []int{10}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("label 10: err = %v; want ErrShapeMismatch", err)
	}
}

func TestSetClassIndex(t *testing.T) {
	set := syntheticSet(t, 25)
	for c := 0; c < NumClasses; c++ {
		for _, idx := range set.Class(c) {
			if set.Label(idx) != c {
				t.Errorf("Class(%d) contains sample %d labelled %d", c, idx, set.Label(idx))
			}
		}
	}
	if got := len(set.Class(3)); got != 3 {
		t.Errorf("len(Class(3)) = %d; want 3", got)
	}
}

func TestNewLoaderRejectsBadInput(t *testing.T) {
	if _, err := NewLoader(syntheticSet(t, 3), 0, false, 1); err == nil {
		t.Error("batch size 0 accepted")
	}
	empty, err := NewSet(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader(empty, 4, false, 1); !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("empty set: err = %v; want ErrDataUnavailable", err)
	}
}
