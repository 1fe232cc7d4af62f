package mnist

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const pixels = ImgSize * ImgSize

// Set is an in-memory split: normalized images and their labels.
type Set struct {
	images  []float64
	labels  []int
	byClass [NumClasses][]int
}

// NewSet wraps normalized images (len(labels)·28·28 values, row-major) and
// labels in 0..9.
func NewSet(images []float64, labels []int) (*Set, error) {
	if len(images) != len(labels)*pixels {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d pixel values for %d labels", len(images), len(labels))
	}
	s := &Set{images: images, labels: labels}
	for i, l := range labels {
		if l < 0 || l >= NumClasses {
			return nil, errors.Wrapf(ErrShapeMismatch, "label %d at %d out of range", l, i)
		}
		s.byClass[l] = append(s.byClass[l], i)
	}
	return s, nil
}

func (s *Set) Len() int {
	return len(s.labels)
}

func (s *Set) Label(i int) int {
	return s.labels[i]
}

// Class returns the indices of all samples labelled c.
func (s *Set) Class(c int) []int {
	return s.byClass[c]
}

// Gather copies the given samples into a batch, in order.
func (s *Set) Gather(indices []int) Batch {
	data := make([]float64, len(indices)*pixels)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		copy(data[i*pixels:(i+1)*pixels], s.images[idx*pixels:(idx+1)*pixels])
		labels[i] = s.labels[idx]
	}
	return Batch{
		Images:  tensor.New(tensor.WithShape(len(indices), 1, ImgSize, ImgSize), tensor.WithBacking(data)),
		Labels:  labels,
		Indices: append([]int(nil), indices...),
	}
}

// Batch is a group of samples. Images has shape (B, 1, 28, 28).
type Batch struct {
	Images  *tensor.Dense
	Labels  []int
	Indices []int
}

func (b Batch) Len() int {
	return len(b.Labels)
}

// Loader cuts a Set into batches of BatchSize. The last batch of a pass may
// be shorter.
type Loader struct {
	set       *Set
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

func NewLoader(set *Set, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("mnist: batch size must be > 0 (got %d)", batchSize)
	}
	if set.Len() == 0 {
		return nil, errors.Wrap(ErrDataUnavailable, "empty split")
	}
	return &Loader{
		set:       set,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

func (l *Loader) Set() *Set {
	return l.set
}

// Len returns the number of batches in one pass.
func (l *Loader) Len() int {
	return (l.set.Len() + l.batchSize - 1) / l.batchSize
}

// Samples returns the number of samples in one pass.
func (l *Loader) Samples() int {
	return l.set.Len()
}

// Iter starts a new pass. Shuffled loaders draw a fresh order on every call;
// unshuffled loaders always yield samples in storage order.
func (l *Loader) Iter() *Iterator {
	var order []int
	if l.shuffle {
		order = l.rng.Perm(l.set.Len())
	} else {
		order = make([]int, l.set.Len())
		for i := range order {
			order[i] = i
		}
	}
	return &Iterator{l: l, order: order}
}

// Iterator yields the batches of one pass.
type Iterator struct {
	l     *Loader
	order []int
	pos   int
}

func (it *Iterator) Next() (Batch, bool) {
	if it.pos >= len(it.order) {
		return Batch{}, false
	}
	end := it.pos + it.l.batchSize
	if end > len(it.order) {
		end = len(it.order)
	}
	b := it.l.set.Gather(it.order[it.pos:end])
	it.pos = end
	return b, true
}

// Prefetch assembles batches from it on a background goroutine, keeping up
// to depth of them ready. The channel closes when the pass ends or ctx is
// done.
func Prefetch(ctx context.Context, it *Iterator, depth int) <-chan Batch {
	if depth < 1 {
		depth = 1
	}
	out := make(chan Batch, depth)
	go func() {
		defer close(out)
		for {
			b, ok := it.Next()
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case out <- b:
			}
		}
	}()
	return out
}
