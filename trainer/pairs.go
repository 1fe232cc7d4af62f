package trainer

import (
	"math/rand"

	"siamese/mnist"
	"siamese/neuralnet"
)

// PairLabels labels position i of two aligned label slices SamePair when the
// classes agree and DifferentPair otherwise.
func PairLabels(a, b []int) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			labels[i] = neuralnet.SamePair
		} else {
			labels[i] = neuralnet.DifferentPair
		}
	}
	return labels
}

// pairSampler picks a partner for every anchor sample from one set.
type pairSampler struct {
	set   *mnist.Set
	ratio float64
	rng   *rand.Rand
}

func newPairSampler(set *mnist.Set, ratio float64, seed int64) *pairSampler {
	return &pairSampler{set: set, ratio: ratio, rng: rand.New(rand.NewSource(seed))}
}

// partners returns a batch aligned with anchor.
func (p *pairSampler) partners(anchor mnist.Batch) mnist.Batch {
	idx := make([]int, anchor.Len())
	for i, label := range anchor.Labels {
		idx[i] = p.partner(label)
	}
	return p.set.Gather(idx)
}

func (p *pairSampler) partner(label int) int {
	same := p.set.Class(label)
	hasOther := len(same) < p.set.Len()
	if len(same) > 0 && (!hasOther || p.rng.Float64() < p.ratio) {
		return same[p.rng.Intn(len(same))]
	}
	for {
		i := p.rng.Intn(p.set.Len())
		if p.set.Label(i) != label {
			return i
		}
	}
}

// truncate keeps the first n samples of b.
func truncate(b mnist.Batch, n int) mnist.Batch {
	if n >= b.Len() {
		return b
	}
	data := neuralnet.Float64s(b.Images)[:n*mnist.ImgSize*mnist.ImgSize]
	return mnist.Batch{
		Images:  neuralnet.FromBacking(data, n, 1, mnist.ImgSize, mnist.ImgSize),
		Labels:  b.Labels[:n],
		Indices: b.Indices[:n],
	}
}
