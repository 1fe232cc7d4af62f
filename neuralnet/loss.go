package neuralnet

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Pair labels. A pair of images of the same digit is labelled SamePair.
const (
	SamePair      = 0.0
	DifferentPair = 1.0
)

const DefaultMargin = 2.0

// ContrastiveLoss pulls same-class embeddings together and pushes
// different-class embeddings at least Margin apart.
type ContrastiveLoss struct {
	Margin float64
}

func NewContrastiveLoss(margin float64) *ContrastiveLoss {
	return &ContrastiveLoss{Margin: margin}
}

// Compute returns the batch mean of
//
//	(1-y)·d² + y·max(0, margin-d)²,  d = ||a-b||₂
//
// together with its gradients with respect to a and b.
func (c *ContrastiveLoss) Compute(a, b *tensor.Dense, labels []float64) (float64, *tensor.Dense, *tensor.Dense, error) {
	shape := a.Shape()
	if len(shape) != 2 || !b.Shape().Eq(shape) {
		return 0, nil, nil, shapeErrorf("contrastive loss: embeddings %v and %v", shape, b.Shape())
	}
	batch, dim := shape[0], shape[1]
	if len(labels) != batch {
		return 0, nil, nil, shapeErrorf("contrastive loss: %d labels for %d pairs", len(labels), batch)
	}

	gradA := newDense(batch, dim)
	gradB := newDense(batch, dim)
	n := float64(batch)
	diff := make([]float64, dim)
	var loss float64
	for i, y := range labels {
		ra, rb := Row(a, i), Row(b, i)
		floats.SubTo(diff, ra, rb)
		d := floats.Norm(diff, 2)
		ga := Row(gradA, i)

		if y == SamePair {
			loss += d * d
			// ∂d²/∂a = 2(a-b)
			floats.ScaleTo(ga, 2/n, diff)
		} else {
			hinge := math.Max(0, c.Margin-d)
			loss += hinge * hinge
			// ∂(m-d)²/∂a = -2(m-d)(a-b)/d; zero past the margin and at d = 0
			if hinge > 0 && d > 0 {
				floats.ScaleTo(ga, -2*hinge/(d*n), diff)
			}
		}
		floats.ScaleTo(Row(gradB, i), -1, ga)
	}
	return loss / n, gradA, gradB, nil
}

// CrossEntropy scores raw logits against an integer class label.
type CrossEntropy struct{}

// Compute returns -log softmax(logits)[label].
func (ce *CrossEntropy) Compute(logits []float64, label int) float64 {
	return floats.LogSumExp(logits) - logits[label]
}

// Predict returns the index of the largest logit.
func Predict(logits []float64) int {
	return floats.MaxIdx(logits)
}
