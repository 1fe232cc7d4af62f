package neuralnet

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
)

// Helper function for comparing floats with a tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func randomEmbeddings(rng *rand.Rand, batch, dim int, scale float64) []float64 {
	out := make([]float64, batch*dim)
	for i := range out {
		out[i] = rng.NormFloat64() * scale
	}
	return out
}

func TestContrastiveLossKnownValues(t *testing.T) {
	tests := []struct {
		description string
		a, b        []float64
		label       float64
		want        float64
	}{
		{"same class, identical", []float64{1, 2}, []float64{1, 2}, SamePair, 0},
		{"same class, distance 5", []float64{0, 0}, []float64{3, 4}, SamePair, 25},
		{"different class, beyond margin", []float64{0, 0}, []float64{3, 4}, DifferentPair, 0},
		{"different class, exactly at margin", []float64{0, 0}, []float64{2, 0}, DifferentPair, 0},
		{"different class, inside margin", []float64{0, 0}, []float64{0, 0.5}, DifferentPair, 2.25},
		{"different class, identical", []float64{1, 1}, []float64{1, 1}, DifferentPair, 4},
	}
	loss := NewContrastiveLoss(DefaultMargin)
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			a := FromBacking(tt.a, 1, len(tt.a))
			b := FromBacking(tt.b, 1, len(tt.b))
			got, _, _, err := loss.Compute(a, b, []float64{tt.label})
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if !floatEquals(got, tt.want, 1e-9) {
				t.Errorf("Compute = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestContrastiveLossNonNegativeAndSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	loss := NewContrastiveLoss(DefaultMargin)
	const batch, dim = 16, EmbeddingSize
	for trial := 0; trial < 50; trial++ {
		a := FromBacking(randomEmbeddings(rng, batch, dim, 0.5), batch, dim)
		b := FromBacking(randomEmbeddings(rng, batch, dim, 0.5), batch, dim)
		labels := make([]float64, batch)
		for i := range labels {
			labels[i] = float64(rng.Intn(2))
		}
		ab, _, _, err := loss.Compute(a, b, labels)
		if err != nil {
			t.Fatal(err)
		}
		ba, _, _, err := loss.Compute(b, a, labels)
		if err != nil {
			t.Fatal(err)
		}
		if ab < 0 {
			t.Fatalf("trial %d: loss %v is negative", trial, ab)
		}
		if !floatEquals(ab, ba, 1e-12) {
			t.Fatalf("trial %d: loss(a, b) = %v, loss(b, a) = %v", trial, ab, ba)
		}
	}
}

func TestContrastiveLossGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	loss := NewContrastiveLoss(DefaultMargin)
	const batch, dim = 6, 4
	aData := randomEmbeddings(rng, batch, dim, 0.4)
	bData := randomEmbeddings(rng, batch, dim, 0.4)
	labels := []float64{SamePair, DifferentPair, SamePair, DifferentPair, DifferentPair, SamePair}

	_, gradA, gradB, err := loss.Compute(FromBacking(aData, batch, dim), FromBacking(bData, batch, dim), labels)
	if err != nil {
		t.Fatal(err)
	}

	f := func(x []float64) float64 {
		v, _, _, err := loss.Compute(FromBacking(x, batch, dim), FromBacking(bData, batch, dim), labels)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	numeric := fd.Gradient(nil, f, aData, &fd.Settings{Formula: fd.Central})
	for i, want := range numeric {
		if got := Float64s(gradA)[i]; !floatEquals(got, want, 1e-5) {
			t.Errorf("gradA[%d] = %v; numeric %v", i, got, want)
		}
		if got := Float64s(gradB)[i]; !floatEquals(got, -want, 1e-5) {
			t.Errorf("gradB[%d] = %v; want %v", i, got, -want)
		}
	}
}

func TestContrastiveLossShapeMismatch(t *testing.T) {
	loss := NewContrastiveLoss(DefaultMargin)
	a := FromBacking(make([]float64, 4), 2, 2)
	b := FromBacking(make([]float64, 6), 2, 3)
	if _, _, _, err := loss.Compute(a, b, []float64{0, 1}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("mismatched embeddings: err = %v; want ErrShapeMismatch", err)
	}
	if _, _, _, err := loss.Compute(a, a, []float64{0}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short labels: err = %v; want ErrShapeMismatch", err)
	}
}

func TestCrossEntropyCompute(t *testing.T) {
	ce := &CrossEntropy{}
	got := ce.Compute([]float64{0, 0}, 0)
	want := -math.Log(0.5)
	if !floatEquals(got, want, 1e-9) {
		t.Errorf("CrossEntropy.Compute = %v; want approx %v", got, want)
	}
	if got := ce.Compute([]float64{1000, 0}, 0); got < 0 || got > 1e-9 {
		t.Errorf("CrossEntropy.Compute on a confident logit = %v; want ~0", got)
	}
}

func TestPredict(t *testing.T) {
	if got := Predict([]float64{0.1, 3, -2, 2.9}); got != 1 {
		t.Errorf("Predict = %d; want 1", got)
	}
}
