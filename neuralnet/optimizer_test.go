package neuralnet

import (
	"math/rand"
	"testing"

	"siamese/device"
)

func TestSGDStepInvalidLearningRate(t *testing.T) {
	sgd := NewSGD(0, 0.5)
	if err := sgd.Step([]*Param{newParam("w", 1)}); err == nil {
		t.Error("SGD.Step with lr=0 did not return error")
	}
}

func TestSGDStepMomentum(t *testing.T) {
	const epsilon = 1e-12
	sgd := NewSGD(0.1, 0.5)
	p := newParam("w", 2)
	copy(Float64s(p.Value), []float64{1, -1})

	grads := [][]float64{{0.2, 0.4}, {0.2, 0.4}, {-1, 0}}
	value := []float64{1, -1}
	velocity := []float64{0, 0}
	for step, g := range grads {
		copy(Float64s(p.Grad), g)
		if err := sgd.Step([]*Param{p}); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		for i := range value {
			velocity[i] = 0.5*velocity[i] + g[i]
			value[i] -= 0.1 * velocity[i]
			if got := Float64s(p.Value)[i]; !floatEquals(got, value[i], epsilon) {
				t.Errorf("step %d, w[%d] = %v; want %v", step, i, got, value[i])
			}
			if got := Float64s(sgd.velocity["w"])[i]; !floatEquals(got, velocity[i], epsilon) {
				t.Errorf("step %d, v[%d] = %v; want %v", step, i, got, velocity[i])
			}
		}
	}
}

func TestSGDStepShapeMismatch(t *testing.T) {
	p := &Param{Name: "w", Value: newDense(2, 2), Grad: newDense(4)}
	if err := NewSGD(0.1, 0).Step([]*Param{p}); err == nil {
		t.Error("SGD.Step with mismatched gradient did not return error")
	}
}

// Pairs of two linearly separable clusters: training must pull same-class
// embeddings together and push the clusters apart.
func TestTrainingReducesContrastiveLoss(t *testing.T) {
	twin, err := NewTwin(smallTwinConfig(), device.CPU(2), 21)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(22))
	const perClass = 4
	class := func(c int) []float64 {
		img := make([]float64, ImageSize*ImageSize)
		for i := range img {
			img[i] = rng.NormFloat64() * 0.1
			if (i/ImageSize < ImageSize/2) == (c == 0) {
				img[i] += 1
			}
		}
		return img
	}
	var aData, bData []float64
	var labels []float64
	for i := 0; i < perClass; i++ {
		for _, pair := range [][2]int{{0, 0}, {1, 1}, {0, 1}, {1, 0}} {
			aData = append(aData, class(pair[0])...)
			bData = append(bData, class(pair[1])...)
			if pair[0] == pair[1] {
				labels = append(labels, SamePair)
			} else {
				labels = append(labels, DifferentPair)
			}
		}
	}
	n := len(labels)
	a := FromBacking(aData, n, 1, ImageSize, ImageSize)
	b := FromBacking(bData, n, 1, ImageSize, ImageSize)

	loss := NewContrastiveLoss(DefaultMargin)
	sgd := NewSGD(0.01, 0.5)
	step := func() float64 {
		twin.ZeroGrad()
		ta, tb, err := twin.Forward(a, b, true)
		if err != nil {
			t.Fatal(err)
		}
		v, ga, gb, err := loss.Compute(ta.Output, tb.Output, labels)
		if err != nil {
			t.Fatal(err)
		}
		if err := twin.Backward(ta, ga); err != nil {
			t.Fatal(err)
		}
		if err := twin.Backward(tb, gb); err != nil {
			t.Fatal(err)
		}
		if err := sgd.Step(twin.Params()); err != nil {
			t.Fatal(err)
		}
		return v
	}

	const window = 10
	var first, last float64
	for i := 0; i < 6*window; i++ {
		v := step()
		if i < window {
			first += v
		}
		if i >= 5*window {
			last += v
		}
	}
	if last >= first {
		t.Fatalf("average loss did not decrease: first %d steps %.4f, last %d steps %.4f",
			window, first/window, window, last/window)
	}
}
