package neuralnet

type ActivationFunction interface {
	Activate(x float64) float64
	Derivative(x float64) float64
}

type ReLU struct{}

func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Identity leaves its input unchanged. fc2 uses it so the embedding is the raw
// affine output.
type Identity struct{}

func (i Identity) Activate(x float64) float64 {
	return x
}

func (i Identity) Derivative(x float64) float64 {
	return 1
}
