package neuralnet

import (
	"math/rand"

	"gorgonia.org/tensor"
)

func newDense(shape ...int) *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(shape...))
}

// FromBacking wraps data in a float64 tensor without copying it.
func FromBacking(data []float64, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float64s returns the backing slice of a float64 tensor.
func Float64s(t *tensor.Dense) []float64 {
	return t.Data().([]float64)
}

// Row returns row i of a 2D tensor as a slice sharing its backing array.
func Row(t *tensor.Dense, i int) []float64 {
	cols := t.Shape()[1]
	return Float64s(t)[i*cols : (i+1)*cols]
}

func sameShape(t *tensor.Dense, shape ...int) bool {
	return t.Shape().Eq(tensor.Shape(shape))
}

func fillUniform(t *tensor.Dense, bound float64, rng *rand.Rand) {
	data := Float64s(t)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * bound
	}
}

func zero(t *tensor.Dense) {
	data := Float64s(t)
	for i := range data {
		data[i] = 0
	}
}
