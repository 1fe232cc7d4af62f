package neuralnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Param is one named trainable tensor and the gradient accumulated for it.
type Param struct {
	Name  string
	Value *tensor.Dense
	Grad  *tensor.Dense
}

func newParam(name string, shape ...int) *Param {
	return &Param{Name: name, Value: newDense(shape...), Grad: newDense(shape...)}
}

// Linear is a fully connected stage: out = act(in·Wᵀ + b).
type Linear struct {
	in, out    int
	weight     *Param
	bias       *Param
	activation ActivationFunction
}

type linearCache struct {
	input  *tensor.Dense
	preAct *tensor.Dense
}

func NewLinear(name string, in, out int, activation ActivationFunction, rng *rand.Rand) *Linear {
	l := &Linear{
		in:         in,
		out:        out,
		weight:     newParam(name+".weight", out, in),
		bias:       newParam(name+".bias", out),
		activation: activation,
	}
	bound := 1 / math.Sqrt(float64(in))
	fillUniform(l.weight.Value, bound, rng)
	fillUniform(l.bias.Value, bound, rng)
	return l
}

func (l *Linear) params() []*Param {
	return []*Param{l.weight, l.bias}
}

func (l *Linear) forward(x *tensor.Dense) (*tensor.Dense, *linearCache, error) {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.in {
		return nil, nil, shapeErrorf("linear %s: input %v, want (B, %d)", l.weight.Name, shape, l.in)
	}
	batch := shape[0]

	pre := newDense(batch, l.out)
	in := mat.NewDense(batch, l.in, Float64s(x))
	w := mat.NewDense(l.out, l.in, Float64s(l.weight.Value))
	out := mat.NewDense(batch, l.out, Float64s(pre))
	out.Mul(in, w.T())

	bias := Float64s(l.bias.Value)
	for i := 0; i < batch; i++ {
		floats.Add(Row(pre, i), bias)
	}

	act := newDense(batch, l.out)
	actData := Float64s(act)
	for i, v := range Float64s(pre) {
		actData[i] = l.activation.Activate(v)
	}
	return act, &linearCache{input: x, preAct: pre}, nil
}

// backward accumulates weight and bias gradients and returns ∂L/∂input.
func (l *Linear) backward(c *linearCache, gradOut *tensor.Dense) (*tensor.Dense, error) {
	batch := c.input.Shape()[0]
	if !sameShape(gradOut, batch, l.out) {
		return nil, shapeErrorf("linear %s: gradient %v, want (%d, %d)", l.weight.Name, gradOut.Shape(), batch, l.out)
	}

	delta := newDense(batch, l.out)
	deltaData := Float64s(delta)
	g := Float64s(gradOut)
	for i, v := range Float64s(c.preAct) {
		deltaData[i] = g[i] * l.activation.Derivative(v)
	}

	d := mat.NewDense(batch, l.out, deltaData)
	in := mat.NewDense(batch, l.in, Float64s(c.input))

	var gw mat.Dense
	gw.Mul(d.T(), in)
	floats.Add(Float64s(l.weight.Grad), gw.RawMatrix().Data)

	gb := Float64s(l.bias.Grad)
	for i := 0; i < batch; i++ {
		floats.Add(gb, Row(delta, i))
	}

	gradIn := newDense(batch, l.in)
	w := mat.NewDense(l.out, l.in, Float64s(l.weight.Value))
	mat.NewDense(batch, l.in, Float64s(gradIn)).Mul(d, w)
	return gradIn, nil
}
