package neuralnet

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	Step(params []*Param) error
}

// SGD implements stochastic gradient descent with momentum:
//
//	v = momentum·v + g
//	p = p - lr·v
type SGD struct {
	Lr       float64
	Momentum float64

	velocity map[string]*tensor.Dense
}

func NewSGD(lr, momentum float64) *SGD {
	return &SGD{Lr: lr, Momentum: momentum, velocity: make(map[string]*tensor.Dense)}
}

// Step applies one update. Gradients are left untouched; callers zero them
// before the next backward pass.
func (o *SGD) Step(params []*Param) error {
	if o.Lr <= 0 {
		return errors.Errorf("sgd: invalid learning rate %v", o.Lr)
	}
	if o.velocity == nil {
		o.velocity = make(map[string]*tensor.Dense)
	}
	for _, p := range params {
		if !p.Grad.Shape().Eq(p.Value.Shape()) {
			return shapeErrorf("sgd: %s gradient %v, value %v", p.Name, p.Grad.Shape(), p.Value.Shape())
		}
		v, ok := o.velocity[p.Name]
		if !ok {
			v = newDense(p.Value.Shape()...)
			o.velocity[p.Name] = v
		}
		vel := Float64s(v)
		floats.Scale(o.Momentum, vel)
		floats.Add(vel, Float64s(p.Grad))
		floats.AddScaled(Float64s(p.Value), -o.Lr, vel)
	}
	return nil
}
