package neuralnet

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when a tensor does not have the dimensions a
	// layer or loss expects.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrResourceExhausted is returned when a run would exceed its step or
	// memory ceiling.
	ErrResourceExhausted = errors.New("resource exhausted")
)

func shapeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}
