// Package trainer drives contrastive training of the twin network on MNIST.
package trainer

import (
	"log"

	"github.com/pkg/errors"

	"siamese/device"
	"siamese/mnist"
	"siamese/neuralnet"
)

// Session owns every object a run touches. Nothing in the package keeps
// global state; tests build their own sessions over synthetic sets.
type Session struct {
	Config Config
	Device device.Device
	Net    *neuralnet.Twin
	Loss   *neuralnet.ContrastiveLoss
	Opt    neuralnet.Optimizer
	Train  *mnist.Loader
	Test   *mnist.Loader
	Log    *log.Logger

	head  neuralnet.CrossEntropy
	pairs *pairSampler
}

// NewSession validates cfg and wires the network, loss, optimizer and
// loaders for the given splits.
func NewSession(cfg Config, train, test *mnist.Set, dev device.Device, logger *log.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if logger == nil {
		return nil, errors.New("trainer: logger must be set")
	}

	net, err := neuralnet.NewTwin(cfg.Twin, dev, cfg.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "build network")
	}
	trainLoader, err := mnist.NewLoader(train, cfg.BatchSize, true, cfg.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "train loader")
	}
	testLoader, err := mnist.NewLoader(test, cfg.TestBatchSize, false, cfg.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "test loader")
	}

	return &Session{
		Config: cfg,
		Device: dev,
		Net:    net,
		Loss:   neuralnet.NewContrastiveLoss(cfg.Margin),
		Opt:    neuralnet.NewSGD(cfg.LearningRate, cfg.Momentum),
		Train:  trainLoader,
		Test:   testLoader,
		Log:    logger,
		pairs:  newPairSampler(train, cfg.SameClassRatio, cfg.Seed+1),
	}, nil
}

// Step performs one optimizer update on the pairs formed by position from
// a and b. Pair labels come from the samples' classes.
func (s *Session) Step(a, b mnist.Batch) (float64, error) {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	a, b = truncate(a, n), truncate(b, n)
	labels := PairLabels(a.Labels, b.Labels)

	s.Net.ZeroGrad()
	ta, tb, err := s.Net.Forward(a.Images, b.Images, true)
	if err != nil {
		return 0, err
	}
	loss, gradA, gradB, err := s.Loss.Compute(ta.Output, tb.Output, labels)
	if err != nil {
		return 0, err
	}
	if err := s.Net.Backward(ta, gradA); err != nil {
		return 0, errors.Wrap(err, "first tower backward")
	}
	if err := s.Net.Backward(tb, gradB); err != nil {
		return 0, errors.Wrap(err, "second tower backward")
	}
	if err := s.Opt.Step(s.Net.Params()); err != nil {
		return 0, errors.Wrap(err, "optimizer step")
	}
	return loss, nil
}

// plannedSteps is the number of optimizer steps one epoch schedules.
func (s *Session) plannedSteps() int {
	n := s.Train.Len()
	if s.Config.Pairing == PairingCrossProduct {
		return n * n
	}
	return n
}
