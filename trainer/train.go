package trainer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"siamese/mnist"
	"siamese/neuralnet"
)

const prefetchDepth = 2

// Train runs one epoch over the training split. Each anchor batch is paired
// according to the session's Pairing strategy.
func Train(ctx context.Context, s *Session, epoch int) error {
	steps := s.plannedSteps()
	if s.Config.MaxSteps > 0 && steps > s.Config.MaxSteps {
		return errors.Wrapf(neuralnet.ErrResourceExhausted,
			"pairing=%s schedules %d steps per epoch, limit is %d", s.Config.Pairing, steps, s.Config.MaxSteps)
	}
	if s.Config.Pairing == PairingCrossProduct {
		s.Log.Printf("pairing=%s schedules %d steps per epoch (quadratic in %d batches)",
			s.Config.Pairing, steps, s.Train.Len())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var window Window
	idx := 0
	last := time.Now()
	for anchor := range mnist.Prefetch(ctx, s.Train.Iter(), prefetchDepth) {
		var loss float64
		var err error
		switch s.Config.Pairing {
		case PairingCrossProduct:
			loss, err = crossProductStep(s, anchor, &window, last)
		default:
			loss, err = sampledStep(s, anchor, &window, last)
		}
		if err != nil {
			return errors.Wrapf(err, "epoch %d batch %d", epoch, idx)
		}
		if idx%s.Config.LogInterval == 0 {
			logProgress(s, epoch, idx, loss, window.Snapshot())
		}
		idx++
		last = time.Now()
	}
	return ctx.Err()
}

func sampledStep(s *Session, anchor mnist.Batch, w *Window, start time.Time) (float64, error) {
	partner := s.pairs.partners(anchor)
	ready := time.Now()
	loss, err := s.Step(anchor, partner)
	if err != nil {
		return 0, err
	}
	w.Record(anchor.Len(), ready.Sub(start), time.Since(ready), loss)
	return loss, nil
}

// crossProductStep pairs anchor with every batch of a fresh training pass.
// The returned loss is the one of the final step.
func crossProductStep(s *Session, anchor mnist.Batch, w *Window, start time.Time) (float64, error) {
	var loss float64
	it := s.Train.Iter()
	for {
		partner, ok := it.Next()
		if !ok {
			return loss, nil
		}
		ready := time.Now()
		l, err := s.Step(anchor, partner)
		if err != nil {
			return 0, err
		}
		loss = l
		done := time.Now()
		w.Record(anchor.Len(), ready.Sub(start), done.Sub(ready), loss)
		start = done
	}
}

func logProgress(s *Session, epoch, idx int, loss float64, snap Snapshot) {
	seen := idx * s.Config.BatchSize
	total := s.Train.Samples()
	s.Log.Printf("Train Epoch: %d [%d/%d (%.0f%%)]\tLoss: %.6f\tpairs/s: %.1f data=%.2fms compute=%.2fms",
		epoch, seen, total, 100*float64(idx)/float64(s.Train.Len()), loss,
		snap.PairsPerSec, snap.AvgDataMS, snap.AvgComputeMS)
}
