package trainer

import (
	"context"

	"github.com/pkg/errors"

	"siamese/mnist"
	"siamese/neuralnet"
)

// EvalResult summarizes one pass over the test split.
type EvalResult struct {
	// Loss is the mean cross-entropy per batch, averaged over batches.
	Loss    float64
	Correct int
	Total   int
}

func (r EvalResult) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.Correct) / float64(r.Total)
}

// Evaluate scores single images on the test split, reading the embedding as
// class logits. Dropout is disabled and no parameter changes.
func Evaluate(ctx context.Context, s *Session) (EvalResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var res EvalResult
	var sum float64
	batches := 0
	for b := range mnist.Prefetch(ctx, s.Test.Iter(), prefetchDepth) {
		tr, err := s.Net.Embed(b.Images, false)
		if err != nil {
			return EvalResult{}, errors.Wrapf(err, "evaluate batch %d", batches)
		}
		var batchLoss float64
		for i, label := range b.Labels {
			logits := neuralnet.Row(tr.Output, i)
			batchLoss += s.head.Compute(logits, label)
			if neuralnet.Predict(logits) == label {
				res.Correct++
			}
		}
		sum += batchLoss / float64(b.Len())
		res.Total += b.Len()
		batches++
	}
	if err := ctx.Err(); err != nil {
		return EvalResult{}, err
	}
	if batches > 0 {
		res.Loss = sum / float64(batches)
	}
	s.Log.Printf("\nTest set: Average loss: %.4f, Accuracy: %d/%d (%.0f%%)\n",
		res.Loss, res.Correct, res.Total, res.Accuracy())
	return res, nil
}
