package trainer

import "time"

// Window accumulates step statistics between two progress lines.
type Window struct {
	pairs   int
	data    time.Duration
	compute time.Duration
	steps   int
	loss    float64
	last    float64
}

// Record adds one optimizer step to the window.
func (w *Window) Record(pairs int, dataTime, computeTime time.Duration, loss float64) {
	w.pairs += pairs
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.loss += loss
	w.last = loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{LastLoss: w.last}
	total := w.data + w.compute
	if total > 0 {
		snap.PairsPerSec = float64(w.pairs) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
		snap.MeanLoss = w.loss / float64(w.steps)
	}
	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	PairsPerSec  float64
	AvgDataMS    float64
	AvgComputeMS float64
	MeanLoss     float64
	LastLoss     float64
}
