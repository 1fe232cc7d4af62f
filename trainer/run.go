package trainer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SnapshotPath places name next to the running executable.
func SnapshotPath(name string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "locate executable")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), name), nil
}

// Run trains for the configured number of epochs, evaluating after each,
// writes the final parameters to path and prints the model summary last.
// Nothing is written when an epoch fails.
func Run(ctx context.Context, s *Session, path string) error {
	runID := uuid.NewString()
	s.Log.Printf("run=%s device=%s pairing=%s epochs=%d batch=%d train=%d test=%d",
		runID, s.Device, s.Config.Pairing, s.Config.Epochs, s.Config.BatchSize,
		s.Train.Samples(), s.Test.Samples())

	start := time.Now()
	for epoch := 1; epoch <= s.Config.Epochs; epoch++ {
		if err := Train(ctx, s, epoch); err != nil {
			return errors.Wrapf(err, "train epoch %d", epoch)
		}
		if _, err := Evaluate(ctx, s); err != nil {
			return errors.Wrapf(err, "evaluate epoch %d", epoch)
		}
	}

	if err := s.Net.Save(path, runID); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	s.Log.Printf("run=%s finished in %s, parameters written to %s",
		runID, time.Since(start).Round(time.Millisecond), path)
	s.Log.Println(s.Net)
	return nil
}
