package trainer

import (
	"github.com/pkg/errors"

	"siamese/mnist"
	"siamese/neuralnet"
)

const (
	BatchSize      = 64
	TestBatchSize  = 1000
	Epochs         = 2
	LearningRate   = 0.001
	SGDMomentum    = 0.5
	Seed           = 1
	LogInterval    = 10
	Margin         = neuralnet.DefaultMargin
	SameClassRatio = 0.5
	SnapshotName   = "trained_mnist.npz"

	// MaxStepsPerEpoch bounds the optimizer steps one epoch may schedule.
	// The full MNIST cross product (938² steps) exceeds it.
	MaxStepsPerEpoch = 100000
)

// Pairing selects how partner images are found for each anchor batch.
type Pairing int

const (
	// PairingSampled draws one partner per anchor sample: same class with
	// probability SameClassRatio, otherwise a different class.
	PairingSampled Pairing = iota
	// PairingCrossProduct pairs every training batch with every training
	// batch by position, one step per combination. Quadratic in the number
	// of batches per epoch.
	PairingCrossProduct
)

func (p Pairing) String() string {
	switch p {
	case PairingSampled:
		return "sampled"
	case PairingCrossProduct:
		return "cross-product"
	}
	return "unknown"
}

// Config captures the knobs for a training run. Values are fixed at compile
// time through DefaultConfig.
type Config struct {
	DataDir        string
	Fetch          bool
	BatchSize      int
	TestBatchSize  int
	Epochs         int
	LearningRate   float64
	Momentum       float64
	Margin         float64
	Seed           int64
	LogInterval    int
	Pairing        Pairing
	SameClassRatio float64
	MaxSteps       int
	Workers        int
	SnapshotName   string
	Twin           neuralnet.TwinConfig
}

func DefaultConfig() Config {
	return Config{
		DataDir:        mnist.DefaultDir,
		Fetch:          true,
		BatchSize:      BatchSize,
		TestBatchSize:  TestBatchSize,
		Epochs:         Epochs,
		LearningRate:   LearningRate,
		Momentum:       SGDMomentum,
		Margin:         Margin,
		Seed:           Seed,
		LogInterval:    LogInterval,
		Pairing:        PairingSampled,
		SameClassRatio: SameClassRatio,
		MaxSteps:       MaxStepsPerEpoch,
		SnapshotName:   SnapshotName,
		Twin:           neuralnet.DefaultTwinConfig(),
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.Errorf("batch size must be > 0 (got %d)", c.BatchSize)
	}
	if c.TestBatchSize <= 0 {
		return errors.Errorf("test batch size must be > 0 (got %d)", c.TestBatchSize)
	}
	if c.Epochs < 0 {
		return errors.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning rate must be > 0 (got %v)", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Errorf("momentum must be in [0, 1) (got %v)", c.Momentum)
	}
	if c.Margin <= 0 {
		return errors.Errorf("margin must be > 0 (got %v)", c.Margin)
	}
	if c.SameClassRatio < 0 || c.SameClassRatio > 1 {
		return errors.Errorf("same class ratio must be in [0, 1] (got %v)", c.SameClassRatio)
	}
	if c.Pairing != PairingSampled && c.Pairing != PairingCrossProduct {
		return errors.Errorf("unknown pairing %d", c.Pairing)
	}
	if c.SnapshotName == "" {
		return errors.New("snapshot name must be set")
	}
	if c.LogInterval <= 0 {
		c.LogInterval = LogInterval
	}
	return nil
}
