package neuralnet

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"siamese/device"
)

const (
	ImageSize     = 28
	EmbeddingSize = 10
)

// TwinConfig fixes the architecture of the feature extractor.
type TwinConfig struct {
	Kernel   int
	Conv1    int
	Conv2    int
	Hidden   int
	Dropout  float64
	Pool     int
	Channels int
}

func DefaultTwinConfig() TwinConfig {
	return TwinConfig{
		Kernel:   5,
		Conv1:    20,
		Conv2:    50,
		Hidden:   500,
		Dropout:  0.5,
		Pool:     2,
		Channels: 1,
	}
}

// Twin is the shared-weight tower of the siamese network. Both images of a
// pair go through the same Twin, so their gradients land in the same
// parameters.
type Twin struct {
	cfg   TwinConfig
	conv1 *Conv2D
	pool1 *MaxPool2D
	conv2 *Conv2D
	drop  *Dropout2D
	pool2 *MaxPool2D
	fc1   *Linear
	fc2   *Linear

	flat int
	dev  device.Device
	rng  *rand.Rand
}

// Trace holds the activations of one forward pass, needed to backpropagate
// through that pass. Output is the (B, EmbeddingSize) embedding.
type Trace struct {
	Output *tensor.Dense

	batch  int
	conv1  *convCache
	pool1  *poolCache
	conv2  *convCache
	drop   *dropoutCache
	pool2  *poolCache
	pooled []int
	fc1    *linearCache
	fc2    *linearCache
}

// NewTwin builds the extractor with parameters drawn from seed.
func NewTwin(cfg TwinConfig, dev device.Device, seed int64) (*Twin, error) {
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, errors.Errorf("twin: dropout %v outside [0, 1)", cfg.Dropout)
	}
	side := ImageSize
	for i := 0; i < 2; i++ {
		side = (side - cfg.Kernel + 1) / cfg.Pool
	}
	if side <= 0 {
		return nil, shapeErrorf("twin: kernel %d and pool %d leave no spatial extent for %dx%d input",
			cfg.Kernel, cfg.Pool, ImageSize, ImageSize)
	}

	rng := rand.New(rand.NewSource(seed))
	t := &Twin{
		cfg:   cfg,
		conv1: NewConv2D("conv1", cfg.Channels, cfg.Conv1, cfg.Kernel, rng),
		pool1: NewMaxPool2D(cfg.Pool, cfg.Pool),
		conv2: NewConv2D("conv2", cfg.Conv1, cfg.Conv2, cfg.Kernel, rng),
		drop:  NewDropout2D(cfg.Dropout),
		pool2: NewMaxPool2D(cfg.Pool, cfg.Pool),
		flat:  cfg.Conv2 * side * side,
		dev:   dev,
		rng:   rng,
	}
	t.fc1 = NewLinear("fc1", t.flat, cfg.Hidden, ReLU{}, rng)
	t.fc2 = NewLinear("fc2", cfg.Hidden, EmbeddingSize, Identity{}, rng)
	return t, nil
}

// Params returns the parameters in a stable order.
func (t *Twin) Params() []*Param {
	var ps []*Param
	ps = append(ps, t.conv1.params()...)
	ps = append(ps, t.conv2.params()...)
	ps = append(ps, t.fc1.params()...)
	ps = append(ps, t.fc2.params()...)
	return ps
}

func (t *Twin) ZeroGrad() {
	for _, p := range t.Params() {
		zero(p.Grad)
	}
}

// Embed maps a (B, C, 28, 28) batch to (B, EmbeddingSize) embeddings.
// Dropout is active only when train is true.
func (t *Twin) Embed(x *tensor.Dense, train bool) (*Trace, error) {
	shape := x.Shape()
	if len(shape) != 4 || shape[0] < 1 || shape[1] != t.cfg.Channels || shape[2] != ImageSize || shape[3] != ImageSize {
		return nil, shapeErrorf("twin: input %v, want (B, %d, %d, %d)", shape, t.cfg.Channels, ImageSize, ImageSize)
	}
	tr := &Trace{batch: shape[0]}

	h, c, err := t.conv1.forward(t.dev, x)
	if err != nil {
		return nil, err
	}
	tr.conv1 = c
	if h, tr.pool1, err = t.pool1.forward(t.dev, h); err != nil {
		return nil, err
	}
	if h, tr.conv2, err = t.conv2.forward(t.dev, h); err != nil {
		return nil, err
	}
	if h, tr.drop, err = t.drop.forward(h, train, t.rng); err != nil {
		return nil, err
	}
	if h, tr.pool2, err = t.pool2.forward(t.dev, h); err != nil {
		return nil, err
	}
	tr.pooled = []int(h.Shape().Clone())

	flat := FromBacking(Float64s(h), tr.batch, t.flat)
	if h, tr.fc1, err = t.fc1.forward(flat); err != nil {
		return nil, err
	}
	if tr.Output, tr.fc2, err = t.fc2.forward(h); err != nil {
		return nil, err
	}
	return tr, nil
}

// Forward runs both images of each pair through the shared tower.
func (t *Twin) Forward(a, b *tensor.Dense, train bool) (*Trace, *Trace, error) {
	ta, err := t.Embed(a, train)
	if err != nil {
		return nil, nil, errors.Wrap(err, "first tower")
	}
	tb, err := t.Embed(b, train)
	if err != nil {
		return nil, nil, errors.Wrap(err, "second tower")
	}
	return ta, tb, nil
}

// Backward propagates ∂L/∂embedding through the pass recorded in tr and adds
// the result to the parameter gradients.
func (t *Twin) Backward(tr *Trace, gradOut *tensor.Dense) error {
	if !sameShape(gradOut, tr.batch, EmbeddingSize) {
		return shapeErrorf("twin: gradient %v, want (%d, %d)", gradOut.Shape(), tr.batch, EmbeddingSize)
	}
	g, err := t.fc2.backward(tr.fc2, gradOut)
	if err != nil {
		return err
	}
	if g, err = t.fc1.backward(tr.fc1, g); err != nil {
		return err
	}
	g = FromBacking(Float64s(g), tr.pooled...)
	if g, err = t.pool2.backward(tr.pool2, g); err != nil {
		return err
	}
	g = t.drop.backward(tr.drop, g)
	if g, err = t.conv2.backward(t.dev, tr.conv2, g); err != nil {
		return err
	}
	if g, err = t.pool1.backward(tr.pool1, g); err != nil {
		return err
	}
	_, err = t.conv1.backward(t.dev, tr.conv1, g)
	return err
}

func (t *Twin) String() string {
	var sb strings.Builder
	sb.WriteString("Twin(\n")
	fmt.Fprintf(&sb, "  (conv1): Conv2d(%d, %d, kernel_size=(%d, %d), stride=(1, 1))\n", t.cfg.Channels, t.cfg.Conv1, t.cfg.Kernel, t.cfg.Kernel)
	fmt.Fprintf(&sb, "  (pool1): MaxPool2d(kernel_size=%d, stride=%d)\n", t.pool1.size, t.pool1.stride)
	fmt.Fprintf(&sb, "  (conv2): Conv2d(%d, %d, kernel_size=(%d, %d), stride=(1, 1))\n", t.cfg.Conv1, t.cfg.Conv2, t.cfg.Kernel, t.cfg.Kernel)
	fmt.Fprintf(&sb, "  (conv2_drop): Dropout2d(p=%v)\n", t.drop.p)
	fmt.Fprintf(&sb, "  (pool2): MaxPool2d(kernel_size=%d, stride=%d)\n", t.pool2.size, t.pool2.stride)
	fmt.Fprintf(&sb, "  (fc1): Linear(in_features=%d, out_features=%d) + ReLU\n", t.fc1.in, t.fc1.out)
	fmt.Fprintf(&sb, "  (fc2): Linear(in_features=%d, out_features=%d)\n", t.fc2.in, t.fc2.out)
	sb.WriteString(")")
	return sb.String()
}
