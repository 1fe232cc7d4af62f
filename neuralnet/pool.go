package neuralnet

import (
	"math"
	"math/rand"

	"gorgonia.org/tensor"

	"siamese/device"
)

// MaxPool2D downsamples each channel with a size×size window moved by stride.
type MaxPool2D struct {
	size, stride int
}

type poolCache struct {
	inShape []int
	argmax  []int // flat input index feeding each output element
}

func NewMaxPool2D(size, stride int) *MaxPool2D {
	return &MaxPool2D{size: size, stride: stride}
}

func (p *MaxPool2D) outSize(n int) int {
	return (n-p.size)/p.stride + 1
}

func (p *MaxPool2D) forward(dev device.Device, x *tensor.Dense) (*tensor.Dense, *poolCache, error) {
	shape := x.Shape()
	if len(shape) != 4 || shape[2] < p.size || shape[3] < p.size {
		return nil, nil, shapeErrorf("max pool: input %v, want (B, C, >=%d, >=%d)", shape, p.size, p.size)
	}
	batch, channels, h, w := shape[0], shape[1], shape[2], shape[3]
	outH, outW := p.outSize(h), p.outSize(w)

	out := newDense(batch, channels, outH, outW)
	cache := &poolCache{
		inShape: []int{batch, channels, h, w},
		argmax:  make([]int, batch*channels*outH*outW),
	}
	in := Float64s(x)
	outData := Float64s(out)

	dev.For(batch*channels, func(_, lo, hi int) {
		for plane := lo; plane < hi; plane++ {
			base := plane * h * w
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := math.Inf(-1)
					bestIdx := base
					for py := 0; py < p.size; py++ {
						for px := 0; px < p.size; px++ {
							idx := base + (oy*p.stride+py)*w + ox*p.stride + px
							if in[idx] > best {
								best = in[idx]
								bestIdx = idx
							}
						}
					}
					o := (plane*outH+oy)*outW + ox
					outData[o] = best
					cache.argmax[o] = bestIdx
				}
			}
		}
	})
	return out, cache, nil
}

func (p *MaxPool2D) backward(cache *poolCache, gradOut *tensor.Dense) (*tensor.Dense, error) {
	if gradOut.Shape().TotalSize() != len(cache.argmax) {
		return nil, shapeErrorf("max pool: gradient %v does not match %d pooled outputs", gradOut.Shape(), len(cache.argmax))
	}
	gradIn := newDense(cache.inShape...)
	gIn := Float64s(gradIn)
	for o, g := range Float64s(gradOut) {
		gIn[cache.argmax[o]] += g
	}
	return gradIn, nil
}

// Dropout2D zeroes whole channels with probability p during training and
// scales the survivors by 1/(1-p). It is the identity in evaluation mode.
type Dropout2D struct {
	p float64
}

type dropoutCache struct {
	scale   []float64 // per (sample, channel); nil in evaluation mode
	channel int       // elements per channel
}

func NewDropout2D(p float64) *Dropout2D {
	return &Dropout2D{p: p}
}

func (d *Dropout2D) forward(x *tensor.Dense, train bool, rng *rand.Rand) (*tensor.Dense, *dropoutCache, error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, nil, shapeErrorf("dropout2d: input %v, want 4 dimensions", shape)
	}
	if !train || d.p == 0 {
		return x, &dropoutCache{}, nil
	}
	planes := shape[0] * shape[1]
	channel := shape[2] * shape[3]
	cache := &dropoutCache{scale: make([]float64, planes), channel: channel}
	keep := 1 / (1 - d.p)
	for i := range cache.scale {
		if rng.Float64() >= d.p {
			cache.scale[i] = keep
		}
	}

	out := newDense(shape...)
	in := Float64s(x)
	outData := Float64s(out)
	for i, s := range cache.scale {
		if s == 0 {
			continue
		}
		for j := i * channel; j < (i+1)*channel; j++ {
			outData[j] = in[j] * s
		}
	}
	return out, cache, nil
}

func (d *Dropout2D) backward(cache *dropoutCache, gradOut *tensor.Dense) *tensor.Dense {
	if cache.scale == nil {
		return gradOut
	}
	gradIn := newDense(gradOut.Shape()...)
	g := Float64s(gradOut)
	gIn := Float64s(gradIn)
	for i, s := range cache.scale {
		if s == 0 {
			continue
		}
		for j := i * cache.channel; j < (i+1)*cache.channel; j++ {
			gIn[j] = g[j] * s
		}
	}
	return gradIn
}
