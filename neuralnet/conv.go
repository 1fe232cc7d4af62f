package neuralnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"siamese/device"
)

// Conv2D is a valid (unpadded) stride-1 convolution over NCHW input, computed
// per sample as an im2col matrix product.
type Conv2D struct {
	inC, outC, kernel int
	weight            *Param // (outC, inC, k, k)
	bias              *Param // (outC)
}

type convCache struct {
	inShape []int
	outH    int
	outW    int
	cols    [][]float64 // per sample, (inC·k·k) × (outH·outW)
}

func NewConv2D(name string, inC, outC, kernel int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		inC:    inC,
		outC:   outC,
		kernel: kernel,
		weight: newParam(name+".weight", outC, inC, kernel, kernel),
		bias:   newParam(name+".bias", outC),
	}
	bound := 1 / math.Sqrt(float64(inC*kernel*kernel))
	fillUniform(c.weight.Value, bound, rng)
	fillUniform(c.bias.Value, bound, rng)
	return c
}

func (c *Conv2D) params() []*Param {
	return []*Param{c.weight, c.bias}
}

func (c *Conv2D) patch() int {
	return c.inC * c.kernel * c.kernel
}

func (c *Conv2D) forward(dev device.Device, x *tensor.Dense) (*tensor.Dense, *convCache, error) {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != c.inC || shape[2] < c.kernel || shape[3] < c.kernel {
		return nil, nil, shapeErrorf("conv %s: input %v, want (B, %d, >=%d, >=%d)",
			c.weight.Name, shape, c.inC, c.kernel, c.kernel)
	}
	batch, h, w := shape[0], shape[2], shape[3]
	outH, outW := h-c.kernel+1, w-c.kernel+1
	plane := outH * outW

	cache := &convCache{
		inShape: []int{batch, c.inC, h, w},
		outH:    outH,
		outW:    outW,
		cols:    make([][]float64, batch),
	}
	out := newDense(batch, c.outC, outH, outW)
	in := Float64s(x)
	outData := Float64s(out)
	weight := mat.NewDense(c.outC, c.patch(), Float64s(c.weight.Value))
	bias := Float64s(c.bias.Value)

	dev.For(batch, func(_, lo, hi int) {
		for b := lo; b < hi; b++ {
			cols := c.im2col(in[b*c.inC*h*w:(b+1)*c.inC*h*w], h, w, outH, outW)
			cache.cols[b] = cols
			dst := outData[b*c.outC*plane : (b+1)*c.outC*plane]
			mat.NewDense(c.outC, plane, dst).Mul(weight, mat.NewDense(c.patch(), plane, cols))
			for o := 0; o < c.outC; o++ {
				floats.AddConst(bias[o], dst[o*plane:(o+1)*plane])
			}
		}
	})
	return out, cache, nil
}

func (c *Conv2D) im2col(img []float64, h, w, outH, outW int) []float64 {
	plane := outH * outW
	cols := make([]float64, c.patch()*plane)
	row := 0
	for ch := 0; ch < c.inC; ch++ {
		src := img[ch*h*w : (ch+1)*h*w]
		for ky := 0; ky < c.kernel; ky++ {
			for kx := 0; kx < c.kernel; kx++ {
				dst := cols[row*plane : (row+1)*plane]
				for oy := 0; oy < outH; oy++ {
					copy(dst[oy*outW:(oy+1)*outW], src[(oy+ky)*w+kx:(oy+ky)*w+kx+outW])
				}
				row++
			}
		}
	}
	return cols
}

func (c *Conv2D) col2im(cols []float64, img []float64, h, w, outH, outW int) {
	plane := outH * outW
	row := 0
	for ch := 0; ch < c.inC; ch++ {
		dst := img[ch*h*w : (ch+1)*h*w]
		for ky := 0; ky < c.kernel; ky++ {
			for kx := 0; kx < c.kernel; kx++ {
				src := cols[row*plane : (row+1)*plane]
				for oy := 0; oy < outH; oy++ {
					floats.Add(dst[(oy+ky)*w+kx:(oy+ky)*w+kx+outW], src[oy*outW:(oy+1)*outW])
				}
				row++
			}
		}
	}
}

// backward accumulates weight and bias gradients and returns ∂L/∂input.
// Each worker chunk reduces into its own buffer; the buffers are summed after
// the fan-out so parameter gradients are never written concurrently.
func (c *Conv2D) backward(dev device.Device, cache *convCache, gradOut *tensor.Dense) (*tensor.Dense, error) {
	batch, h, w := cache.inShape[0], cache.inShape[2], cache.inShape[3]
	if !sameShape(gradOut, batch, c.outC, cache.outH, cache.outW) {
		return nil, shapeErrorf("conv %s: gradient %v, want (%d, %d, %d, %d)",
			c.weight.Name, gradOut.Shape(), batch, c.outC, cache.outH, cache.outW)
	}
	plane := cache.outH * cache.outW
	chunks := dev.Chunks(batch)
	gw := make([][]float64, chunks)
	gb := make([][]float64, chunks)

	gradIn := newDense(cache.inShape...)
	gIn := Float64s(gradIn)
	g := Float64s(gradOut)
	weight := mat.NewDense(c.outC, c.patch(), Float64s(c.weight.Value))

	dev.For(batch, func(chunk, lo, hi int) {
		gwBuf := make([]float64, c.outC*c.patch())
		gbBuf := make([]float64, c.outC)
		gwMat := mat.NewDense(c.outC, c.patch(), gwBuf)
		var step mat.Dense
		gradCols := make([]float64, c.patch()*plane)
		gColsMat := mat.NewDense(c.patch(), plane, gradCols)

		for b := lo; b < hi; b++ {
			gOut := mat.NewDense(c.outC, plane, g[b*c.outC*plane:(b+1)*c.outC*plane])
			cols := mat.NewDense(c.patch(), plane, cache.cols[b])

			step.Reset()
			step.Mul(gOut, cols.T())
			gwMat.Add(gwMat, &step)
			for o := 0; o < c.outC; o++ {
				gbBuf[o] += floats.Sum(gOut.RawRowView(o))
			}

			gColsMat.Mul(weight.T(), gOut)
			c.col2im(gradCols, gIn[b*c.inC*h*w:(b+1)*c.inC*h*w], h, w, cache.outH, cache.outW)
		}
		gw[chunk] = gwBuf
		gb[chunk] = gbBuf
	})

	for i := 0; i < chunks; i++ {
		floats.Add(Float64s(c.weight.Grad), gw[i])
		floats.Add(Float64s(c.bias.Grad), gb[i])
	}
	return gradIn, nil
}
