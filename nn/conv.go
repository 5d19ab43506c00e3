package nn

import (
	"gonum.org/v1/gonum/mat"
)

// Conv1D is a 1D convolution over time with "same" padding followed by a ReLU.
type Conv1D struct {
	Kernel int
	W, B   *Param // W: (Kernel·in) × filters
	in     int
}

// Compile time assert that Conv1D implements Layer.
var _ Layer = &Conv1D{}

// NewConv1D creates a convolution with the given kernel width (rounded up to odd) and filters.
func NewConv1D(name string, in, filters, kernel int, init *Initializer) *Conv1D {
	if kernel%2 == 0 {
		kernel++
	}
	c := &Conv1D{
		Kernel: kernel,
		W:      NewParam(name+".kernel", kernel*in, filters),
		B:      NewParam(name+".bias", 1, filters),
		in:     in,
	}
	init.Glorot(c.W, kernel*in, filters)
	return c
}

type convCache struct {
	columns *mat.Dense // steps × (Kernel·in) windows
	pre     *mat.Dense // pre-activation
}

// window copies the input rows around step t into column, zero outside the sequence.
func (c *Conv1D) window(x *mat.Dense, t int, column []float64) {
	steps, _ := x.Dims()
	half := c.Kernel / 2
	for j := 0; j < c.Kernel; j++ {
		src := t + j - half
		if src < 0 || src >= steps {
			continue
		}
		copy(column[j*c.in:(j+1)*c.in], x.RawRowView(src))
	}
}

// Forward implements Layer.
func (c *Conv1D) Forward(x *mat.Dense) (*mat.Dense, Cache) {
	steps, _ := x.Dims()
	_, filters := c.W.Value.Dims()
	cache := convCache{
		columns: mat.NewDense(steps, c.Kernel*c.in, nil),
		pre:     mat.NewDense(steps, filters, nil),
	}
	y := mat.NewDense(steps, filters, nil)
	bias := c.B.Value.RawRowView(0)
	for t := 0; t < steps; t++ {
		column := cache.columns.RawRowView(t)
		c.window(x, t, column)
		pre := cache.pre.RawRowView(t)
		copy(pre, bias)
		addMul(pre, column, c.W.Value)
		out := y.RawRowView(t)
		for j, v := range pre {
			if v > 0 {
				out[j] = v
			}
		}
	}
	return y, cache
}

// Backward implements Layer.
func (c *Conv1D) Backward(cache Cache, dy *mat.Dense) *mat.Dense {
	cc := cache.(convCache)
	steps, _ := cc.pre.Dims()
	_, filters := c.W.Value.Dims()
	dx := mat.NewDense(steps, c.in, nil)
	dz := make([]float64, filters)
	dColumn := make([]float64, c.Kernel*c.in)
	biasGrad := c.B.Grad.RawRowView(0)
	half := c.Kernel / 2
	for t := 0; t < steps; t++ {
		pre := cc.pre.RawRowView(t)
		for j, v := range dy.RawRowView(t) {
			dz[j] = 0
			if pre[j] > 0 {
				dz[j] = v
			}
			biasGrad[j] += dz[j]
		}
		addOuter(c.W.Grad, cc.columns.RawRowView(t), dz)
		clear(dColumn)
		addMulT(dColumn, dz, c.W.Value)
		for j := 0; j < c.Kernel; j++ {
			src := t + j - half
			if src < 0 || src >= steps {
				continue
			}
			row := dx.RawRowView(src)
			for k, v := range dColumn[j*c.in : (j+1)*c.in] {
				row[k] += v
			}
		}
	}
	return dx
}

// Params implements Layer.
func (c *Conv1D) Params() []*Param {
	return []*Param{c.W, c.B}
}
