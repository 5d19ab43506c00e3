package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LSTM is a unidirectional long short-term memory layer returning the hidden state of every step.
//
// The gates are packed in the order input, forget, cell, output.
type LSTM struct {
	Hidden    int
	Wx, Wh, B *Param
}

// Compile time assert that LSTM implements Layer.
var _ Layer = &LSTM{}

// NewLSTM creates an LSTM from in features to hidden units. The forget gate bias starts at 1.
func NewLSTM(name string, in, hidden int, init *Initializer) *LSTM {
	l := &LSTM{
		Hidden: hidden,
		Wx:     NewParam(name+".kernel", in, 4*hidden),
		Wh:     NewParam(name+".recurrent_kernel", hidden, 4*hidden),
		B:      NewParam(name+".bias", 1, 4*hidden),
	}
	init.Glorot(l.Wx, in, 4*hidden)
	init.Glorot(l.Wh, hidden, 4*hidden)
	bias := l.B.Value.RawRowView(0)
	for j := hidden; j < 2*hidden; j++ {
		bias[j] = 1
	}
	return l
}

type lstmCache struct {
	x, gates, c, tanhC, h *mat.Dense
}

// Forward implements Layer.
func (l *LSTM) Forward(x *mat.Dense) (*mat.Dense, Cache) {
	steps, _ := x.Dims()
	n := l.Hidden
	cache := lstmCache{
		x:     x,
		gates: mat.NewDense(steps, 4*n, nil),
		c:     mat.NewDense(steps, n, nil),
		tanhC: mat.NewDense(steps, n, nil),
		h:     mat.NewDense(steps, n, nil),
	}
	bias := l.B.Value.RawRowView(0)
	for t := 0; t < steps; t++ {
		z := cache.gates.RawRowView(t)
		copy(z, bias)
		addMul(z, x.RawRowView(t), l.Wx.Value)
		var prevC []float64
		if t > 0 {
			addMul(z, cache.h.RawRowView(t-1), l.Wh.Value)
			prevC = cache.c.RawRowView(t - 1)
		}
		c, tc, h := cache.c.RawRowView(t), cache.tanhC.RawRowView(t), cache.h.RawRowView(t)
		for j := 0; j < n; j++ {
			i := sigmoid(z[j])
			f := sigmoid(z[n+j])
			g := math.Tanh(z[2*n+j])
			o := sigmoid(z[3*n+j])
			z[j], z[n+j], z[2*n+j], z[3*n+j] = i, f, g, o
			c[j] = i * g
			if prevC != nil {
				c[j] += f * prevC[j]
			}
			tc[j] = math.Tanh(c[j])
			h[j] = o * tc[j]
		}
	}
	return cache.h, cache
}

// Backward implements Layer, with full backpropagation through time.
func (l *LSTM) Backward(cache Cache, dy *mat.Dense) *mat.Dense {
	lc := cache.(lstmCache)
	steps, in := lc.x.Dims()
	n := l.Hidden
	dx := mat.NewDense(steps, in, nil)
	dhNext := make([]float64, n)
	dcNext := make([]float64, n)
	dz := make([]float64, 4*n)
	biasGrad := l.B.Grad.RawRowView(0)
	for t := steps - 1; t >= 0; t-- {
		gates := lc.gates.RawRowView(t)
		tc := lc.tanhC.RawRowView(t)
		dyRow := dy.RawRowView(t)
		var prevC []float64
		if t > 0 {
			prevC = lc.c.RawRowView(t - 1)
		}
		for j := 0; j < n; j++ {
			i, f, g, o := gates[j], gates[n+j], gates[2*n+j], gates[3*n+j]
			dh := dyRow[j] + dhNext[j]
			dc := dh*o*(1-tc[j]*tc[j]) + dcNext[j]
			var df float64
			if prevC != nil {
				df = dc * prevC[j]
			}
			dz[j] = dc * g * i * (1 - i)
			dz[n+j] = df * f * (1 - f)
			dz[2*n+j] = dc * i * (1 - g*g)
			dz[3*n+j] = dh * tc[j] * o * (1 - o)
			dcNext[j] = dc * f
		}
		for j, v := range dz {
			biasGrad[j] += v
		}
		addOuter(l.Wx.Grad, lc.x.RawRowView(t), dz)
		addMulT(dx.RawRowView(t), dz, l.Wx.Value)
		clear(dhNext)
		if t > 0 {
			addOuter(l.Wh.Grad, lc.h.RawRowView(t-1), dz)
			addMulT(dhNext, dz, l.Wh.Value)
		}
	}
	return dx
}

// Params implements Layer.
func (l *LSTM) Params() []*Param {
	return []*Param{l.Wx, l.Wh, l.B}
}

// BiLSTM runs one LSTM forward in time and another backward, concatenating their hidden states.
type BiLSTM struct {
	Forwards, Backwards *LSTM
}

// Compile time assert that BiLSTM implements Layer.
var _ Layer = &BiLSTM{}

// NewBiLSTM creates a bidirectional LSTM with hidden units per direction.
func NewBiLSTM(name string, in, hidden int, init *Initializer) *BiLSTM {
	return &BiLSTM{
		Forwards:  NewLSTM(name+".forward", in, hidden, init),
		Backwards: NewLSTM(name+".backward", in, hidden, init),
	}
}

type biCache struct {
	forwards, backwards Cache
}

// Forward implements Layer.
func (b *BiLSTM) Forward(x *mat.Dense) (*mat.Dense, Cache) {
	steps, _ := x.Dims()
	n := b.Forwards.Hidden
	hf, cf := b.Forwards.Forward(x)
	hb, cb := b.Backwards.Forward(reverseRows(x))
	y := mat.NewDense(steps, 2*n, nil)
	for t := 0; t < steps; t++ {
		row := y.RawRowView(t)
		copy(row[:n], hf.RawRowView(t))
		copy(row[n:], hb.RawRowView(steps-1-t))
	}
	return y, biCache{forwards: cf, backwards: cb}
}

// Backward implements Layer.
func (b *BiLSTM) Backward(cache Cache, dy *mat.Dense) *mat.Dense {
	bc := cache.(biCache)
	steps, _ := dy.Dims()
	n := b.Forwards.Hidden
	dyf := mat.NewDense(steps, n, nil)
	dyb := mat.NewDense(steps, n, nil)
	for t := 0; t < steps; t++ {
		row := dy.RawRowView(t)
		copy(dyf.RawRowView(t), row[:n])
		copy(dyb.RawRowView(steps-1-t), row[n:])
	}
	dx := b.Forwards.Backward(bc.forwards, dyf)
	dxb := reverseRows(b.Backwards.Backward(bc.backwards, dyb))
	dx.Add(dx, dxb)
	return dx
}

// Params implements Layer.
func (b *BiLSTM) Params() []*Param {
	return append(b.Forwards.Params(), b.Backwards.Params()...)
}
