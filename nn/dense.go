package nn

import (
	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected projection applied to every time step: y = x·W + b.
type Dense struct {
	W, B *Param
}

// Compile time assert that Dense implements Layer.
var _ Layer = &Dense{}

// NewDense creates a Dense layer from in to out features, Glorot initialized.
func NewDense(name string, in, out int, init *Initializer) *Dense {
	d := &Dense{
		W: NewParam(name+".kernel", in, out),
		B: NewParam(name+".bias", 1, out),
	}
	init.Glorot(d.W, in, out)
	return d
}

// Forward implements Layer.
func (d *Dense) Forward(x *mat.Dense) (*mat.Dense, Cache) {
	steps, _ := x.Dims()
	_, out := d.W.Value.Dims()
	y := mat.NewDense(steps, out, nil)
	bias := d.B.Value.RawRowView(0)
	for t := 0; t < steps; t++ {
		row := y.RawRowView(t)
		copy(row, bias)
		addMul(row, x.RawRowView(t), d.W.Value)
	}
	return y, x
}

// Backward implements Layer.
func (d *Dense) Backward(cache Cache, dy *mat.Dense) *mat.Dense {
	x := cache.(*mat.Dense)
	steps, in := x.Dims()
	dx := mat.NewDense(steps, in, nil)
	biasGrad := d.B.Grad.RawRowView(0)
	for t := 0; t < steps; t++ {
		dz := dy.RawRowView(t)
		addOuter(d.W.Grad, x.RawRowView(t), dz)
		for j, v := range dz {
			biasGrad[j] += v
		}
		addMulT(dx.RawRowView(t), dz, d.W.Value)
	}
	return dx
}

// Params implements Layer.
func (d *Dense) Params() []*Param {
	return []*Param{d.W, d.B}
}

// Embedding maps ids to the rows of a table. It is not a Layer, since its input are ids.
type Embedding struct {
	Table     *Param
	Trainable bool
}

// NewEmbedding wraps table (one row per id). When trainable, Backward accumulates its gradient.
func NewEmbedding(name string, table mat.Matrix, trainable bool) *Embedding {
	return &Embedding{Table: NewParamFrom(name, table), Trainable: trainable}
}

// Forward returns the rows of the table for ids. Ids must be in range.
func (e *Embedding) Forward(ids []int) *mat.Dense {
	_, dim := e.Table.Value.Dims()
	x := mat.NewDense(len(ids), dim, nil)
	for t, id := range ids {
		copy(x.RawRowView(t), e.Table.Value.RawRowView(id))
	}
	return x
}

// Backward accumulates dx into the rows of the table gradient, if trainable.
func (e *Embedding) Backward(ids []int, dx *mat.Dense) {
	if !e.Trainable {
		return
	}
	for t, id := range ids {
		row := e.Table.Grad.RawRowView(id)
		for j, v := range dx.RawRowView(t) {
			row[j] += v
		}
	}
}

// Params returns the table if it is trainable.
func (e *Embedding) Params() []*Param {
	if !e.Trainable {
		return nil
	}
	return []*Param{e.Table}
}
