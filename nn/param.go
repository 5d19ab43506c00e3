// Package nn implements the small set of neural layers used by the taggers: embeddings lookup,
// dense projections, 1D convolutions, (bidirectional) LSTMs, softmax cross-entropy, a
// linear-chain CRF, and the Adam optimizer.
//
// Activations are gonum matrices with one row per time step. Layers are stateless between
// calls: Forward returns a cache that the matching Backward call consumes, so forward passes of
// a trained model can run concurrently. Backward accumulates into the parameters' gradients and
// must not run concurrently.
package nn

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Param is a trainable matrix with its gradient and optimizer state.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense

	// Adam moments, allocated on the first update.
	m, v *mat.Dense
}

// NewParam creates a zero-valued parameter.
func NewParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// NewParamFrom creates a parameter holding a copy of value.
func NewParamFrom(name string, value mat.Matrix) *Param {
	rows, cols := value.Dims()
	p := NewParam(name, rows, cols)
	p.Value.Copy(value)
	return p
}

// ZeroGrad resets the gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// Set copies value into the parameter, which must have the same shape.
func (p *Param) Set(value mat.Matrix) error {
	r, c := value.Dims()
	pr, pc := p.Value.Dims()
	if r != pr || c != pc {
		return errors.Errorf("parameter %q has shape [%d %d], can't set value of shape [%d %d]", p.Name, pr, pc, r, c)
	}
	p.Value.Copy(value)
	return nil
}

// Initializer fills parameters with reproducible random values.
type Initializer struct {
	rng *rand.Rand
}

// NewInitializer creates an Initializer seeded with seed.
func NewInitializer(seed uint64) *Initializer {
	return &Initializer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Uniform fills p with values drawn uniformly from [-limit, limit].
func (init *Initializer) Uniform(p *Param, limit float64) {
	init.UniformDense(p.Value, limit)
}

// UniformDense fills m with values drawn uniformly from [-limit, limit].
func (init *Initializer) UniformDense(m *mat.Dense, limit float64) {
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		row := m.RawRowView(r)
		for i := range row {
			row[i] = (2*init.rng.Float64() - 1) * limit
		}
	}
}

// Glorot fills p with Glorot (Xavier) uniform values, for a layer with the given fan-in and fan-out.
func (init *Initializer) Glorot(p *Param, fanIn, fanOut int) {
	init.Uniform(p, math.Sqrt(6/float64(fanIn+fanOut)))
}

// Layer is a differentiable transformation of a sequence (one row per time step).
type Layer interface {
	// Forward returns the output for x, and a cache to be passed to Backward.
	Forward(x *mat.Dense) (*mat.Dense, Cache)

	// Backward takes the gradient of the loss with respect to the output of the Forward call that
	// produced cache, accumulates the parameters' gradients, and returns the gradient with
	// respect to its input.
	Backward(cache Cache, dy *mat.Dense) *mat.Dense

	// Params returns the trainable parameters of the layer.
	Params() []*Param
}

// Cache holds what a Layer needs from a Forward call to compute its Backward.
type Cache any

// Stack chains layers.
type Stack []Layer

// Compile time assert that Stack implements Layer.
var _ Layer = Stack{}

type stackCache []Cache

// Forward implements Layer.
func (s Stack) Forward(x *mat.Dense) (*mat.Dense, Cache) {
	caches := make(stackCache, len(s))
	for i, layer := range s {
		x, caches[i] = layer.Forward(x)
	}
	return x, caches
}

// Backward implements Layer.
func (s Stack) Backward(cache Cache, dy *mat.Dense) *mat.Dense {
	caches := cache.(stackCache)
	for i := len(s) - 1; i >= 0; i-- {
		dy = s[i].Backward(caches[i], dy)
	}
	return dy
}

// Params implements Layer.
func (s Stack) Params() []*Param {
	var params []*Param
	for _, layer := range s {
		params = append(params, layer.Params()...)
	}
	return params
}
