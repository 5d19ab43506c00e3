package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer with bias correction and global gradient norm clipping.
type Adam struct {
	LearningRate, Beta1, Beta2, Epsilon float64

	// ClipNorm, if > 0, rescales the gradients so their global L2 norm is at most ClipNorm.
	ClipNorm float64

	step int
}

// NewAdam returns an Adam optimizer with the usual defaults and the given learning rate.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		ClipNorm:     5,
	}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int { return a.step }

// ClipGradients scales the gradients of params so their combined norm is at most maxNorm.
// It returns the global norm before clipping.
func ClipGradients(maxNorm float64, params []*Param) float64 {
	var sum float64
	for _, p := range params {
		n := mat.Norm(p.Grad, 2)
		sum += n * n
	}
	norm := math.Sqrt(sum)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := maxNorm / norm
	for _, p := range params {
		p.Grad.Scale(scale, p.Grad)
	}
	return norm
}

// Update applies one optimization step using the accumulated gradients, and zeroes them.
func (a *Adam) Update(params []*Param) {
	if a.ClipNorm > 0 {
		ClipGradients(a.ClipNorm, params)
	}
	a.step++
	c1 := 1 / (1 - math.Pow(a.Beta1, float64(a.step)))
	c2 := 1 / (1 - math.Pow(a.Beta2, float64(a.step)))
	for _, p := range params {
		if p.m == nil {
			rows, cols := p.Value.Dims()
			p.m = mat.NewDense(rows, cols, nil)
			p.v = mat.NewDense(rows, cols, nil)
		}
		value, grad := p.Value.RawMatrix().Data, p.Grad.RawMatrix().Data
		m, v := p.m.RawMatrix().Data, p.v.RawMatrix().Data
		for i, g := range grad {
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g*g
			value[i] -= a.LearningRate * (m[i] * c1) / (math.Sqrt(v[i]*c2) + a.Epsilon)
		}
		p.ZeroGrad()
	}
}
