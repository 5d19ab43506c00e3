package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// addMul accumulates dst += x·w, for a row vector x with one entry per row of w.
func addMul(dst, x []float64, w *mat.Dense) {
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		floats.AddScaled(dst, xi, w.RawRowView(i))
	}
}

// addMulT accumulates dst += dz·wᵀ, for a row vector dz with one entry per column of w.
func addMulT(dst, dz []float64, w *mat.Dense) {
	for i := range dst {
		dst[i] += floats.Dot(dz, w.RawRowView(i))
	}
}

// addOuter accumulates g += xᵀ·dz.
func addOuter(g *mat.Dense, x, dz []float64) {
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		floats.AddScaled(g.RawRowView(i), xi, dz)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// logSumExp returns log(Σ exp(x)), computed stably.
func logSumExp(x []float64) float64 {
	maxValue := floats.Max(x)
	if math.IsInf(maxValue, -1) {
		return maxValue
	}
	var sum float64
	for _, v := range x {
		sum += math.Exp(v - maxValue)
	}
	return maxValue + math.Log(sum)
}

// softmax writes the softmax of x into dst, and returns log(Σ exp(x)).
func softmax(dst, x []float64) float64 {
	lse := logSumExp(x)
	for i, v := range x {
		dst[i] = math.Exp(v - lse)
	}
	return lse
}

// reverseRows returns a copy of m with the rows in reverse order.
func reverseRows(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		copy(out.RawRowView(rows-1-i), m.RawRowView(i))
	}
	return out
}
