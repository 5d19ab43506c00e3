package nn

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Ignore marks a target that doesn't contribute to the loss.
const Ignore = -1

// SoftmaxCrossEntropy returns the mean cross-entropy of the rows of logits against targets, and
// its gradient with respect to logits. Rows whose target is Ignore are skipped.
func SoftmaxCrossEntropy(logits *mat.Dense, targets []int) (loss float64, dLogits *mat.Dense) {
	steps, classes := logits.Dims()
	dLogits = mat.NewDense(steps, classes, nil)
	var counted int
	for t := 0; t < min(steps, len(targets)); t++ {
		if targets[t] == Ignore {
			continue
		}
		counted++
		row := dLogits.RawRowView(t)
		lse := softmax(row, logits.RawRowView(t))
		loss += lse - logits.At(t, targets[t])
		row[targets[t]] -= 1
	}
	if counted == 0 {
		return 0, dLogits
	}
	scale := 1 / float64(counted)
	dLogits.Scale(scale, dLogits)
	return loss * scale, dLogits
}

// Softmax returns the row-wise softmax of logits.
func Softmax(logits *mat.Dense) *mat.Dense {
	steps, classes := logits.Dims()
	probs := mat.NewDense(steps, classes, nil)
	for t := 0; t < steps; t++ {
		softmax(probs.RawRowView(t), logits.RawRowView(t))
	}
	return probs
}

// ArgMax returns the index of the largest value of each row.
func ArgMax(m *mat.Dense) []int {
	steps, _ := m.Dims()
	out := make([]int, steps)
	for t := range out {
		out[t] = floats.MaxIdx(m.RawRowView(t))
	}
	return out
}
