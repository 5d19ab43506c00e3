package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CRF is a linear-chain conditional random field over per-step emission scores.
//
// Transitions[i][j] is the score of moving from tag i to tag j; Start and End score the first and
// last tags.
type CRF struct {
	Tags                    int
	Transitions, Start, End *Param
}

// NewCRF creates a CRF over the given number of tags, with small random scores.
func NewCRF(name string, tags int, init *Initializer) *CRF {
	c := &CRF{
		Tags:        tags,
		Transitions: NewParam(name+".transitions", tags, tags),
		Start:       NewParam(name+".start", 1, tags),
		End:         NewParam(name+".end", 1, tags),
	}
	init.Uniform(c.Transitions, 0.1)
	return c
}

// Params returns the trainable parameters of the CRF.
func (c *CRF) Params() []*Param {
	return []*Param{c.Transitions, c.Start, c.End}
}

// alphas runs the forward algorithm and returns the log forward scores and log Z.
func (c *CRF) alphas(emissions *mat.Dense) (*mat.Dense, float64) {
	steps, _ := emissions.Dims()
	k := c.Tags
	alpha := mat.NewDense(steps, k, nil)
	floats.AddTo(alpha.RawRowView(0), c.Start.Value.RawRowView(0), emissions.RawRowView(0))
	scores := make([]float64, k)
	for t := 1; t < steps; t++ {
		prev, cur, e := alpha.RawRowView(t-1), alpha.RawRowView(t), emissions.RawRowView(t)
		for j := 0; j < k; j++ {
			for i := 0; i < k; i++ {
				scores[i] = prev[i] + c.Transitions.Value.At(i, j)
			}
			cur[j] = logSumExp(scores) + e[j]
		}
	}
	floats.AddTo(scores, alpha.RawRowView(steps-1), c.End.Value.RawRowView(0))
	return alpha, logSumExp(scores)
}

// betas runs the backward algorithm, returning the log backward scores.
func (c *CRF) betas(emissions *mat.Dense) *mat.Dense {
	steps, _ := emissions.Dims()
	k := c.Tags
	beta := mat.NewDense(steps, k, nil)
	copy(beta.RawRowView(steps-1), c.End.Value.RawRowView(0))
	scores := make([]float64, k)
	for t := steps - 2; t >= 0; t-- {
		next, cur, e := beta.RawRowView(t+1), beta.RawRowView(t), emissions.RawRowView(t+1)
		for i := 0; i < k; i++ {
			trans := c.Transitions.Value.RawRowView(i)
			for j := 0; j < k; j++ {
				scores[j] = trans[j] + e[j] + next[j]
			}
			cur[i] = logSumExp(scores)
		}
	}
	return beta
}

// Score returns the unnormalized log score of tags.
func (c *CRF) Score(emissions *mat.Dense, tags []int) float64 {
	score := c.Start.Value.At(0, tags[0]) + c.End.Value.At(0, tags[len(tags)-1])
	for t, tag := range tags {
		score += emissions.At(t, tag)
		if t > 0 {
			score += c.Transitions.Value.At(tags[t-1], tag)
		}
	}
	return score
}

// LogPartition returns log Z, the log of the summed scores of every tag sequence.
func (c *CRF) LogPartition(emissions *mat.Dense) float64 {
	_, logZ := c.alphas(emissions)
	return logZ
}

// Marginals returns the posterior probability of every tag at every step.
func (c *CRF) Marginals(emissions *mat.Dense) *mat.Dense {
	alpha, logZ := c.alphas(emissions)
	beta := c.betas(emissions)
	steps, k := alpha.Dims()
	marginals := mat.NewDense(steps, k, nil)
	marginals.Apply(func(t, j int, _ float64) float64 {
		return math.Exp(alpha.At(t, j) + beta.At(t, j) - logZ)
	}, marginals)
	return marginals
}

// NegLogLikelihood returns -log P(tags | emissions), accumulates the gradients of the CRF
// parameters scaled by scale, and returns the (scaled) gradient with respect to emissions.
// emissions must have one row per tag.
func (c *CRF) NegLogLikelihood(emissions *mat.Dense, tags []int, scale float64) (float64, *mat.Dense) {
	alpha, logZ := c.alphas(emissions)
	beta := c.betas(emissions)
	steps, k := alpha.Dims()

	dEmissions := mat.NewDense(steps, k, nil)
	dEmissions.Apply(func(t, j int, _ float64) float64 {
		return scale * math.Exp(alpha.At(t, j)+beta.At(t, j)-logZ)
	}, dEmissions)
	floats.AddScaled(c.Start.Grad.RawRowView(0), 1, dEmissions.RawRowView(0))
	floats.AddScaled(c.End.Grad.RawRowView(0), 1, dEmissions.RawRowView(steps-1))
	for t := 1; t < steps; t++ {
		prev, next, e := alpha.RawRowView(t-1), beta.RawRowView(t), emissions.RawRowView(t)
		for i := 0; i < k; i++ {
			trans := c.Transitions.Value.RawRowView(i)
			grad := c.Transitions.Grad.RawRowView(i)
			for j := 0; j < k; j++ {
				grad[j] += scale * math.Exp(prev[i]+trans[j]+e[j]+next[j]-logZ)
			}
		}
	}

	// Subtract the empirical counts of the gold path.
	for t, tag := range tags {
		dEmissions.Set(t, tag, dEmissions.At(t, tag)-scale)
		if t > 0 {
			c.Transitions.Grad.Set(tags[t-1], tag, c.Transitions.Grad.At(tags[t-1], tag)-scale)
		}
	}
	c.Start.Grad.Set(0, tags[0], c.Start.Grad.At(0, tags[0])-scale)
	c.End.Grad.Set(0, tags[steps-1], c.End.Grad.At(0, tags[steps-1])-scale)
	return logZ - c.Score(emissions, tags), dEmissions
}

// Decode returns the highest scoring tag sequence (Viterbi) and its score.
func (c *CRF) Decode(emissions *mat.Dense) ([]int, float64) {
	steps, _ := emissions.Dims()
	k := c.Tags
	best := make([]float64, k)
	floats.AddTo(best, c.Start.Value.RawRowView(0), emissions.RawRowView(0))
	backPointers := make([][]int, steps)
	next := make([]float64, k)
	for t := 1; t < steps; t++ {
		backPointers[t] = make([]int, k)
		e := emissions.RawRowView(t)
		for j := 0; j < k; j++ {
			bestScore, bestPrev := math.Inf(-1), 0
			for i := 0; i < k; i++ {
				if s := best[i] + c.Transitions.Value.At(i, j); s > bestScore {
					bestScore, bestPrev = s, i
				}
			}
			next[j] = bestScore + e[j]
			backPointers[t][j] = bestPrev
		}
		best, next = next, best
	}
	floats.Add(best, c.End.Value.RawRowView(0))
	last := floats.MaxIdx(best)
	path := make([]int, steps)
	path[steps-1] = last
	for t := steps - 1; t > 0; t-- {
		path[t-1] = backPointers[t][path[t]]
	}
	return path, best[last]
}
