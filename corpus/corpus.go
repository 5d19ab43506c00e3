// Package corpus reads and writes labeled datasets for sequence labeling: parallel lists of token
// sequences and label sequences, one label per token.
//
// Two formats are supported: CoNLL-style text (one "token label" pair per line, sentences
// separated by blank lines) and parquet files with one row per sentence.
package corpus

import (
	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned when tokens and labels are not parallel.
var ErrShapeMismatch = errors.New("tokens and labels shapes don't match")

// Validate checks that x and y have the same number of sentences, and each sentence the same
// number of tokens and labels.
func Validate(x, y [][]string) error {
	if len(x) != len(y) {
		return errors.Wrapf(ErrShapeMismatch, "%d token sequences for %d label sequences", len(x), len(y))
	}
	for i := range x {
		if len(x[i]) != len(y[i]) {
			return errors.Wrapf(ErrShapeMismatch, "sequence %d has %d tokens and %d labels", i, len(x[i]), len(y[i]))
		}
	}
	return nil
}

// Split separates the last fraction of the dataset, for validation. fraction must be in [0, 1).
func Split(x, y [][]string, fraction float64) (trainX, trainY, validX, validY [][]string, err error) {
	if err = Validate(x, y); err != nil {
		return
	}
	if fraction < 0 || fraction >= 1 {
		err = errors.Errorf("validation fraction must be in [0, 1), got %g", fraction)
		return
	}
	n := len(x) - int(float64(len(x))*fraction)
	return x[:n], y[:n], x[n:], y[n:], nil
}
