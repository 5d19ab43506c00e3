package tagger

import (
	"strings"

	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/pkg/errors"
)

// Architecture of the network on top of the embedding.
type Architecture string

const (
	// CNNLSTM runs a 1D convolution followed by an LSTM, with a softmax output per token.
	CNNLSTM Architecture = "cnn_lstm"

	// BLSTM is a bidirectional LSTM with a softmax output per token.
	BLSTM Architecture = "blstm"

	// BLSTMCRF is a bidirectional LSTM whose outputs are decoded by a linear-chain CRF.
	BLSTMCRF Architecture = "blstm_crf"
)

// Architectures lists the supported architectures.
var Architectures = []Architecture{CNNLSTM, BLSTM, BLSTMCRF}

// ParseArchitecture accepts the architecture names, case-insensitive, with "-" or "_" separators.
func ParseArchitecture(name string) (Architecture, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, arch := range Architectures {
		if string(arch) == normalized {
			return arch, nil
		}
	}
	return "", errors.Wrapf(sequence.ErrInvalidConfig, "unknown architecture %q, valid values are %q", name, Architectures)
}

// UsesCRF reports whether the architecture decodes with a CRF.
func (a Architecture) UsesCRF() bool {
	return a == BLSTMCRF
}

// String implements fmt.Stringer.
func (a Architecture) String() string {
	return string(a)
}
