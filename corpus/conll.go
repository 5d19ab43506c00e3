package corpus

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/gomlx/go-seqlabel/segment"
	"github.com/pkg/errors"
)

// ReadCoNLL reads sentences in CoNLL format: each non-blank line holds a token and its label
// separated by whitespace (the label is the last field), a blank line ends a sentence. Lines
// starting with "-DOCSTART-" are ignored. Tokens are normalized with segment.Normalize.
func ReadCoNLL(r io.Reader) (x, y [][]string, err error) {
	scanner := bufio.NewScanner(r)
	var tokens, labels []string
	flush := func() {
		if len(tokens) > 0 {
			x = append(x, tokens)
			y = append(y, labels)
			tokens, labels = nil, nil
		}
	}
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "-DOCSTART-") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, nil, errors.Errorf("line %d: expected a token and a label, got %q", lineNum, line)
		}
		tokens = append(tokens, segment.Normalize(fields[0]))
		labels = append(labels, fields[len(fields)-1])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read CoNLL data")
	}
	flush()
	return x, y, nil
}

// WriteCoNLL writes sentences in the format read by ReadCoNLL, token and label separated by a tab.
func WriteCoNLL(w io.Writer, x, y [][]string) error {
	if err := Validate(x, y); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for i := range x {
		for j, token := range x[i] {
			if strings.ContainsAny(token, " \t\n") {
				return errors.Errorf("sequence %d: token %q contains whitespace", i, token)
			}
			if _, err := bw.WriteString(token + "\t" + y[i][j] + "\n"); err != nil {
				return errors.Wrap(err, "failed to write CoNLL data")
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "failed to write CoNLL data")
		}
	}
	return errors.Wrap(bw.Flush(), "failed to write CoNLL data")
}

// ReadCoNLLFile reads a CoNLL file.
func ReadCoNLLFile(path string) (x, y [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	x, y, err = ReadCoNLL(f)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "while reading %q", path)
	}
	return x, y, nil
}

// WriteCoNLLFile writes a CoNLL file.
func WriteCoNLLFile(path string, x, y [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close %q", path)
		}
	}()
	return WriteCoNLL(f, x, y)
}
