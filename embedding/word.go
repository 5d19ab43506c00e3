package embedding

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/go-seqlabel/hub"
	"github.com/gomlx/go-seqlabel/sequence"
	"github.com/gomlx/go-seqlabel/vocab"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Word holds pretrained word vectors.
//
// Its vocabulary is the four sentinels followed by the words of the file, in file order. The pad
// vector is zero, the other sentinels get small random vectors.
type Word struct {
	table
	vocab *vocab.Vocabulary
}

var _ Embedding = &Word{}

// LoadWord reads the word2vec text file fileName of repo.
func LoadWord(repo *hub.Repo, fileName string, sequenceLength int, opts ...Option) (*Word, error) {
	path, err := repo.DownloadFile(fileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "can't get word vectors %q from %s", fileName, repo)
	}
	return LoadWordFile(path, sequenceLength, opts...)
}

// LoadWordFile reads word vectors from a local word2vec text file: an optional "count dim" header
// line, then one word per line followed by its vector, fields separated by spaces.
func LoadWordFile(path string, sequenceLength int, opts ...Option) (*Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open word vectors %q", path)
	}
	defer func() { _ = f.Close() }()
	o := newOptions(opts)
	words, vectors, err := readWord2Vec(f, o.limit)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", path)
	}
	return NewWord(path, words, vectors, sequenceLength, opts...)
}

// NewWord creates a Word embedding from words and their vectors (one row per word).
func NewWord(name string, words []string, vectors *mat.Dense, sequenceLength int, opts ...Option) (*Word, error) {
	rows, dim := vectors.Dims()
	if rows != len(words) {
		return nil, errors.Errorf("%d words for %d vectors", len(words), rows)
	}
	o := newOptions(opts)
	v := vocab.FromTokens(words)
	if v.Len() != len(words)+vocab.NumReserved {
		return nil, errors.Errorf("word vectors %q have duplicate or reserved words", name)
	}
	encoder, err := sequence.New(v, sequenceLength)
	if err != nil {
		return nil, err
	}
	full := randomTable(v.Len(), dim, o.seed)
	for i := 0; i < dim; i++ {
		full.Set(vocab.PadID, i, 0)
	}
	full.Slice(vocab.NumReserved, v.Len(), 0, dim).(*mat.Dense).Copy(vectors)
	klog.V(1).Infof("word embedding %q: %d words of dimension %d", name, len(words), dim)
	return &Word{
		table: table{name: name, encoder: encoder, vectors: full, trainable: o.isTrainable(false)},
		vocab: v,
	}, nil
}

// TokenVocabulary returns the vocabulary of the words.
func (w *Word) TokenVocabulary() *vocab.Vocabulary {
	return w.vocab
}

// readWord2Vec parses word2vec text format. Lines with a vector of the wrong dimension, repeated
// words and sentinel names are skipped.
func readWord2Vec(r io.Reader, limit int) ([]string, *mat.Dense, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var (
		words []string
		data  []float64
		seen  = make(map[string]bool)
		dim   int
	)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		if limit > 0 && len(words) >= limit {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if lineNum == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				if dim, err = strconv.Atoi(fields[1]); err != nil || dim <= 0 {
					return nil, nil, errors.Errorf("invalid word2vec header %q", scanner.Text())
				}
				continue
			}
		}
		if dim == 0 {
			dim = len(fields) - 1
		}
		if len(fields)-1 != dim || dim == 0 {
			klog.Warningf("word vectors line %d: expected %d values, got %d, skipping", lineNum, dim, len(fields)-1)
			continue
		}
		word := fields[0]
		if seen[word] || vocab.IsReserved(word) {
			klog.Warningf("word vectors line %d: word %q repeated or reserved, skipping", lineNum, word)
			continue
		}
		row := make([]float64, dim)
		valid := true
		for i, field := range fields[1:] {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				valid = false
				break
			}
			row[i] = value
		}
		if !valid {
			klog.Warningf("word vectors line %d: malformed value, skipping", lineNum)
			continue
		}
		seen[word] = true
		words = append(words, word)
		data = append(data, row...)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read word vectors")
	}
	if len(words) == 0 {
		return nil, nil, errors.New("no word vectors found")
	}
	return words, mat.NewDense(len(words), dim, data), nil
}
