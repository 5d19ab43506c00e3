package corpus

import (
	"github.com/gomlx/go-seqlabel/segment"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Row is the parquet schema of a labeled sentence.
type Row struct {
	Tokens []string `parquet:"tokens"`
	Labels []string `parquet:"labels"`
}

// ReadParquet reads a labeled dataset from a parquet file of Row. Tokens are normalized like
// ReadCoNLL does.
func ReadParquet(path string) (x, y [][]string, err error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read parquet dataset %q", path)
	}
	x = make([][]string, len(rows))
	y = make([][]string, len(rows))
	for i, row := range rows {
		for j, token := range row.Tokens {
			row.Tokens[j] = segment.Normalize(token)
		}
		x[i], y[i] = row.Tokens, row.Labels
	}
	if err := Validate(x, y); err != nil {
		return nil, nil, errors.WithMessagef(err, "parquet dataset %q", path)
	}
	klog.V(1).Infof("read %d sentences from %q", len(rows), path)
	return x, y, nil
}

// WriteParquet writes a labeled dataset to a parquet file of Row.
func WriteParquet(path string, x, y [][]string) error {
	if err := Validate(x, y); err != nil {
		return err
	}
	rows := make([]Row, len(x))
	for i := range x {
		rows[i] = Row{Tokens: x[i], Labels: y[i]}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "failed to write parquet dataset %q", path)
	}
	return nil
}
