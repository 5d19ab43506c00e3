package tagger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/go-seqlabel/corpus"
	"github.com/pkg/errors"
)

// Score is the entity-level precision, recall and F1 of one entity type. Support is the number
// of gold entities.
type Score struct {
	Precision, Recall, F1 float64
	Support               int
}

// Report holds the evaluation of predictions against gold labels.
type Report struct {
	// Entities scores each entity type found in the gold or predicted labels.
	Entities map[string]Score

	// Micro is the micro average over all entity types.
	Micro Score

	// Accuracy is the fraction of tokens with the right label, over Tokens tokens.
	Accuracy float64
	Tokens   int
}

// Evaluate predicts the labels of x and scores them against y.
func (m *Model) Evaluate(x, y [][]string) (*Report, error) {
	if err := corpus.Validate(x, y); err != nil {
		return nil, err
	}
	predicted, err := m.PredictBatch(context.Background(), x)
	if err != nil {
		return nil, err
	}
	return NewReport(y, predicted)
}

// NewReport scores the predicted labels against the gold ones. Entities are chunks of BIO (or
// BIOES) labels: "B-PER I-PER" is one PER entity, and must match exactly in type and span.
func NewReport(gold, predicted [][]string) (*Report, error) {
	if err := corpus.Validate(gold, predicted); err != nil {
		return nil, errors.WithMessage(err, "predictions don't match the gold labels")
	}
	type counts struct{ truePositives, gold, predicted int }
	perType := make(map[string]*counts)
	get := func(kind string) *counts {
		c, found := perType[kind]
		if !found {
			c = &counts{}
			perType[kind] = c
		}
		return c
	}
	r := &Report{Entities: make(map[string]Score)}
	var correct int
	for i := range gold {
		goldChunks := chunks(gold[i])
		for c := range goldChunks {
			get(c.kind).gold++
		}
		for c := range chunks(predicted[i]) {
			counts := get(c.kind)
			counts.predicted++
			if goldChunks[c] {
				counts.truePositives++
			}
		}
		for j, label := range gold[i] {
			if predicted[i][j] == label {
				correct++
			}
		}
		r.Tokens += len(gold[i])
	}
	if r.Tokens > 0 {
		r.Accuracy = float64(correct) / float64(r.Tokens)
	}
	var total counts
	for kind, c := range perType {
		r.Entities[kind] = newScore(c.truePositives, c.gold, c.predicted)
		total.truePositives += c.truePositives
		total.gold += c.gold
		total.predicted += c.predicted
	}
	r.Micro = newScore(total.truePositives, total.gold, total.predicted)
	return r, nil
}

func newScore(truePositives, gold, predicted int) Score {
	s := Score{Support: gold}
	if predicted > 0 {
		s.Precision = float64(truePositives) / float64(predicted)
	}
	if gold > 0 {
		s.Recall = float64(truePositives) / float64(gold)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// String renders the report as a table.
func (r *Report) String() string {
	kinds := slices.Sorted(maps.Keys(r.Entities))
	format := func(name string, s Score) []string {
		return []string{name, fmt.Sprintf("%.4f", s.Precision), fmt.Sprintf("%.4f", s.Recall),
			fmt.Sprintf("%.4f", s.F1), fmt.Sprintf("%d", s.Support)}
	}
	rows := make([][]string, 0, len(kinds)+1)
	for _, kind := range kinds {
		rows = append(rows, format(kind, r.Entities[kind]))
	}
	rows = append(rows, format("micro avg", r.Micro))
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("entity", "precision", "recall", "f1-score", "support").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true)
			case col > 0:
				return style.Align(lipgloss.Right)
			}
			return style
		})
	var sb strings.Builder
	sb.WriteString(t.String())
	fmt.Fprintf(&sb, "\ntoken accuracy: %.4f (%d tokens)\n", r.Accuracy, r.Tokens)
	return sb.String()
}

// chunk is an entity span [start, end) of the given kind.
type chunk struct {
	kind       string
	start, end int
}

// splitLabel returns the position prefix (B, I, E, S or O) and the entity type of a label.
// Labels without a prefix are treated as inside an entity of that type.
func splitLabel(label string) (prefix, kind string) {
	if label == OutsideLabel || label == "" {
		return OutsideLabel, ""
	}
	if len(label) > 2 && label[1] == '-' && strings.ContainsRune("BIES", rune(label[0])) {
		return label[:1], label[2:]
	}
	return "I", label
}

func chunks(labels []string) map[chunk]bool {
	found := make(map[chunk]bool)
	start, kind := -1, ""
	closeAt := func(end int) {
		if start >= 0 {
			found[chunk{kind: kind, start: start, end: end}] = true
		}
		start, kind = -1, ""
	}
	for i, label := range labels {
		prefix, labelKind := splitLabel(label)
		switch {
		case prefix == OutsideLabel:
			closeAt(i)
			continue
		case prefix == "B" || prefix == "S" || start < 0 || labelKind != kind:
			closeAt(i)
			start, kind = i, labelKind
		}
		if prefix == "E" || prefix == "S" {
			closeAt(i + 1)
		}
	}
	closeAt(len(labels))
	return found
}
