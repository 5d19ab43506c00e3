package hftokenizer

import (
	"math"
	"unicode/utf8"
)

// defaultMaxInputCharsPerWord is used by WordPiece models that don't configure it.
const defaultMaxInputCharsPerWord = 100

// wordPieceTokenize implements WordPiece tokenization (used by BERT): greedy longest match
// first, with continuation pieces marked by a prefix. Words that can't be fully matched become
// the unknown token.
func (t *Tokenizer) wordPieceTokenize(word string) []int {
	if word == "" {
		return nil
	}
	model := &t.tokenizer.Model
	maxChars := model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = defaultMaxInputCharsPerWord
	}
	if utf8.RuneCountInString(word) > maxChars {
		return t.unkIDs()
	}
	prefix := model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}

	var ids []int
	for start := 0; start < len(word); {
		end := len(word)
		id := -1
		for start < end {
			piece := word[start:end]
			if start > 0 {
				piece = prefix + piece
			}
			if pieceID, ok := model.Vocab[piece]; ok {
				id = pieceID
				break
			}
			// Step back one rune, never splitting a multi-byte character.
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if id < 0 {
			return t.unkIDs()
		}
		ids = append(ids, id)
		start = end
	}
	return ids
}

// bpeTokenize implements BPE tokenization (used by GPT-2, RoBERTa): starting from single
// characters, repeatedly merges the adjacent pair with the best (lowest) rank.
func (t *Tokenizer) bpeTokenize(word string) []int {
	if word == "" {
		return nil
	}
	model := &t.tokenizer.Model
	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	symbols[len(symbols)-1] += model.EndOfWordSuffix

	for len(symbols) > 1 {
		bestRank, bestIdx := math.MaxInt, -1
		for i := 0; i+1 < len(symbols); i++ {
			if rank, ok := t.mergeRanks[[2]string{symbols[i], symbols[i+1]}]; ok && rank < bestRank {
				bestRank, bestIdx = rank, i
			}
		}
		if bestIdx == -1 {
			break
		}
		symbols[bestIdx] += symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx+1], symbols[bestIdx+2:]...)
	}

	var ids []int
	lastUnknown := false
	for _, sym := range symbols {
		if id, ok := model.Vocab[sym]; ok {
			ids = append(ids, id)
			lastUnknown = false
			continue
		}
		if model.FuseUnk && lastUnknown {
			continue
		}
		ids = append(ids, t.unkIDs()...)
		lastUnknown = true
	}
	return ids
}

// unigramTokenize implements Unigram tokenization: the segmentation maximizing the sum of the
// pieces' log probabilities (Viterbi). Characters not covered by any piece become the unknown
// token, consecutive unknowns fused into one.
func (t *Tokenizer) unigramTokenize(word string) []int {
	if word == "" {
		return nil
	}
	model := &t.tokenizer.Model
	runes := []rune(word)
	n := len(runes)

	// unknownScore penalizes unknown characters below any real piece.
	unknownScore := -10.0
	for _, s := range model.Scores {
		unknownScore = min(unknownScore, s-10)
	}

	best := make([]float64, n+1)
	from := make([]int, n+1)
	pieceID := make([]int, n+1)
	for i := 1; i <= n; i++ {
		best[i] = math.Inf(-1)
	}
	for end := 1; end <= n; end++ {
		for start := max(0, end-t.maxPiece); start < end; start++ {
			if math.IsInf(best[start], -1) {
				continue
			}
			id, ok := model.Vocab[string(runes[start:end])]
			if !ok {
				continue
			}
			var score float64
			if id < len(model.Scores) {
				score = model.Scores[id]
			}
			if s := best[start] + score; s > best[end] {
				best[end], from[end], pieceID[end] = s, start, id
			}
		}
		// A single unknown character.
		if s := best[end-1] + unknownScore; s > best[end] {
			best[end], from[end], pieceID[end] = s, end-1, -1
		}
	}

	var reversed []int
	for end := n; end > 0; end = from[end] {
		reversed = append(reversed, pieceID[end])
	}
	ids := make([]int, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		id := reversed[i]
		if id >= 0 {
			ids = append(ids, id)
			continue
		}
		if unk := t.unkIDs(); unk != nil && (i == len(reversed)-1 || reversed[i+1] >= 0) {
			ids = append(ids, unk[0])
		}
	}
	return ids
}
