package hftokenizer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// metaspace is the default replacement of spaces by the Metaspace pre-tokenizer.
const metaspace = "▁"

func cutSpace(s string) (string, string, bool) {
	return strings.Cut(s, " ")
}

// normalize applies the normalizer to the text.
func (t *Tokenizer) normalize(text string) string {
	if t.tokenizer.Normalizer == nil {
		return text
	}
	return applyNormalizer(text, t.tokenizer.Normalizer)
}

func applyNormalizer(text string, n *Normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		if n.CleanText {
			text = cleanText(text)
		}
		if n.HandleChineseChars {
			text = padChineseChars(text)
		}
		// strip_accents defaults to the value of lowercase.
		if (n.StripAccents == nil && n.Lowercase) || (n.StripAccents != nil && *n.StripAccents) {
			text = removeAccents(norm.NFD.String(text))
		}
		if n.Lowercase {
			text = strings.ToLower(text)
		}
		return text
	case "Replace":
		if n.Pattern != nil && n.Pattern.String != "" {
			return strings.ReplaceAll(text, n.Pattern.String, n.Content)
		}
		return text
	case "Prepend":
		if text == "" {
			return text
		}
		return n.Prepend + text
	case "Sequence":
		for i := range n.Normalizers {
			text = applyNormalizer(text, &n.Normalizers[i])
		}
		return text
	default:
		return text
	}
}

// preTokenize splits text into words using the pre-tokenizer.
func (t *Tokenizer) preTokenize(text string) []string {
	if t.tokenizer.PreTokenizer == nil {
		return strings.Fields(text)
	}
	return applyPreTokenizer(text, t.tokenizer.PreTokenizer)
}

func applyPreTokenizer(text string, pt *PreTokenizer) []string {
	switch pt.Type {
	case "BertPreTokenizer":
		return splitRunes(text, isWhitespace, isPunctuation)
	case "Whitespace":
		return whitespacePreTokenize(text)
	case "WhitespaceSplit":
		return strings.Fields(text)
	case "Punctuation":
		return splitRunes(text, func(rune) bool { return false }, isPunctuation)
	case "ByteLevel":
		if pt.AddPrefixSpace && !strings.HasPrefix(text, " ") {
			text = " " + text
		}
		return byteLevelPreTokenize(text)
	case "Metaspace":
		return metaspacePreTokenize(text, pt)
	case "Sequence":
		words := []string{text}
		for i := range pt.PreTokenizers {
			var next []string
			for _, w := range words {
				next = append(next, applyPreTokenizer(w, &pt.PreTokenizers[i])...)
			}
			words = next
		}
		return words
	default:
		return strings.Fields(text)
	}
}

// splitRunes splits text on runes for which drop returns true (removing them) and on runes for
// which isolate returns true (keeping them as single rune words).
func splitRunes(text string, drop, isolate func(rune) bool) []string {
	var words []string
	start := -1
	for i, r := range text {
		switch {
		case drop(r), isolate(r):
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
			if isolate(r) {
				words = append(words, string(r))
			}
		case start < 0:
			start = i
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}

// whitespacePreTokenize splits like the regular expression `\w+|[^\w\s]+`.
func whitespacePreTokenize(text string) []string {
	isWord := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.M, r) }
	var words []string
	start, startIsWord := -1, false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
			continue
		}
		w := isWord(r)
		if start >= 0 && w != startIsWord {
			words = append(words, text[start:i])
			start = -1
		}
		if start < 0 {
			start, startIsWord = i, w
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}

func metaspacePreTokenize(text string, pt *PreTokenizer) []string {
	replacement := pt.Replacement
	if replacement == "" {
		replacement = metaspace
	}
	prefix := pt.AddPrefixSpace
	switch pt.PrependScheme {
	case "always", "first":
		prefix = true
	case "never":
		prefix = false
	}
	if prefix && !strings.HasPrefix(text, " ") {
		text = " " + text
	}
	text = strings.ReplaceAll(text, " ", replacement)

	// Split before each replacement character, which stays attached to the following word.
	var words []string
	for text != "" {
		_, size := utf8.DecodeRuneInString(text)
		next := strings.Index(text[size:], replacement)
		if next < 0 {
			words = append(words, text)
			break
		}
		words = append(words, text[:size+next])
		text = text[size+next:]
	}
	return words
}

// decode converts tokens back to text using the decoder.
func (t *Tokenizer) decode(tokens []string) string {
	d := t.tokenizer.Decoder
	if d == nil {
		return t.wordPieceDecode(tokens, t.tokenizer.Model.ContinuingSubwordPrefix)
	}
	if d.Type == "WordPiece" {
		return t.wordPieceDecode(tokens, d.Prefix)
	}
	return strings.Join(t.decodeStep(tokens, d), "")
}

// decodeStep applies a decoder that transforms tokens, to be joined at the end.
func (t *Tokenizer) decodeStep(tokens []string, d *Decoder) []string {
	switch d.Type {
	case "WordPiece":
		return []string{t.wordPieceDecode(tokens, d.Prefix)}
	case "ByteLevel":
		return []string{byteLevelDecode(strings.Join(tokens, ""))}
	case "Metaspace":
		text := strings.ReplaceAll(strings.Join(tokens, ""), metaspace, " ")
		return []string{strings.TrimPrefix(text, " ")}
	case "BPEDecoder":
		suffix := d.Suffix
		if suffix == "" {
			suffix = t.tokenizer.Model.EndOfWordSuffix
		}
		out := make([]string, len(tokens))
		for i, token := range tokens {
			out[i] = token
			if suffix != "" && strings.HasSuffix(token, suffix) {
				out[i] = strings.TrimSuffix(token, suffix)
				if i < len(tokens)-1 {
					out[i] += " "
				}
			}
		}
		return out
	case "Replace":
		if d.Pattern == nil || d.Pattern.String == "" {
			return tokens
		}
		out := make([]string, len(tokens))
		for i, token := range tokens {
			out[i] = strings.ReplaceAll(token, d.Pattern.String, d.Content)
		}
		return out
	case "ByteFallback":
		return byteFallbackDecode(tokens)
	case "Fuse":
		return []string{strings.Join(tokens, "")}
	case "Sequence":
		for i := range d.Decoders {
			tokens = t.decodeStep(tokens, &d.Decoders[i])
		}
		return tokens
	default:
		return tokens
	}
}

func (t *Tokenizer) wordPieceDecode(tokens []string, prefix string) string {
	if prefix == "" {
		prefix = "##"
	}
	var result strings.Builder
	for i, token := range tokens {
		if rest, ok := strings.CutPrefix(token, prefix); ok {
			result.WriteString(rest)
			continue
		}
		if i > 0 {
			result.WriteString(" ")
		}
		result.WriteString(token)
	}
	return result.String()
}

// byteFallbackDecode converts runs of <0xXX> tokens into the characters they encode.
func byteFallbackDecode(tokens []string) []string {
	var out []string
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			out = append(out, strings.ToValidUTF8(string(pending), "�"))
			pending = pending[:0]
		}
	}
	for _, token := range tokens {
		if len(token) == 6 && strings.HasPrefix(token, "<0x") && strings.HasSuffix(token, ">") {
			if b, err := strconv.ParseUint(token[3:5], 16, 8); err == nil {
				pending = append(pending, byte(b))
				continue
			}
		}
		flush()
		out = append(out, token)
	}
	flush()
	return out
}

// Helper functions

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// isChineseChar reports whether r is in the CJK Unified Ideographs blocks.
func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) || (r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) || (r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) || (r >= 0x2F800 && r <= 0x2FA1F)
}

func padChineseChars(text string) string {
	var result strings.Builder
	for _, r := range text {
		if isChineseChar(r) {
			result.WriteRune(' ')
			result.WriteRune(r)
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// GPT-2 byte-level BPE maps each byte to a printable rune.
var (
	byteToUnicode [256]rune
	unicodeToByte = make(map[rune]byte, 256)
)

func init() {
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[b] = rune(b)
		} else {
			byteToUnicode[b] = rune(256 + n)
			n++
		}
		unicodeToByte[byteToUnicode[b]] = byte(b)
	}
}

// byteLevelPreTokenize splits on spaces, each space attached to the word that follows it, and
// maps the bytes to their printable runes.
func byteLevelPreTokenize(text string) []string {
	var words []string
	var current strings.Builder
	prevSpace := false
	for i := 0; i < len(text); i++ {
		b := text[i]
		isSpace := b == ' '
		if current.Len() > 0 && isSpace && !prevSpace {
			words = append(words, current.String())
			current.Reset()
		}
		current.WriteRune(byteToUnicode[b])
		prevSpace = isSpace
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

func byteLevelDecode(text string) string {
	result := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, string(r)...)
		}
	}
	return string(result)
}
