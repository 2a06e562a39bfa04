package codec

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

// PadCode is reserved for padding and is never assigned to a character.
const PadCode = 0

// Tokenizer converts text into code sequences and back.
type Tokenizer interface {
	Tokenize(texts []string) ([][]int, error)
	Detokenize(sequences [][]int) ([]string, error)
	OneHot(texts []string, maxLength int) ([][][]bool, error)
	VocabSize() int
}

var _ Tokenizer = (*Codec)(nil)

// Codec is a character-level vocabulary built once from a corpus.
//
// Codes are assigned in order of first appearance, starting at 1. A Codec
// is immutable after construction and safe for concurrent use.
type Codec struct {
	index   map[rune]int
	symbols []rune // symbols[code-1]
}

// Build scans every character of every string in corpus order and assigns
// the next free code to each character not seen before.
func Build(corpus []string) (*Codec, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	return BuildSeq(slices.Values(corpus))
}

// BuildSeq is Build over any iterable of strings.
func BuildSeq(corpus iter.Seq[string]) (*Codec, error) {
	c := &Codec{index: make(map[rune]int)}
	empty := true
	for text := range corpus {
		empty = false
		for _, r := range text {
			if _, ok := c.index[r]; ok {
				continue
			}
			c.symbols = append(c.symbols, r)
			c.index[r] = len(c.symbols)
		}
	}
	if empty {
		return nil, ErrEmptyCorpus
	}
	return c, nil
}

// FromSymbols restores a codec in which symbols[i] has code i+1.
func FromSymbols(symbols []rune) (*Codec, error) {
	c := &Codec{
		index:   make(map[rune]int, len(symbols)),
		symbols: make([]rune, len(symbols)),
	}
	copy(c.symbols, symbols)
	for i, r := range c.symbols {
		if _, ok := c.index[r]; ok {
			return nil, &duplicateSymbolError{Symbol: r}
		}
		c.index[r] = i + 1
	}
	return c, nil
}

// VocabSize returns the number of characters in the vocabulary.
func (c *Codec) VocabSize() int {
	return len(c.symbols)
}

// Width returns the number of one-hot columns, including the padding column.
func (c *Codec) Width() int {
	return len(c.symbols) + 1
}

// Code returns the code assigned to r.
func (c *Codec) Code(r rune) (int, bool) {
	code, ok := c.index[r]
	return code, ok
}

// Symbol returns the character for code. PadCode has no character.
func (c *Codec) Symbol(code int) (rune, bool) {
	if code <= PadCode || code > len(c.symbols) {
		return 0, false
	}
	return c.symbols[code-1], true
}

// Symbols returns the alphabet in code order.
func (c *Codec) Symbols() []rune {
	return slices.Clone(c.symbols)
}

// WordIndex returns the character to code mapping keyed by one-character strings.
func (c *Codec) WordIndex() map[string]int {
	out := make(map[string]int, len(c.symbols))
	for i, r := range c.symbols {
		out[string(r)] = i + 1
	}
	return out
}

// Encode converts a single string into its code sequence.
func (c *Codec) Encode(text string) ([]int, error) {
	return c.encode(0, text)
}

// Tokenize converts each string into its code sequence.
func (c *Codec) Tokenize(texts []string) ([][]int, error) {
	out := make([][]int, len(texts))
	for i, text := range texts {
		seq, err := c.encode(i, text)
		if err != nil {
			return nil, err
		}
		out[i] = seq
	}
	return out, nil
}

func (c *Codec) encode(textIndex int, text string) ([]int, error) {
	seq := make([]int, 0, utf8.RuneCountInString(text))
	pos := 0
	for _, r := range text {
		code, ok := c.index[r]
		if !ok {
			return nil, &UnknownCharacterError{Text: textIndex, Position: pos, Char: r}
		}
		seq = append(seq, code)
		pos++
	}
	return seq, nil
}

// OneHot encodes each string as a [maxLength][Width()] matrix. Rows past
// the end of a string are left all false. A string longer than maxLength
// is an error; nothing is truncated.
func (c *Codec) OneHot(texts []string, maxLength int) ([][][]bool, error) {
	if maxLength < 0 {
		return nil, ErrInvalidMaxLength
	}
	width := c.Width()
	if maxLength > 0 && width > math.MaxInt/maxLength {
		return nil, fmt.Errorf("%w: %d rows of width %d overflow a matrix", ErrInvalidMaxLength, maxLength, width)
	}
	for i, text := range texts {
		if n := utf8.RuneCountInString(text); n > maxLength {
			return nil, &SequenceTooLongError{Text: i, Length: n, MaxLength: maxLength}
		}
	}

	out := make([][][]bool, len(texts))
	for i, text := range texts {
		seq, err := c.encode(i, text)
		if err != nil {
			return nil, err
		}
		// one backing array per matrix
		cells := make([]bool, maxLength*width)
		rows := make([][]bool, maxLength)
		for j := range rows {
			rows[j] = cells[j*width : (j+1)*width : (j+1)*width]
		}
		for j, code := range seq {
			rows[j][code] = true
		}
		out[i] = rows
	}
	return out, nil
}

// Decode converts a code sequence back into a string. Padding codes are skipped.
func (c *Codec) Decode(seq []int) (string, error) {
	return c.decode(0, seq)
}

// Detokenize converts each code sequence back into a string.
func (c *Codec) Detokenize(sequences [][]int) ([]string, error) {
	out := make([]string, len(sequences))
	for i, seq := range sequences {
		text, err := c.decode(i, seq)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

func (c *Codec) decode(seqIndex int, seq []int) (string, error) {
	var sb strings.Builder
	sb.Grow(len(seq))
	for pos, code := range seq {
		if code == PadCode {
			continue
		}
		r, ok := c.Symbol(code)
		if !ok {
			return "", &UnknownCodeError{Sequence: seqIndex, Position: pos, Code: code}
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}

// MaxLength returns the largest character count among texts.
func MaxLength(texts []string) int {
	longest := 0
	for _, text := range texts {
		if n := utf8.RuneCountInString(text); n > longest {
			longest = n
		}
	}
	return longest
}
