package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus is returned when a vocabulary is built from no strings.
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrInvalidMaxLength is returned for a negative one-hot length.
	ErrInvalidMaxLength = errors.New("max length must not be negative")
	// ErrDuplicateSymbol is returned when a restored alphabet repeats a character.
	ErrDuplicateSymbol = errors.New("duplicate symbol")
)

// UnknownCharacterError reports a character that is not in the vocabulary.
type UnknownCharacterError struct {
	Text     int
	Position int
	Char     rune
}

func (e *UnknownCharacterError) Error() string {
	return fmt.Sprintf("unknown character %q at text %d position %d", e.Char, e.Text, e.Position)
}

// UnknownCodeError reports a code with no character in the vocabulary.
type UnknownCodeError struct {
	Sequence int
	Position int
	Code     int
}

func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("unknown code %d at sequence %d position %d", e.Code, e.Sequence, e.Position)
}

// SequenceTooLongError reports a string that does not fit the requested one-hot length.
type SequenceTooLongError struct {
	Text      int
	Length    int
	MaxLength int
}

func (e *SequenceTooLongError) Error() string {
	return fmt.Sprintf("text %d has %d characters, max length is %d", e.Text, e.Length, e.MaxLength)
}

type duplicateSymbolError struct {
	Symbol rune
}

func (e *duplicateSymbolError) Error() string {
	return fmt.Sprintf("%v: %q", ErrDuplicateSymbol, e.Symbol)
}

func (e *duplicateSymbolError) Unwrap() error {
	return ErrDuplicateSymbol
}
