package tokenizer

import "errors"

// ErrUnknownSymbol is returned when text contains a symbol outside the vocabulary.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Blank is the label every encoder reserves for the CTC blank.
const Blank int32 = 0

// Encoder maps transcripts to CTC labels and back.
type Encoder interface {
	// Encode converts text to labels in [1, NumClasses).
	Encode(text string) ([]int32, error)

	// Decode converts labels back to text. Blank labels are skipped.
	Decode(labels []int32) (string, error)

	// NumClasses returns the class count including blank, which is the C
	// dimension the log-probs must have.
	NumClasses() int

	// Name returns the encoder name.
	Name() string
}
