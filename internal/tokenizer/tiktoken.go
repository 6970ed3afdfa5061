package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingR50kBase is the encoding name for older GPT-3 models.
	encodingR50kBase = "r50k_base"
)

// TikToken encodes transcripts as BPE tokens using pkoukk/tiktoken-go.
// Token id k becomes label k+1 so that label 0 stays blank.
//
// Supported encodings:
//   - cl100k_base: GPT-4, GPT-3.5-turbo
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a new TikToken encoder with the specified encoding.
// The BPE ranks are fetched and cached by tiktoken-go on first use.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// Encode converts text to labels.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)

	labels := make([]int32, len(tokens))
	for i, tok := range tokens {
		labels[i] = int32(tok) + 1 //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}
	return labels, nil
}

// Decode converts labels back to text.
func (t *TikToken) Decode(labels []int32) (string, error) {
	tokens := make([]int, 0, len(labels))
	for _, label := range labels {
		if label == Blank {
			continue
		}
		if label < 0 || int(label) >= t.NumClasses() {
			return "", fmt.Errorf("%w: label %d", ErrUnknownSymbol, label)
		}
		tokens = append(tokens, int(label)-1)
	}
	return t.encoding.Decode(tokens), nil
}

// NumClasses returns the vocabulary size plus blank.
func (t *TikToken) NumClasses() int {
	// tiktoken-go doesn't expose vocab size directly.
	switch t.name {
	case encodingCL100kBase:
		return 100256 + 1
	case encodingP50kBase, encodingR50kBase:
		return 50257 + 1
	default:
		return 100000 + 1
	}
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}
