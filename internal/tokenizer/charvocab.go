package tokenizer

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// CharVocab maps each rune of a fixed alphabet to its own label.
// Rune i of the alphabet gets label i+1.
type CharVocab struct {
	runes []rune
	index map[rune]int32
}

// NewCharVocab creates a vocabulary from the distinct runes of alphabet,
// in order of first appearance.
func NewCharVocab(alphabet string) *CharVocab {
	runes := lo.Uniq([]rune(alphabet))
	index := make(map[rune]int32, len(runes))
	for i, r := range runes {
		index[r] = int32(i + 1) //nolint:gosec // G115: alphabet is far below 2^31 runes.
	}
	return &CharVocab{runes: runes, index: index}
}

// Encode converts text to labels.
func (v *CharVocab) Encode(text string) ([]int32, error) {
	out := make([]int32, 0, len(text))
	for pos, r := range text {
		label, ok := v.index[r]
		if !ok {
			return nil, fmt.Errorf("%w: %q at byte %d", ErrUnknownSymbol, r, pos)
		}
		out = append(out, label)
	}
	return out, nil
}

// Decode converts labels back to text.
func (v *CharVocab) Decode(labels []int32) (string, error) {
	var sb strings.Builder
	for _, label := range labels {
		if label == Blank {
			continue
		}
		if label < 0 || int(label) > len(v.runes) {
			return "", fmt.Errorf("%w: label %d", ErrUnknownSymbol, label)
		}
		sb.WriteRune(v.runes[label-1])
	}
	return sb.String(), nil
}

// NumClasses returns the alphabet size plus blank.
func (v *CharVocab) NumClasses() int {
	return len(v.runes) + 1
}

// Name returns the encoder name.
func (v *CharVocab) Name() string {
	return "chars"
}
