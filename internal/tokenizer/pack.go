package tokenizer

import (
	"fmt"

	"github.com/samber/lo"
)

// Pack encodes texts and lays them out as CTC targets.
//
// targets is row-major [len(texts), maxLen] with rows zero-padded past
// lengths[i]. maxLen is at least 1 so the targets tensor is never empty
// along its second dimension.
func Pack(enc Encoder, texts []string) (targets, lengths []int32, maxLen int, err error) {
	rows := make([][]int32, len(texts))
	for i, text := range texts {
		if rows[i], err = enc.Encode(text); err != nil {
			return nil, nil, 0, fmt.Errorf("text %d: %w", i, err)
		}
	}

	lengths = lo.Map(rows, func(row []int32, _ int) int32 {
		return int32(len(row)) //nolint:gosec // G115: transcript length fits in int32.
	})
	maxLen = max(1, int(lo.Max(lengths)))

	targets = make([]int32, len(texts)*maxLen)
	for i, row := range rows {
		copy(targets[i*maxLen:], row)
	}
	return targets, lengths, maxLen, nil
}

// Collapse applies the CTC collapse rule to a frame-level label path:
// merge adjacent repeats, then drop blanks.
func Collapse(path []int32, blank int32) []int32 {
	out := make([]int32, 0, len(path))
	prev := blank
	for i, label := range path {
		if label != blank && (i == 0 || label != prev) {
			out = append(out, label)
		}
		prev = label
	}
	return out
}
