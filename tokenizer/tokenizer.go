// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns transcripts into CTC targets.
//
// Every encoder keeps label 0 for the blank symbol, matching the default
// blank of the ctc package.
//
// Example:
//
//	vocab := tokenizer.NewCharVocab("abcdefghijklmnopqrstuvwxyz '")
//	flat, lengths, maxLen, err := tokenizer.Pack(vocab, transcripts)
//	if err != nil {
//	    return err
//	}
//	targets, _ := tensor.FromSlice(flat, tensor.Shape{len(transcripts), maxLen}, backend)
//	targetLengths, _ := tensor.FromSlice(lengths, tensor.Shape{len(transcripts)}, backend)
package tokenizer

import (
	"github.com/born-ml/ctcloss/internal/tokenizer"
)

// Encoder maps transcripts to CTC labels and back.
type Encoder = tokenizer.Encoder

// CharVocab maps each rune of a fixed alphabet to its own label.
type CharVocab = tokenizer.CharVocab

// TikToken encodes transcripts as BPE tokens.
type TikToken = tokenizer.TikToken

// Blank is the label every encoder reserves for the CTC blank.
const Blank = tokenizer.Blank

// ErrUnknownSymbol is returned for text outside an encoder's vocabulary.
var ErrUnknownSymbol = tokenizer.ErrUnknownSymbol

// NewCharVocab creates a vocabulary from the distinct runes of alphabet.
func NewCharVocab(alphabet string) *CharVocab {
	return tokenizer.NewCharVocab(alphabet)
}

// NewTikToken creates a BPE encoder for an encoding such as "cl100k_base".
func NewTikToken(encoding string) (*TikToken, error) {
	return tokenizer.NewTikToken(encoding)
}

// Pack encodes texts into zero-padded [len(texts), maxLen] targets and their lengths.
func Pack(enc Encoder, texts []string) (targets, lengths []int32, maxLen int, err error) {
	return tokenizer.Pack(enc, texts)
}

// Collapse merges adjacent repeats of a frame-level path and drops blanks.
func Collapse(path []int32, blank int32) []int32 {
	return tokenizer.Collapse(path, blank)
}
