// Package tokenizer turns transcripts into CTC targets.
//
// Every encoder reserves label 0 for the blank symbol, so encoded ids can be
// used directly as targets with the default blank:
//   - CharVocab: one label per rune of a fixed alphabet
//   - TikToken: BPE ids from pkoukk/tiktoken-go, shifted up by one
//
// Pack encodes a batch of transcripts into the padded [B, S] targets and
// [B] target lengths the loss expects.
//
// Example usage:
//
//	vocab := tokenizer.NewCharVocab("abcdefghijklmnopqrstuvwxyz '")
//	targets, lengths, maxLen, err := tokenizer.Pack(vocab, []string{"hello", "world"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// targets has len(texts)*maxLen entries, zero padded.
package tokenizer
