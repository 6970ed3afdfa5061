package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/ctcloss/tokenizer"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newEncodeCmd(o *options) *cobra.Command {
	var vocab, alphabet string
	cmd := &cobra.Command{
		Use:   "encode TEXT...",
		Short: "Turn transcripts into padded CTC targets and lengths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.blank != int(tokenizer.Blank) {
				return fmt.Errorf("encoders reserve label %d for blank, got --blank %d", tokenizer.Blank, o.blank)
			}

			var enc tokenizer.Encoder
			if vocab == "chars" {
				enc = tokenizer.NewCharVocab(alphabet)
			} else {
				tt, err := tokenizer.NewTikToken(vocab)
				if err != nil {
					return err
				}
				enc = tt
			}

			targets, lengths, maxLen, err := tokenizer.Pack(enc, args)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "encoder: %s (%d classes)\n", enc.Name(), enc.NumClasses())
			fmt.Fprintf(w, "targets: [%d, %d]\n", len(args), maxLen)
			for n := range args {
				fmt.Fprintf(w, "  %s\n", joinInts(targets[n*maxLen:(n+1)*maxLen]))
			}
			fmt.Fprintf(w, "lengths: %s\n", joinInts(lengths))
			return nil
		},
	}
	cmd.Flags().StringVar(&vocab, "vocab", "chars", "chars or a tiktoken encoding such as cl100k_base")
	cmd.Flags().StringVar(&alphabet, "alphabet", "abcdefghijklmnopqrstuvwxyz '", "symbols of the chars vocabulary, in label order")
	return cmd
}

func joinInts(values []int32) string {
	return strings.Join(lo.Map(values, func(v int32, _ int) string {
		return strconv.Itoa(int(v))
	}), " ")
}
