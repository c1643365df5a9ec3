package main

import (
	"fmt"
	"os"

	"github.com/dspgemm/dspgemm"
	dio "github.com/dspgemm/dspgemm/io"
	"github.com/spf13/cobra"
)

func newConvertCmd() *cobra.Command {
	var in, out, to string
	var mode int

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "convert a triple file between text and binary formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to != "text" && to != "binary" {
				return fmt.Errorf("%w: --to must be text or binary", dspgemm.ErrConfigInvalid)
			}
			if mode < 1 || mode > 3 {
				return fmt.Errorf("%w: --mode must be 1, 2 or 3", dspgemm.ErrConfigInvalid)
			}

			inFile, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("%w: opening %s: %v", dspgemm.ErrIoFailure, in, err)
			}
			defer inFile.Close()

			outFile, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("%w: creating %s: %v", dspgemm.ErrIoFailure, out, err)
			}
			defer outFile.Close()

			inputIsBinary := !isProbablyText(in)
			src, err := dio.NewSource(inFile, inputIsBinary, dio.Mode(mode))
			if err != nil {
				return err
			}
			return dio.Convert(src, outFile, to == "binary", dio.Mode(mode))
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input triple file path")
	cmd.Flags().StringVar(&out, "out", "", "output triple file path")
	cmd.Flags().IntVar(&mode, "mode", 3, "record mode: 1, 2 or 3 columns")
	cmd.Flags().StringVar(&to, "to", "binary", "target format: text or binary")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}

// isProbablyText guesses the input format from its extension, since the
// directory layout of spec.md §6 names .tsv/.bin consistently.
func isProbablyText(path string) bool {
	for i := len(path) - 1; i >= 0 && i > len(path)-5; i-- {
		if path[i] == '.' {
			return path[i:] == ".tsv" || path[i:] == ".txt"
		}
	}
	return true
}
