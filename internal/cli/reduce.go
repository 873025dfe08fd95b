package cli

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
)

func newReduceTermsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reduce-terms <terms-in> <terms-out>",
		Short: "Sum the partial term counts written by a per-flush build",
		Args:  rangeArgs(2, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReduceTerms(cmd, args[0], args[1])
		},
	}
}

func runReduceTerms(cmd *cobra.Command, inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return apperrors.IOf(inPath, err, "opening term table")
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return apperrors.IOf(outPath, err, "creating term table")
	}
	bw := bufio.NewWriter(out)
	stats, reduceErr := segment.ReduceTerms(in, bw)
	if err := bw.Flush(); err != nil && reduceErr == nil {
		reduceErr = apperrors.IOf(outPath, err, "writing")
	}
	if err := out.Close(); err != nil && reduceErr == nil {
		reduceErr = apperrors.IOf(outPath, err, "closing")
	}
	if reduceErr != nil {
		return reduceErr
	}
	cmd.Printf("reduced %d lines to %d terms\n", stats.LinesIn, stats.TermsOut)
	return nil
}
