package cli

import (
	"bufio"
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/docfilter"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/metrics"
)

func newFilterCmd() *cobra.Command {
	var lenient bool
	cmd := &cobra.Command{
		Use:   "filter <collection> <docids> <output>",
		Short: "Copy the collection lines whose numeric id is listed in docids",
		Long: `Selects lines of <collection> whose leading numeric id appears in <docids>
(one id per line) and writes them to <output>. The collection must be sorted
by id; --lenient turns unsorted input and unmatched ids into warnings.`,
		Args: rangeArgs(3, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			strict := cfg.Filter.Strict && !lenient
			return runFilter(cmd, cfg.Metrics, args[0], args[1], args[2], strict)
		},
	}
	cmd.Flags().BoolVar(&lenient, "lenient", false, "warn instead of failing on unsorted input or unmatched ids")
	return cmd
}

func runFilter(cmd *cobra.Command, metricsCfg config.MetricsConfig, collPath, idsPath, outPath string, strict bool) error {
	idsFile, err := os.Open(idsPath)
	if err != nil {
		return apperrors.IOf(idsPath, err, "opening id list")
	}
	ids, err := docfilter.ReadIDs(idsFile)
	idsFile.Close()
	if err != nil {
		return apperrors.Newf(apperrors.ErrUsage, apperrors.ExitUsage, "%s: %v", idsPath, err)
	}

	coll, err := os.Open(collPath)
	if err != nil {
		return apperrors.IOf(collPath, err, "opening collection")
	}
	defer coll.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return apperrors.IOf(outPath, err, "creating output")
	}
	bw := bufio.NewWriter(out)

	reg := prometheus.NewRegistry()
	res, filterErr := docfilter.Filter(cmd.Context(), coll, ids, bw, docfilter.Options{
		Strict:  strict,
		Metrics: metrics.New(reg),
	})
	if err := bw.Flush(); err != nil && filterErr == nil {
		filterErr = apperrors.IOf(outPath, err, "writing")
	}
	if err := out.Close(); err != nil && filterErr == nil {
		filterErr = apperrors.IOf(outPath, err, "closing")
	}
	if metricsCfg.PushgatewayURL != "" {
		// A separate job keeps a filter run from replacing the last build's
		// metrics on the gateway.
		job := metricsCfg.JobName + "_filter"
		if err := metrics.Push(context.WithoutCancel(cmd.Context()), metricsCfg.PushgatewayURL, job, reg); err != nil {
			logger.WithComponent("cli").Warn("metrics push failed", "error", err)
		}
	}
	if filterErr != nil {
		return filterErr
	}
	cmd.Printf("matched %d of %d examined lines, %d ids unmatched\n", res.Matched, res.Examined, len(res.Unmatched))
	return nil
}
