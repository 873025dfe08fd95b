package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termindex/internal/report"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/redis"
)

type buildFlags struct {
	buildID     string
	flushEvery  int64
	termMode    string
	lengthMode  string
	onMalformed string
	jsonOut     bool
}

func newBuildCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build <collection> [output-dir]",
		Short: "Index a collection into documents, terms and postings files",
		Long: `Reads <collection> ("-" for stdin) one document per line and writes the
documents table, term table and postings list into output-dir (default: the
configured output.dir). Existing artifacts are truncated.`,
		Args: rangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, f)
		},
	}
	cmd.Flags().StringVar(&f.buildID, "build-id", "", "build id (default: random UUID)")
	cmd.Flags().Int64Var(&f.flushEvery, "flush-every", 0, "lines between flushes (default from config)")
	cmd.Flags().StringVar(&f.termMode, "term-mode", "", "term table lifetime: global or per-flush")
	cmd.Flags().StringVar(&f.lengthMode, "length-mode", "", "document length: terms or raw")
	cmd.Flags().StringVar(&f.onMalformed, "on-malformed", "", "malformed line policy: skip or abort")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the final statistics as JSON")
	return cmd
}

func (f buildFlags) apply(cfg *config.Config) error {
	if f.flushEvery != 0 {
		cfg.Build.FlushEveryLines = f.flushEvery
	}
	if f.termMode != "" {
		cfg.Build.TermMode = f.termMode
	}
	if f.lengthMode != "" {
		cfg.Build.LengthMode = f.lengthMode
	}
	if f.onMalformed != "" {
		cfg.Build.OnMalformed = f.onMalformed
	}
	return cfg.Validate()
}

func runBuild(cmd *cobra.Command, args []string, f buildFlags) error {
	cfg := configFrom(cmd)
	if err := f.apply(cfg); err != nil {
		return err
	}
	outDir := cfg.Output.Dir
	if len(args) == 2 {
		outDir = args[1]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return apperrors.IOf(outDir, err, "creating output directory")
	}

	source := args[0]
	in, closeIn, err := openInput(cmd, source)
	if err != nil {
		return err
	}
	defer closeIn()

	buildID := f.buildID
	if buildID == "" {
		buildID = uuid.NewString()
	}
	ctx := logger.WithBuildID(cmd.Context(), buildID)
	log := logger.FromContext(ctx)

	paths := segment.NewPaths(outDir, cfg.Output.DocumentsFile, cfg.Output.TermsFile, cfg.Output.PostingsFile)
	writer, err := segment.Create(paths, segment.WriterOptions{
		BufferSize:  cfg.Output.BufferSize,
		SyncOnFlush: cfg.Output.SyncOnFlush,
		Parallel:    cfg.Build.ParallelWrites,
	})
	if err != nil {
		return err
	}

	checker := health.NewChecker(cfg.Report.Timeout)
	reporter, closeSinks := newReporter(ctx, cfg, checker, report.Artifacts{
		Documents: paths.Documents,
		Terms:     paths.Terms,
		Postings:  paths.Postings,
	})
	defer closeSinks()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg, map[string]http.Handler{
			"/healthz": health.LiveHandler(),
			"/readyz":  checker.ReadyHandler(),
		})
		defer shutdown(context.WithoutCancel(ctx))
	}

	builder := indexer.NewBuilder(cfg.Build, cfg.Tokenizer, writer, m,
		indexer.WithBuildID(buildID),
		indexer.WithProgress(reporter.Progress),
	)
	stats, buildErr := builder.Build(ctx, source, in)
	if err := writer.Close(); err != nil && buildErr == nil {
		buildErr = err
	}

	if err := reporter.Finish(ctx, stats, buildErr); err != nil {
		log.Warn("build report incomplete", "error", err)
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName, reg); err != nil {
			log.Warn("metrics push failed", "error", err)
		}
	}
	if buildErr != nil {
		return buildErr
	}
	return printStats(cmd.OutOrStdout(), stats, paths, f.jsonOut)
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.IOf(path, err, "opening collection")
	}
	return file, func() { file.Close() }, nil
}

// newReporter connects the enabled sinks and registers a health check for
// each. A sink that cannot be reached at startup is logged and left out.
func newReporter(ctx context.Context, cfg *config.Config, checker *health.Checker, arts report.Artifacts) (*report.Reporter, func()) {
	log := logger.WithComponent("cli")
	var (
		sinks   report.Sinks
		closers []func() error
	)
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("redis status store disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			sinks.Status = client
			checker.Register("redis", client.Ping)
			closers = append(closers, client.Close)
		}
	}
	if cfg.Postgres.Enabled {
		if catalog, db, err := openCatalog(ctx, cfg.Postgres); err != nil {
			log.Warn("postgres build catalog disabled", "host", cfg.Postgres.Host, "error", err)
		} else {
			sinks.Recorder = catalog
			checker.Register("postgres", db.Ping)
			closers = append(closers, db.Close)
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		sinks.Announcer = report.NewKafkaAnnouncer(producer)
		checker.Register("kafka", producer.Ping)
		closers = append(closers, producer.Close)
	}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing report sink", "error", err)
			}
		}
	}
	return report.NewReporter(sinks, cfg.Redis, cfg.Report, arts), closeAll
}

func openCatalog(ctx context.Context, cfg config.PostgresConfig) (*report.Catalog, *postgres.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	db, err := postgres.New(connectCtx, cfg)
	if err != nil {
		return nil, nil, err
	}
	catalog := report.NewCatalog(db)
	if err := catalog.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return catalog, db, nil
}

func printStats(w io.Writer, s indexer.Stats, paths segment.Paths, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintf(w,
		"indexed %d documents from %d lines (%d skipped) in %s\n"+
			"  postings: %d\n  terms:    %d\n  flushes:  %d\n"+
			"  wrote %s, %s, %s\n",
		s.Documents, s.Lines, s.Skipped, s.Elapsed.Round(time.Millisecond),
		s.Postings, s.TermsWritten, s.Flushes,
		paths.Documents, paths.Terms, paths.Postings,
	)
	return err
}
