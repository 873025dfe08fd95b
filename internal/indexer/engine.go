// Package indexer drives a single-pass build of a term-level inverted index
// from a line-oriented collection. Each line is registered as a document,
// tokenised, and accumulated in memory; a FlushController periodically
// drains the accumulators into the output artifacts.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/tracing"
)

// Stats describes a build, either in progress or finished.
type Stats struct {
	BuildID         string           `json:"build_id"`
	Source          string           `json:"source"`
	StartedAt       time.Time        `json:"started_at"`
	Elapsed         time.Duration    `json:"elapsed_ns"`
	Lines           int64            `json:"lines"`
	Documents       int64            `json:"documents"`
	Skipped         int64            `json:"skipped"`
	SkippedByReason map[string]int64 `json:"skipped_by_reason,omitempty"`
	Fragments       int64            `json:"fragments"`
	Occurrences     int64            `json:"term_occurrences"`
	Postings        int64            `json:"postings"`
	TermsWritten    int64            `json:"terms_written"`
	Flushes         int              `json:"flushes"`
	TermMode        string           `json:"term_mode"`
	LengthMode      string           `json:"length_mode"`
	Completed       bool             `json:"completed"`
}

// ProgressFunc observes periodic and final statistics.
type ProgressFunc func(ctx context.Context, s Stats)

// Option customises a Builder.
type Option func(*Builder)

// WithBuildID overrides the generated build id.
func WithBuildID(id string) Option {
	return func(b *Builder) { b.buildID = id }
}

// WithProgress registers fn to receive progress statistics.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.onProgress = fn }
}

// Builder is the build orchestrator. A Builder runs one build.
type Builder struct {
	cfg        config.BuildConfig
	tok        *tokenizer.Tokenizer
	mem        *index.MemoryIndex
	flusher    *FlushController
	metrics    *metrics.Metrics
	logger     *slog.Logger
	progress   *rate.Sometimes
	onProgress ProgressFunc
	buildID    string
}

func NewBuilder(cfg config.BuildConfig, tokCfg config.TokenizerConfig, w SnapshotWriter, m *metrics.Metrics, opts ...Option) *Builder {
	mem := index.NewMemoryIndex()
	b := &Builder{
		cfg: cfg,
		tok: tokenizer.New(tokenizer.Options{StopWords: tokCfg.StopWords, Stem: tokCfg.Stem}),
		mem: mem,
		flusher: NewFlushController(mem, w, FlushPolicy{
			EveryLines: cfg.FlushEveryLines,
			MaxBytes:   cfg.FlushMaxBytes,
			DrainTerms: cfg.TermMode == config.TermModePerFlush,
		}, m),
		metrics: m,
		buildID: uuid.NewString(),
	}
	if cfg.ProgressEveryLines > 0 || cfg.ProgressInterval > 0 {
		b.progress = &rate.Sometimes{Every: cfg.ProgressEveryLines, Interval: cfg.ProgressInterval}
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = slog.Default().With("component", "builder", "build_id", b.buildID)
	return b
}

// BuildID returns the id stamped on this build's statistics.
func (b *Builder) BuildID() string {
	return b.buildID
}

// Build reads the collection from r until EOF, indexing one document per
// well-formed line. source names r in diagnostics. Whatever is accumulated
// is flushed before Build returns, including when ctx is cancelled, so the
// artifacts always describe a prefix of the input.
func (b *Builder) Build(ctx context.Context, source string, r io.Reader) (Stats, error) {
	stats := Stats{
		BuildID:         b.buildID,
		Source:          source,
		StartedAt:       time.Now(),
		SkippedByReason: make(map[string]int64),
		TermMode:        b.cfg.TermMode,
		LengthMode:      b.cfg.LengthMode,
	}
	b.logger.Info("build starting",
		"source", source,
		"flush_every_lines", b.cfg.FlushEveryLines,
		"flush_max_bytes", b.cfg.FlushMaxBytes,
		"term_mode", b.cfg.TermMode,
		"length_mode", b.cfg.LengthMode,
		"on_malformed", b.cfg.OnMalformed,
	)

	ctx, span := tracing.StartSpan(ctx, "build", b.buildID)
	defer func() {
		span.End()
		span.Log(ctx, b.logger)
	}()

	runErr := b.run(ctx, source, r, &stats)

	// The final flush must not be skipped because the build was cancelled,
	// but after a failed flush the artifacts are already inconsistent.
	var flushErr error
	if !b.flusher.Failed() {
		flushErr = b.flusher.Flush(context.WithoutCancel(ctx), true)
	}
	b.finish(&stats)
	if flushErr != nil {
		b.metrics.LastBuildSuccess.Set(0)
		return stats, fmt.Errorf("final flush: %w", flushErr)
	}
	if runErr != nil {
		b.metrics.LastBuildSuccess.Set(0)
		b.logger.Error("build stopped", "error", runErr, "lines", stats.Lines)
		return stats, runErr
	}

	stats.Completed = true
	b.metrics.LastBuildSuccess.Set(1)
	b.metrics.LastBuildDurationS.Set(stats.Elapsed.Seconds())
	b.logger.Info("build complete",
		"lines", stats.Lines,
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"postings", stats.Postings,
		"terms_written", stats.TermsWritten,
		"flushes", stats.Flushes,
		"elapsed", stats.Elapsed,
	)
	if stats.Skipped > 0 {
		b.logger.Warn(fmt.Sprintf("%d lines skipped", stats.Skipped), "by_reason", stats.SkippedByReason)
	}
	if b.onProgress != nil {
		b.onProgress(ctx, stats)
	}
	return stats, nil
}

func (b *Builder) run(ctx context.Context, source string, r io.Reader, stats *Stats) error {
	rd := collection.NewReader(r)
	for rd.Next() {
		if err := ctx.Err(); err != nil {
			return apperrors.Newf(apperrors.ErrCanceled, apperrors.ExitCanceled,
				"%s: stopped before line %d: %v", source, rd.LineNo(), err)
		}
		stats.Lines++
		b.metrics.LinesReadTotal.Inc()

		indexed, err := b.indexLine(rd.LineNo(), rd.Line(), stats)
		if err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
		if indexed && b.flusher.Tick() {
			// A drained snapshot is written in full even if ctx is cancelled
			// meanwhile.
			if err := b.flusher.Flush(context.WithoutCancel(ctx), false); err != nil {
				return err
			}
			stats.Flushes = b.flusher.Flushes()
		}
		if b.progress != nil {
			b.progress.Do(func() { b.reportProgress(ctx, stats) })
		}
	}
	if err := rd.Err(); err != nil {
		return apperrors.IOf(source, err, "reading collection")
	}
	return nil
}

// indexLine registers and accumulates one line. It reports false, with a
// nil error, for a malformed line skipped under the skip policy.
func (b *Builder) indexLine(lineNo int64, line string, stats *Stats) (bool, error) {
	rec, err := collection.ParseLine(line)
	if err != nil {
		var lineErr *collection.LineError
		if !errors.As(err, &lineErr) {
			return false, err
		}
		lineErr.LineNo = lineNo
		if b.cfg.OnMalformed == config.OnMalformedAbort {
			return false, lineErr
		}
		stats.Skipped++
		stats.SkippedByReason[lineErr.Reason]++
		b.metrics.LinesSkippedTotal.WithLabelValues(lineErr.Reason).Inc()
		b.logger.Warn("skipping malformed line", "line", lineNo, "reason", lineErr.Reason)
		return false, nil
	}

	docID, err := b.mem.Register(rec.ExternalID)
	if err != nil {
		return false, fmt.Errorf("line %d: %w", lineNo, err)
	}
	res := b.tok.Tokenize(rec.Text)
	length := res.Kept
	if b.cfg.LengthMode == config.LengthModeRaw {
		length = res.Fragments
	}
	if err := b.mem.SetLength(docID, length); err != nil {
		return false, fmt.Errorf("line %d: %w", lineNo, err)
	}
	b.mem.AddTerms(docID, res.Terms)

	stats.Documents++
	stats.Fragments += int64(res.Fragments)
	stats.Occurrences += int64(res.Kept)
	stats.Postings += int64(len(res.Terms))
	b.metrics.DocsIndexedTotal.Inc()
	b.metrics.FragmentsTotal.Add(float64(res.Fragments))
	b.metrics.PostingsTotal.Add(float64(len(res.Terms)))
	return true, nil
}

func (b *Builder) reportProgress(ctx context.Context, stats *Stats) {
	docs, terms, postings := b.mem.Resident()
	stats.Elapsed = time.Since(stats.StartedAt)
	b.metrics.ResidentBytes.Set(float64(b.mem.Size()))
	b.metrics.ResidentTerms.Set(float64(terms))

	var linesPerSec float64
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		linesPerSec = float64(stats.Lines) / secs
	}
	b.logger.Info("progress",
		"lines", stats.Lines,
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"postings", stats.Postings,
		"resident_docs", docs,
		"resident_terms", terms,
		"resident_postings", postings,
		"flushes", stats.Flushes,
		"elapsed", stats.Elapsed.Round(time.Millisecond),
		"lines_per_sec", int64(linesPerSec),
	)
	if b.onProgress != nil {
		b.onProgress(ctx, *stats)
	}
}

func (b *Builder) finish(stats *Stats) {
	stats.Elapsed = time.Since(stats.StartedAt)
	stats.Flushes = b.flusher.Flushes()
	stats.TermsWritten = int64(b.flusher.Written().Terms)
	b.metrics.ResidentBytes.Set(0)
	b.metrics.ResidentTerms.Set(0)
}
