package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/tracing"
)

// SnapshotWriter persists one drained snapshot. Write must not return
// before every row of the snapshot has been handed to storage.
type SnapshotWriter interface {
	Write(ctx context.Context, snap index.Snapshot) (segment.WriteStats, error)
}

// FlushController bounds resident memory by draining the in-memory tables
// into a SnapshotWriter every EveryLines documents, or sooner when the
// estimated resident size reaches MaxBytes.
type FlushController struct {
	mem        *index.MemoryIndex
	writer     SnapshotWriter
	everyLines int64
	maxBytes   int64
	drainTerms bool
	lines      int64
	flushes    int
	failed     bool
	written    segment.WriteStats
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// FlushPolicy configures a FlushController.
type FlushPolicy struct {
	EveryLines int64
	// MaxBytes triggers an early flush; zero disables it.
	MaxBytes int64
	// DrainTerms empties the term table at every flush instead of only at
	// the final one.
	DrainTerms bool
}

func NewFlushController(mem *index.MemoryIndex, writer SnapshotWriter, policy FlushPolicy, m *metrics.Metrics) *FlushController {
	if policy.EveryLines <= 0 {
		policy.EveryLines = 1
	}
	return &FlushController{
		mem:        mem,
		writer:     writer,
		everyLines: policy.EveryLines,
		maxBytes:   policy.MaxBytes,
		drainTerms: policy.DrainTerms,
		metrics:    m,
		logger:     slog.Default().With("component", "flush-controller"),
	}
}

// Tick counts one indexed line and reports whether a flush is due.
func (f *FlushController) Tick() bool {
	f.lines++
	if f.lines >= f.everyLines {
		return true
	}
	// Only what a flush can release counts toward the limit; a term table
	// kept for the whole build would otherwise trigger a flush per line.
	return f.maxBytes > 0 && f.mem.DrainableSize(f.drainTerms) >= f.maxBytes
}

// Flush drains the tables as a single snapshot and writes it. The final
// flush always drains the term table. The line counter restarts at zero.
func (f *FlushController) Flush(ctx context.Context, final bool) error {
	ctx, span := tracing.StartChild(ctx, "flush")
	defer span.End()
	start := time.Now()
	resident := f.mem.Size()
	snap := f.mem.Snapshot(f.drainTerms || final)
	f.lines = 0
	if snap.Empty() {
		return nil
	}

	stats, err := f.writer.Write(ctx, snap)
	elapsed := time.Since(start)
	if err != nil {
		f.failed = true
		f.metrics.IndexFlushesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("flush %d: %w", f.flushes+1, err)
	}
	f.flushes++
	span.SetAttr("flush", f.flushes)
	span.SetAttr("final", final)
	f.written.Documents += stats.Documents
	f.written.Terms += stats.Terms
	f.written.Postings += stats.Postings
	f.metrics.IndexFlushesTotal.WithLabelValues("ok").Inc()
	f.metrics.FlushDuration.Observe(elapsed.Seconds())
	f.metrics.ResidentBytes.Set(float64(f.mem.Size()))

	f.logger.Info("flushed",
		"flush", f.flushes,
		"final", final,
		"documents", stats.Documents,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"resident_bytes", resident,
		"duration", elapsed,
	)
	return nil
}

// Failed reports whether any flush has failed. The artifacts then no longer
// match what was drained and no further flush should be attempted.
func (f *FlushController) Failed() bool {
	return f.failed
}

// Flushes returns the number of non-empty flushes written.
func (f *FlushController) Flushes() int {
	return f.flushes
}

// Written returns the rows written across all flushes.
func (f *FlushController) Written() segment.WriteStats {
	return f.written
}
